// Package leads holds the in-memory board state: the single owned collection of leads that
// the automation engine reads and mutates through narrow setters.
package leads

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// Source lists the leads to hydrate the store with.
type Source interface {
	ListLeads(ctx context.Context) ([]*models.Lead, error)
}

// Store is safe for concurrent use. Getters return copies.
type Store struct {
	mu    sync.RWMutex
	leads map[string]*models.Lead
	clock clockwork.Clock
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Store{leads: make(map[string]*models.Lead), clock: clock}
}

// Load replaces the content of the store with the leads of source.
func (s *Store) Load(ctx context.Context, source Source) (int, error) {
	list, err := source.ListLeads(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list leads: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.leads = make(map[string]*models.Lead, len(list))
	for _, lead := range list {
		s.leads[lead.ID] = lead.Clone()
	}

	return len(list), nil
}

// Upsert inserts or refreshes a lead. History and current action survive a refresh that omits them.
func (s *Store) Upsert(lead *models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	incoming := lead.Clone()

	if existing, ok := s.leads[lead.ID]; ok {
		if len(incoming.StatusHistory) == 0 {
			incoming.StatusHistory = existing.StatusHistory
		}

		if incoming.CurrentActionID == "" {
			incoming.CurrentActionID = existing.CurrentActionID
		}
	}

	s.leads[lead.ID] = incoming
}

// RevertColumn rolls back SetColumn or SetFunnel using the snapshot they returned. Only the
// column, funnel and history are restored; any other field keeps its current value.
func (s *Store) RevertColumn(previous *models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[previous.ID]
	if !ok {
		return
	}

	lead.Status = previous.Status
	lead.FunnelID = previous.FunnelID
	lead.StatusHistory = previous.Clone().StatusHistory
}

// RevertAssignee rolls back SetAssignee.
func (s *Store) RevertAssignee(previous *models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[previous.ID]
	if !ok {
		return
	}

	lead.AssigneeID = previous.AssigneeID
	lead.AssigneePhone = previous.AssigneePhone
}

func (s *Store) Get(id string) (*models.Lead, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, false
	}

	return lead.Clone(), true
}

// Column returns the column the lead is currently in.
func (s *Store) Column(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return "", false
	}

	return lead.Status, true
}

// SetColumn moves the lead and appends the visit to its history. It returns the lead as it was
// before the move. Moving to the current column is a no-op.
func (s *Store) SetColumn(id, columnID string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrLeadNotFound, id)
	}

	previous := lead.Clone()
	if lead.Status == columnID {
		return previous, nil
	}

	s.appendHistory(lead, columnID)
	lead.Status = columnID

	return previous, nil
}

// AppendHistory records that the lead entered columnID now without changing its status.
func (s *Store) AppendHistory(id, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("%w: %s", persistence.ErrLeadNotFound, id)
	}

	s.appendHistory(lead, columnID)

	return nil
}

func (s *Store) appendHistory(lead *models.Lead, columnID string) {
	now := s.clock.Now()

	if n := len(lead.StatusHistory); n > 0 {
		last := &lead.StatusHistory[n-1]
		if last.Duration == 0 {
			last.Duration = now.Sub(last.EnteredAt)
		}
	}

	lead.StatusHistory = append(lead.StatusHistory, models.StatusChange{ColumnID: columnID, EnteredAt: now})
	lead.UpdatedAt = now
}

func (s *Store) SetCurrentAction(id, actionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return fmt.Errorf("%w: %s", persistence.ErrLeadNotFound, id)
	}

	lead.CurrentActionID = actionID

	return nil
}

// SetFunnel moves the lead to another pipeline. It returns the lead as it was before.
func (s *Store) SetFunnel(id, funnelID, columnID string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrLeadNotFound, id)
	}

	previous := lead.Clone()

	lead.FunnelID = funnelID
	if lead.Status != columnID {
		s.appendHistory(lead, columnID)
		lead.Status = columnID
	}

	return previous, nil
}

func (s *Store) SetAssignee(id, assigneeID string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", persistence.ErrLeadNotFound, id)
	}

	previous := lead.Clone()
	lead.AssigneeID = assigneeID
	lead.AssigneePhone = ""
	lead.UpdatedAt = s.clock.Now()

	return previous, nil
}

// InColumn lists the leads in a column, optionally restricted to a funnel, ordered by id.
func (s *Store) InColumn(funnelID, columnID string) []*models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Lead, 0)

	for _, lead := range s.leads {
		if lead.Status != columnID {
			continue
		}

		if funnelID != "" && lead.FunnelID != funnelID {
			continue
		}

		matched = append(matched, lead.Clone())
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return matched
}

func (s *Store) All() []*models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		all = append(all, lead.Clone())
	}

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	return all
}
