package eventbus

import (
	"context"
	"fmt"

	"github.com/dukex/leadflow/pkg/events"
	"github.com/dukex/leadflow/pkg/models"
)

// Notifier publishes notifications as events so the board can show them.
type Notifier struct {
	bus EventBus
}

func NewNotifier(bus EventBus) *Notifier {
	return &Notifier{bus: bus}
}

func (n *Notifier) Notify(ctx context.Context, notification models.Notification) error {
	key := notification.LeadID
	if key == "" {
		key = notification.AutomationID
	}

	event := events.Notification{
		BaseEvent: events.BaseEvent{
			ID:        n.bus.GenerateID(),
			Type:      events.EventType(notification.Kind),
			Timestamp: notification.CreatedAt,
		},
		Notification: notification,
	}

	err := n.bus.Publish(ctx, key, event)
	if err != nil {
		return fmt.Errorf("failed to publish %s notification: %w", notification.Kind, err)
	}

	return nil
}
