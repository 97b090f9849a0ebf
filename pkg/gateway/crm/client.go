// Package crm is the HTTP client of the CRM backend that owns leads, notes, tasks and the team.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var ErrBackend = errors.New("crm backend error")

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements protocol.LeadBackend, protocol.TaskService and protocol.TeamDirectory.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if cfg.Token != "" {
		http.SetAuthToken(cfg.Token)
	}

	return &Client{http: http, logger: logger.With("module", "crm_client")}
}

func leadPath(id string, suffix string) string {
	return "/leads/" + url.PathEscape(id) + suffix
}

func (c *Client) UpdateLeadStatus(ctx context.Context, leadID, columnID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"status": columnID}).
		Patch(leadPath(leadID, "/status"))

	return c.check(resp, err, "update lead status")
}

func (c *Client) UpdateLead(ctx context.Context, leadID string, patch models.LeadPatch) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(patch).
		Patch(leadPath(leadID, ""))

	return c.check(resp, err, "update lead")
}

func (c *Client) AddInteractionNote(ctx context.Context, leadID string, note *models.Note) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(note).
		Post(leadPath(leadID, "/notes"))

	return c.check(resp, err, "add note")
}

func (c *Client) CreateTask(ctx context.Context, task *models.Task) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(task).
		Post("/tasks")

	return c.check(resp, err, "create task")
}

// ListLeads accepts a bare array or a {"data": [...]} envelope.
func (c *Client) ListLeads(ctx context.Context) ([]*models.Lead, error) {
	var leads []*models.Lead

	err := c.getList(ctx, "/leads", "list leads", &leads)
	if err != nil {
		return nil, err
	}

	return leads, nil
}

func (c *Client) Members(ctx context.Context) ([]*models.TeamMember, error) {
	var members []*models.TeamMember

	err := c.getList(ctx, "/team/members", "list team members", &members)
	if err != nil {
		return nil, err
	}

	return members, nil
}

func (c *Client) getList(ctx context.Context, path, op string, target any) error {
	resp, err := c.http.R().SetContext(ctx).Get(path)

	err = c.check(resp, err, op)
	if err != nil {
		return err
	}

	list := gjson.ParseBytes(resp.Body())
	if data := list.Get("data"); data.IsArray() {
		list = data
	}

	if !list.IsArray() {
		return fmt.Errorf("%w: %s: unexpected payload", ErrBackend, op)
	}

	err = json.Unmarshal([]byte(list.Raw), target)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBackend, op, err)
	}

	return nil
}

func (c *Client) check(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	if resp.IsError() {
		message := gjson.GetBytes(resp.Body(), "error").String()
		c.logger.Warn("CRM request failed", "op", op, "status", resp.StatusCode(), "error", message)

		return fmt.Errorf("%w: %s returned %d: %s", ErrBackend, op, resp.StatusCode(), message)
	}

	return nil
}
