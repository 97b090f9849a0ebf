// Package whatsapp is the HTTP client of the messaging gateway.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var ErrGateway = errors.New("messaging gateway error")

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client implements protocol.Messenger against the gateway REST API.
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
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)

	if cfg.Token != "" {
		http.SetAuthToken(cfg.Token)
	}

	return &Client{http: http, logger: logger.With("module", "whatsapp_gateway")}
}

type sendRequest struct {
	To     string    `json:"to"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

func (c *Client) SendMessage(ctx context.Context, contactID, text string, at time.Time) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{To: contactID, Text: text, SentAt: at.UTC()}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: send returned %d: %s", ErrGateway, resp.StatusCode(), gjson.GetBytes(resp.Body(), "error").String())
	}

	c.logger.DebugContext(ctx, "Message sent", "contact", contactID, "message_id", gjson.GetBytes(resp.Body(), "id").String())

	return nil
}

// HasRepliedSince asks the gateway whether the contact wrote after since. The gateway answers
// either {"replied": bool} or a list of messages.
func (c *Client) HasRepliedSince(ctx context.Context, contactID string, since time.Time) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("since", since.UTC().Format(time.RFC3339)).
		Get("/contacts/" + url.PathEscape(contactID) + "/replies")
	if err != nil {
		return false, fmt.Errorf("failed to check replies: %w", err)
	}

	if resp.IsError() {
		return false, fmt.Errorf("%w: replies returned %d", ErrGateway, resp.StatusCode())
	}

	body := resp.Body()

	if replied := gjson.GetBytes(body, "replied"); replied.Exists() {
		return replied.Bool(), nil
	}

	return gjson.GetBytes(body, "messages.#").Int() > 0, nil
}
