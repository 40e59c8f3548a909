package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookConfig configures an outbound HTTP webhook channel.
type WebhookConfig struct {
	// Name identifies the channel in logs; defaults to "webhook".
	Name string
	// URL receives a JSON POST per event.
	URL string
	// Secret, when set, signs the body: the X-Signature-256 header carries
	// "sha256=" + hex(HMAC-SHA256(body)).
	Secret string
	// Timeout bounds one POST. Default: 10s.
	Timeout time.Duration
	// Kinds filters events; empty accepts everything.
	Kinds []Kind
}

// WebhookChannel POSTs the event envelope as JSON to a configured endpoint.
type WebhookChannel struct {
	name   string
	cfg    WebhookConfig
	client *http.Client
	kinds  kindSet
}

// NewWebhookChannel creates a WebhookChannel.
func NewWebhookChannel(cfg WebhookConfig) (*WebhookChannel, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("notify: webhook: url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	name := cfg.Name
	if name == "" {
		name = "webhook"
	}
	return &WebhookChannel{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		kinds:  newKindSet(cfg.Kinds),
	}, nil
}

func (c *WebhookChannel) Name() string { return c.name }

func (c *WebhookChannel) Accepts(kind Kind) bool { return c.kinds.accepts(kind) }

// Render serializes the full event envelope; the subject travels in a header.
func (c *WebhookChannel) Render(ev Event) (Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Message{}, fmt.Errorf("marshal event: %w", err)
	}
	return Message{Subject: renderText(ev).Subject, Body: string(body)}, nil
}

func (c *WebhookChannel) Send(ctx context.Context, msg Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader([]byte(msg.Body)))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vigil-Subject", msg.Subject)
	if c.cfg.Secret != "" {
		mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
		mac.Write([]byte(msg.Body))
		req.Header.Set("X-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", c.cfg.URL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: http %d", c.cfg.URL, resp.StatusCode)
	}
	return nil
}
