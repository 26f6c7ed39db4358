// Package notify sends a short run summary to a chat or webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-dns-optimizer/internal/config"
)

const (
	KindTelegram = "telegram"
	KindWebhook  = "webhook"

	telegramAPI    = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second
)

// Notifier delivers a message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// New returns the notifier described by cfg, or a no-op notifier when none
// is configured.
func New(log logr.Logger, cfg config.NotifyConfig) (Notifier, error) {
	client := &http.Client{Timeout: defaultTimeout}
	switch cfg.Kind {
	case "":
		return Noop{}, nil
	case KindTelegram:
		if cfg.BotToken == "" || cfg.ChatID == "" {
			return nil, fmt.Errorf("notify: telegram requires bot_token and chat_id")
		}
		return &Telegram{BaseURL: telegramAPI, Token: cfg.BotToken, ChatID: cfg.ChatID, Client: client, Log: log}, nil
	case KindWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("notify: webhook requires url")
		}
		return &Webhook{URL: cfg.URL, Client: client, Log: log}, nil
	default:
		return nil, fmt.Errorf("notify: unknown kind %q", cfg.Kind)
	}
}

// Noop discards messages.
type Noop struct{}

func (Noop) Notify(context.Context, string) error { return nil }

// Telegram posts messages through the Bot API.
type Telegram struct {
	BaseURL string
	Token   string
	ChatID  string
	Client  *http.Client
	Log     logr.Logger
}

// Notify sends text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	url := strings.TrimRight(t.BaseURL, "/") + "/bot" + t.Token + "/sendMessage"
	body := map[string]string{"chat_id": t.ChatID, "text": text}
	if err := postJSON(ctx, t.Client, url, body); err != nil {
		// The URL carries the token; never log it.
		return fmt.Errorf("notify: telegram: %w", redact(err, t.Token))
	}
	t.Log.V(1).Info("sent telegram notification", "chat", t.ChatID)
	return nil
}

// Webhook posts {"text": ...} to a URL.
type Webhook struct {
	URL    string
	Client *http.Client
	Log    logr.Logger
}

// Notify posts text to the webhook.
func (w *Webhook) Notify(ctx context.Context, text string) error {
	if err := postJSON(ctx, w.Client, w.URL, map[string]string{"text": text}); err != nil {
		return fmt.Errorf("notify: webhook: %w", err)
	}
	w.Log.V(1).Info("sent webhook notification")
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if secret == "" {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "***"), err: err}
}
