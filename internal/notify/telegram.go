// Package notify delivers attempt results to an operator over the Telegram Bot API.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/panelkeeper/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultAPIURL  = "https://api.telegram.org"
	defaultTimeout = 15 * time.Second
	parseMode      = "Markdown"
)

// ErrRejected is returned when the Bot API answers with ok=false.
var ErrRejected = errors.New("telegram rejected the message")

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// Telegram sends Markdown messages to a single chat.
type Telegram struct {
	token      string
	chatID     string
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTelegram creates a client from configuration.
func NewTelegram(cfg config.TelegramConfig, logger *zap.Logger) (*Telegram, error) {
	if cfg.BotToken.Reveal() == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram bot token and chat id are required")
	}
	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Telegram{
		token:    cfg.BotToken.Reveal(),
		chatID:   cfg.ChatID,
		endpoint: fmt.Sprintf("%s/bot%s/sendMessage", apiURL, cfg.BotToken.Reveal()),
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("notify.telegram"),
	}, nil
}

// Send posts text to the configured chat. Transient failures (network errors,
// 429 and 5xx) are retried until the client timeout is spent.
func (t *Telegram) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: text, ParseMode: parseMode})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = t.timeout

	attempts := 0
	operation := func() error {
		attempts++
		return t.post(ctx, body)
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return t.redact(err)
	}
	t.logger.Info("Notification delivered.", zap.Int("attempts", attempts))
	return nil
}

func (t *Telegram) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Warn("Network error sending notification, retrying...", zap.Error(t.redact(err)))
		return fmt.Errorf("failed to send telegram request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read telegram response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		err = fmt.Errorf("telegram returned status %d with an unreadable body: %w", resp.StatusCode, err)
		if transient(resp.StatusCode) {
			return err
		}
		return backoff.Permanent(err)
	}
	if parsed.OK && resp.StatusCode == http.StatusOK {
		return nil
	}

	err = fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, parsed.Description)
	if !transient(resp.StatusCode) {
		return backoff.Permanent(err)
	}
	t.logger.Warn("Telegram API returned a transient error, retrying...",
		zap.Int("status", resp.StatusCode),
		zap.String("description", parsed.Description),
	)
	if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
		return t.waitRetryAfter(ctx, time.Duration(parsed.Parameters.RetryAfter)*time.Second, err)
	}
	return err
}

// waitRetryAfter holds off for the server-requested delay before the next attempt.
// A delay past the client timeout gives up immediately.
func (t *Telegram) waitRetryAfter(ctx context.Context, delay time.Duration, err error) error {
	if delay > t.timeout {
		return backoff.Permanent(fmt.Errorf("%w (retry after %s exceeds timeout %s)", err, delay, t.timeout))
	}
	t.logger.Debug("Honouring retry_after.", zap.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return err
	case <-ctx.Done():
		return backoff.Permanent(ctx.Err())
	}
}

func transient(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// redact strips the bot token from errors that embed the request URL.
func (t *Telegram) redact(err error) error {
	if err == nil || t.token == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, t.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(msg, t.token, "<redacted>"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
