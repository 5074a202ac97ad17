// internal/notifications/line.go - LINE Messaging API sink
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
)

const (
	LinePushURL = "https://api.line.me/v2/bot/message/push"
	UserAgent   = "domainmon/1.0"
)

// LineSink pushes messages through the LINE Messaging API.
type LineSink struct {
	token      string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type LineOption func(*LineSink)

func WithLineHTTPClient(c *http.Client) LineOption {
	return func(s *LineSink) { s.httpClient = c }
}

func NewLineSink(cfg config.LineConfig, opts ...LineOption) (*LineSink, error) {
	if cfg.ChannelAccessToken == "" {
		return nil, fmt.Errorf("channel access token is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = LinePushURL
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	s := &LineSink{
		token:    cfg.ChannelAccessToken,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *LineSink) Name() string { return "line" }

type linePush struct {
	To       string            `json:"to"`
	Messages []json.RawMessage `json:"messages"`
}

type lineText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *LineSink) buildPayload(recipient string, msg Message) ([]byte, error) {
	push := linePush{To: recipient}
	if msg.Text != "" {
		text, err := json.Marshal(lineText{Type: "text", Text: msg.Text})
		if err != nil {
			return nil, err
		}
		push.Messages = append(push.Messages, text)
	}
	if len(msg.Template) > 0 {
		if !json.Valid(msg.Template) {
			return nil, fmt.Errorf("template is not valid JSON")
		}
		push.Messages = append(push.Messages, msg.Template)
	}
	if len(push.Messages) == 0 {
		return nil, fmt.Errorf("message has neither text nor template")
	}
	return json.Marshal(push)
}

func (s *LineSink) Send(ctx context.Context, recipient string, msg Message) error {
	if recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	body, err := s.buildPayload(recipient, msg)
	if err != nil {
		return fmt.Errorf("failed to build payload: %w", err)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("LINE API error: status %d, body: %s", resp.StatusCode, string(excerpt))
	}

	logrus.WithField("recipient", recipient).Info("LINE notification sent")
	return nil
}

func (s *LineSink) Close() error { return nil }
