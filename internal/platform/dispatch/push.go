package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HTTPPushGateway delivers payloads to an FCM-style HTTP push backend.
// The gateway owns token validity: a push to a stale token comes back
// as an error here and is dropped upstream.
type HTTPPushGateway struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPPushGateway(url, apiKey string) *HTTPPushGateway {
	return &HTTPPushGateway{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type pushMessage struct {
	To       string          `json:"to"`
	Platform string          `json:"platform"`
	Data     json.RawMessage `json:"data"`
}

func (g *HTTPPushGateway) Push(ctx context.Context, target DeviceToken, payload []byte) error {
	body, err := json.Marshal(pushMessage{
		To:       target.Token,
		Platform: target.Platform,
		Data:     payload,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogPushGateway logs instead of delivering. Used when no push backend
// is configured, so the rest of the pipeline behaves identically in
// development.
type LogPushGateway struct {
	Logger zerolog.Logger
}

func (g *LogPushGateway) Push(_ context.Context, target DeviceToken, payload []byte) error {
	g.Logger.Info().
		Str("device_id", target.DeviceID).
		Str("platform", target.Platform).
		Int("bytes", len(payload)).
		Msg("push (log only)")
	return nil
}

// PushCall records a single call to Push.
type PushCall struct {
	Target  DeviceToken
	Payload []byte
}

// MockPushGateway is a test double for PushGateway.
type MockPushGateway struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
	Delay      time.Duration
}

// Push records the call, honoring Delay and context cancellation, and
// optionally returns an error.
func (m *MockPushGateway) Push(ctx context.Context, target DeviceToken, payload []byte) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{Target: target, Payload: payload})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPushGateway) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}
