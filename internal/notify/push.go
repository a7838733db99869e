package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clinicore/clinic-platform/pkg/logging"
)

// ErrInvalidPushToken reports that the gateway rejected the device token;
// callers should invalidate the stored token.
var ErrInvalidPushToken = errors.New("push token is invalid")

// PushSender delivers device push notifications.
type PushSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// HTTPPushSender talks to an FCM-style HTTP push gateway.
type HTTPPushSender struct {
	gatewayURL string
	serverKey  string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewHTTPPushSender creates a push sender; nil when the gateway isn't configured.
func NewHTTPPushSender(gatewayURL, serverKey string, timeout time.Duration, logger *logging.Logger) *HTTPPushSender {
	if gatewayURL == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPushSender{
		gatewayURL: gatewayURL,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type pushPayload struct {
	To           string            `json:"to"`
	Notification pushNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Send posts one notification to the gateway. A 404 or 410 from the gateway
// means the token is dead and surfaces as ErrInvalidPushToken.
func (s *HTTPPushSender) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	payload, err := json.Marshal(pushPayload{
		To:           deviceToken,
		Notification: pushNotification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal push payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: push send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return ErrInvalidPushToken
	case resp.StatusCode >= 400:
		return fmt.Errorf("notify: push gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// StubPushSender logs instead of sending.
type StubPushSender struct {
	logger *logging.Logger
}

// NewStubPushSender creates a stub push sender.
func NewStubPushSender(logger *logging.Logger) *StubPushSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubPushSender{logger: logger}
}

// Send logs but doesn't send.
func (s *StubPushSender) Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error {
	s.logger.Info("stub push sender: would send", "title", title)
	return nil
}

var (
	_ PushSender = (*HTTPPushSender)(nil)
	_ PushSender = (*StubPushSender)(nil)
)
