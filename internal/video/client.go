// Package video provisions rooms and participant tokens against the external
// communications provider.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-platform/internal/appointments"
	"github.com/clinicore/clinic-platform/pkg/logging"
)

// Config carries the provider credentials and the public base URL join links
// are built from.
type Config struct {
	BaseURL       string
	APIKey        string
	AppID         string
	TokenTTL      time.Duration
	PublicBaseURL string
}

// Client talks to the communications provider's REST API. It implements
// appointments.VideoProvisioner.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *logging.Logger
}

var _ appointments.VideoProvisioner = (*Client)(nil)

func NewClient(cfg Config, timeout time.Duration, logger *logging.Logger) *Client {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type createUserRequest struct {
	UserID string `json:"userId"`
	AppID  string `json:"appId"`
}

type issueTokenRequest struct {
	UserID     string `json:"userId"`
	AppID      string `json:"appId"`
	Scope      string `json:"scope"`
	TTLSeconds int64  `json:"ttlSeconds"`
}

type issueTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("video: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("video: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("video: %s: provider returned %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("video: decode %s response: %w", path, err)
		}
	}
	return nil
}

// createParticipant registers one provider identity and issues its first token.
func (c *Client) createParticipant(ctx context.Context, commUserID string) (appointments.VideoCredential, error) {
	if err := c.post(ctx, "/users", createUserRequest{UserID: commUserID, AppID: c.cfg.AppID}, nil); err != nil {
		return appointments.VideoCredential{}, err
	}
	return c.issueToken(ctx, commUserID)
}

func (c *Client) issueToken(ctx context.Context, commUserID string) (appointments.VideoCredential, error) {
	var out issueTokenResponse
	err := c.post(ctx, "/tokens", issueTokenRequest{
		UserID:     commUserID,
		AppID:      c.cfg.AppID,
		Scope:      "voip",
		TTLSeconds: int64(c.cfg.TokenTTL.Seconds()),
	}, &out)
	if err != nil {
		return appointments.VideoCredential{}, err
	}
	cred := appointments.VideoCredential{UserID: commUserID, Token: out.Token}
	if !out.ExpiresAt.IsZero() {
		expires := out.ExpiresAt
		cred.ExpiresAt = &expires
	} else {
		expires := time.Now().Add(c.cfg.TokenTTL)
		cred.ExpiresAt = &expires
	}
	return cred, nil
}

// CreateRoom provisions a room with fresh identities for both participants.
func (c *Client) CreateRoom(ctx context.Context) (*appointments.VideoRoom, error) {
	roomID := uuid.NewString()

	patient, err := c.createParticipant(ctx, "patient-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("video: provision patient identity: %w", err)
	}
	doctor, err := c.createParticipant(ctx, "doctor-"+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("video: provision doctor identity: %w", err)
	}

	return &appointments.VideoRoom{
		RoomID:  roomID,
		Link:    fmt.Sprintf("%s/video-call/%s", c.cfg.PublicBaseURL, roomID),
		Patient: patient,
		Doctor:  doctor,
	}, nil
}

// RenewToken issues a replacement token for an existing identity.
func (c *Client) RenewToken(ctx context.Context, commUserID string) (appointments.VideoCredential, error) {
	return c.issueToken(ctx, commUserID)
}
