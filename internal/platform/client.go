// Package platform is a client for the community platform's REST API.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"levelup-engine/internal/config"
	"levelup-engine/internal/service"
)

const maxResponseBytes = 1 << 20

// ErrNoAPIKey is returned when the client is built without credentials.
var ErrNoAPIKey = errors.New("platform api key is not configured")

var _ service.ProfileResolver = (*Client)(nil)

// Client fetches user profiles from the platform.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new Client instance.
func NewClient(cfg *config.PlatformConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type userResponse struct {
	Username          string `json:"username"`
	Name              string `json:"name"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

// Resolve returns the user's display metadata. An unknown user yields a nil
// profile and no error.
func (c *Client) Resolve(ctx context.Context, userID string) (*service.Profile, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("platform returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user userResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}

	p := &service.Profile{Username: user.Username}
	if p.Username == "" {
		p.Username = user.Name
	}
	if user.ProfilePictureURL != "" {
		avatar := user.ProfilePictureURL
		p.AvatarURL = &avatar
	}
	return p, nil
}
