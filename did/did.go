package did

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("talking avatar service is not configured")

type (
	Config struct {
		APIURL string
		// APIKey is sent as-is after "Basic ".
		APIKey    string
		SourceURL string
		VoiceID   string
		Timeout   time.Duration
	}

	// Client talks to the D-ID talks API. Responses are passed through as
	// decoded JSON objects.
	Client struct {
		cfg  Config
		http *http.Client
	}

	createTalkRequest struct {
		SourceURL string `json:"source_url"`
		Script    script `json:"script"`
	}

	script struct {
		Type     string   `json:"type"`
		Input    string   `json:"input"`
		Provider provider `json:"provider"`
	}

	provider struct {
		Type    string `json:"type"`
		VoiceID string `json:"voice_id"`
	}
)

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIURL == "" || cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

func (c *Client) CreateTalk(ctx context.Context, scriptText string) (map[string]any, error) {
	body, err := json.Marshal(createTalkRequest{
		SourceURL: c.cfg.SourceURL,
		Script: script{
			Type:  "text",
			Input: scriptText,
			Provider: provider{
				Type:    "microsoft",
				VoiceID: c.cfg.VoiceID,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create talk: encoding request: %w", err)
	}

	res, err := c.do(ctx, http.MethodPost, "/talks", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create talk: %w", err)
	}
	return res, nil
}

func (c *Client) GetTalk(ctx context.Context, id string) (map[string]any, error) {
	res, err := c.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get talk %s: %w", id, err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.cfg.APIURL, "/")+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("d-id http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	res := map[string]any{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return res, nil
}

// StringField returns m[key] when it is a non-empty string.
func StringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
