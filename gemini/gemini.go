package gemini

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

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

var ErrNoAPIKey = errors.New("gemini API key is required")

type (
	// GenerationConfig is the subset of sampling options the client sends.
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		TopP            float64 `json:"top_p"`
		TopK            int     `json:"top_k"`
		MaxOutputTokens int     `json:"max_output_tokens"`
	}

	// GenerationOverrides replaces single options of the client's
	// GenerationConfig for one call. Nil fields keep the client's value.
	GenerationOverrides struct {
		Temperature     *float64 `json:"temperature"`
		TopP            *float64 `json:"top_p"`
		TopK            *int     `json:"top_k"`
		MaxOutputTokens *int     `json:"max_output_tokens"`
	}

	Config struct {
		APIKey     string
		BaseURL    string
		Model      string
		Timeout    time.Duration
		Generation GenerationConfig
		Retry      RetryPolicy
	}

	Client struct {
		cfg  Config
		http *http.Client
	}
)

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     1.0,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

// With returns g with every option set in o applied.
func (g GenerationConfig) With(o *GenerationOverrides) GenerationConfig {
	if o == nil {
		return g
	}
	if o.Temperature != nil {
		g.Temperature = *o.Temperature
	}
	if o.TopP != nil {
		g.TopP = *o.TopP
	}
	if o.TopK != nil {
		g.TopK = *o.TopK
	}
	if o.MaxOutputTokens != nil {
		g.MaxOutputTokens = *o.MaxOutputTokens
	}
	return g
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Generation == (GenerationConfig{}) {
		cfg.Generation = DefaultGenerationConfig()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Gemini REST types
type (
	generateRequest struct {
		Contents         []content        `json:"contents"`
		GenerationConfig generationConfig `json:"generationConfig"`
	}

	generationConfig struct {
		Temperature     float64 `json:"temperature"`
		TopP            float64 `json:"topP"`
		TopK            int     `json:"topK"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	}

	content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}

	part struct {
		Text string `json:"text"`
	}

	generateResponse struct {
		Candidates []struct {
			Content      content `json:"content"`
			FinishReason string  `json:"finishReason"`
		} `json:"candidates"`
		PromptFeedback struct {
			BlockReason string `json:"blockReason"`
		} `json:"promptFeedback"`
	}

	errorResponse struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
)

// Generate sends prompt to the model, retrying transient failures with the
// client's policy. Options missing from o keep the client's configured value.
func (c *Client) Generate(ctx context.Context, prompt string, o *GenerationOverrides) (string, error) {
	g := c.cfg.Generation.With(o)

	return Retry(ctx, c.cfg.Retry, func(ctx context.Context) (string, error) {
		text, err := c.generate(ctx, prompt, g)
		return text, Classify(err)
	})
}

func (c *Client) generate(ctx context.Context, prompt string, g GenerationConfig) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     g.Temperature,
			TopP:            g.TopP,
			TopK:            g.TopK,
			MaxOutputTokens: g.MaxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: encoding request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, raw)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("gemini: decoding response: %w", err)
	}
	if gr.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", gr.PromptFeedback.BlockReason)
	}
	if len(gr.Candidates) == 0 {
		return "", errors.New("gemini: no candidates in response")
	}

	var sb strings.Builder
	for _, p := range gr.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func statusError(code int, raw []byte) error {
	msg := strings.TrimSpace(string(raw))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("gemini: rate limit exceeded (%d): %s", code, msg)
	case code >= 500:
		return fmt.Errorf("gemini: server error (%d): %s", code, msg)
	default:
		return fmt.Errorf("gemini: request failed (%d): %s", code, msg)
	}
}
