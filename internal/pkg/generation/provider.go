package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/env"
)

// Provider is the opaque image-generation collaborator: one synchronous call
// that either returns a URL to the rendered cover or fails. Credit
// consumption is decided by the caller strictly after a successful return.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// HTTPProvider calls a configured generation endpoint that accepts a prompt
// and responds with an image URL.
type HTTPProvider struct {
	Endpoint string
	APIKey   string

	HTTPClient *http.Client
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type generateResponse struct {
	ImageURL string `json:"image_url"`
	Error    string `json:"error,omitempty"`
}

// NewProviderFromEnv builds the HTTP provider from environment configuration.
func NewProviderFromEnv() *HTTPProvider {
	return &HTTPProvider{
		Endpoint: strings.TrimSpace(env.GetEnv("GENERATION_API_URL", "")),
		APIKey:   strings.TrimSpace(env.GetEnv("GENERATION_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (p *HTTPProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if p.Endpoint == "" {
		return "", errors.New("GENERATION_API_URL is not configured")
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt, Size: "1080x1920"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generation provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generation provider error: %s", out.Error)
	}
	if strings.TrimSpace(out.ImageURL) == "" {
		return "", errors.New("generation provider returned no image url")
	}
	return out.ImageURL, nil
}
