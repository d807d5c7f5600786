package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTogetherBaseURL  = "https://api.together.xyz/v1"
	HeliconeTogetherBaseURL = "https://together.helicone.ai/v1"
)

type Together struct {
	baseURL        string
	heliconeAPIKey string
	httpClient     *http.Client
}

type togetherImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
	Seed           *int64 `json:"seed,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type togetherImageResponse struct {
	ID     string `json:"id"`
	Model  string `json:"model"`
	Object string `json:"object"`
	Data   []struct {
		Index   int    `json:"index"`
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
		Timings *struct {
			Inference float64 `json:"inference"`
		} `json:"timings"`
	} `json:"data"`
}

// NewTogether routes through the Helicone proxy when a Helicone key is configured.
func NewTogether(cfg Config) *Together {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultTogetherBaseURL
	}
	if cfg.HeliconeAPIKey != "" {
		baseURL = HeliconeTogetherBaseURL
	}
	return &Together{
		baseURL:        strings.TrimRight(baseURL, "/"),
		heliconeAPIKey: cfg.HeliconeAPIKey,
		httpClient: &http.Client{
			Timeout: timeoutOrDefault(cfg.Timeout),
		},
	}
}

func (p *Together) Name() string {
	return NameTogether
}

func (p *Together) Generate(ctx context.Context, req Request) (*Image, error) {
	requestBody, err := json.Marshal(togetherImageRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		Seed:           req.Seed,
		ResponseFormat: "base64",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/images/generations", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	if p.heliconeAPIKey != "" {
		httpReq.Header.Set("Helicone-Auth", "Bearer "+p.heliconeAPIKey)
		httpReq.Header.Set("Helicone-Property-BYOK", fmt.Sprintf("%t", req.BYOK))
	}

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			Provider:   NameTogether,
			StatusCode: resp.StatusCode,
			Message:    ErrorMessage(resp.StatusCode, body),
		}
	}

	var result togetherImageResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("no image in response")
	}
	first := result.Data[0]
	if first.B64JSON == "" {
		return nil, fmt.Errorf("no base64 image data in response")
	}

	image := &Image{
		Index:     first.Index,
		B64JSON:   first.B64JSON,
		Inference: time.Since(start).Seconds(),
	}
	if first.Timings != nil {
		image.Inference = first.Timings.Inference
	}
	return image, nil
}
