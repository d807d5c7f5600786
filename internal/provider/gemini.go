package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/haojie06/imagen-http/internal/logger"
	"google.golang.org/genai"
)

// Gemini generates through the Imagen models of the Gemini API.
type Gemini struct {
	baseURL string
	timeout time.Duration
}

func NewGemini(cfg Config) *Gemini {
	return &Gemini{
		baseURL: cfg.BaseURL,
		timeout: timeoutOrDefault(cfg.Timeout),
	}
}

func (p *Gemini) Name() string {
	return NameGemini
}

func (p *Gemini) Generate(ctx context.Context, req Request) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	clientConfig := &genai.ClientConfig{
		APIKey:  req.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{
			BaseURL: p.baseURL,
		}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	// the Gemini API backend rejects seeds, consistency mode falls back to random seeds
	if req.Seed != nil {
		logger.FromContext(ctx).Debugf("gemini ignores seed %d", *req.Seed)
	}

	start := time.Now()
	resp, err := client.Models.GenerateImages(ctx, req.Model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio(req.Width, req.Height),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("no image in response")
	}
	generated := resp.GeneratedImages[0]
	if generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
		if generated.RAIFilteredReason != "" {
			return nil, &APIError{Provider: NameGemini, Message: generated.RAIFilteredReason}
		}
		return nil, fmt.Errorf("no image data in response")
	}

	return &Image{
		Index:     0,
		B64JSON:   base64.StdEncoding.EncodeToString(generated.Image.ImageBytes),
		Inference: time.Since(start).Seconds(),
	}, nil
}

// aspectRatio maps a size onto the closest ratio Imagen accepts.
func aspectRatio(width, height int) string {
	if width <= 0 || height <= 0 {
		return "1:1"
	}
	ratios := []struct {
		name  string
		value float64
	}{
		{"1:1", 1},
		{"3:4", 3.0 / 4.0},
		{"4:3", 4.0 / 3.0},
		{"9:16", 9.0 / 16.0},
		{"16:9", 16.0 / 9.0},
	}
	target := float64(width) / float64(height)
	best := ratios[0]
	for _, r := range ratios[1:] {
		if abs(r.value-target) < abs(best.value-target) {
			best = r
		}
	}
	return best.name
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
