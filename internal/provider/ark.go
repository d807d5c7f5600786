package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

// Ark generates through Volcengine Ark (Seedream models).
type Ark struct {
	baseURL string
	timeout time.Duration
}

func NewArk(cfg Config) *Ark {
	return &Ark{
		baseURL: cfg.BaseURL,
		timeout: timeoutOrDefault(cfg.Timeout),
	}
}

func (p *Ark) Name() string {
	return NameArk
}

func (p *Ark) Generate(ctx context.Context, req Request) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var client *arkruntime.Client
	if p.baseURL != "" {
		client = arkruntime.NewClientWithApiKey(req.APIKey, arkruntime.WithBaseUrl(p.baseURL))
	} else {
		client = arkruntime.NewClientWithApiKey(req.APIKey)
	}

	generateReq := model.GenerateImagesRequest{
		Model:          req.Model,
		Prompt:         req.Prompt,
		Size:           volcengine.String(fmt.Sprintf("%dx%d", req.Width, req.Height)),
		ResponseFormat: volcengine.String("b64_json"),
		Watermark:      volcengine.Bool(false),
	}
	if req.Seed != nil {
		generateReq.Seed = volcengine.Int64(*req.Seed)
	}

	start := time.Now()
	resp, err := client.GenerateImages(ctx, generateReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call ark GenerateImages: %w", err)
	}
	if resp.Error != nil {
		return nil, &APIError{
			Provider: NameArk,
			Message:  fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message),
		}
	}
	if len(resp.Data) == 0 || resp.Data[0].B64Json == nil || *resp.Data[0].B64Json == "" {
		return nil, fmt.Errorf("no base64 image data in response")
	}

	return &Image{
		Index:     0,
		B64JSON:   *resp.Data[0].B64Json,
		Inference: time.Since(start).Seconds(),
	}, nil
}
