package model

type GenerateImageRequest struct {
	// pointers so that an empty prompt and a false mode still count as present
	Prompt *string `json:"prompt" binding:"required"`

	IterativeMode *bool `json:"iterativeMode" binding:"required"`

	UserAPIKey string `json:"userAPIKey"`
}

type Timings struct {
	Inference float64 `json:"inference"` // seconds
}

type ImageResponse struct {
	Index int `json:"index"`

	B64JSON string `json:"b64_json"`

	Timings Timings `json:"timings"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Generation struct {
	ID string `json:"id"`

	Prompt string `json:"prompt"`

	IterativeMode bool `json:"iterativeMode"`

	Image ImageResponse `json:"image"`

	CreatedAt int64 `json:"createdAt"`
}

type HistoryResponse struct {
	Generations []Generation `json:"generations"`
}

type HealthResponse struct {
	Status string `json:"status"`

	Provider string `json:"provider"`

	RateLimit bool `json:"rateLimit"`
}
