package imagen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/haojie06/imagen-http/internal/archive"
	"github.com/haojie06/imagen-http/internal/cache"
	"github.com/haojie06/imagen-http/internal/history"
	"github.com/haojie06/imagen-http/internal/logger"
	"github.com/haojie06/imagen-http/internal/model"
	"github.com/haojie06/imagen-http/internal/provider"
	"github.com/haojie06/imagen-http/internal/ratelimit"
)

var (
	ErrNoAPIKey         = fmt.Errorf("No API key available. Please provide a Together API key.")
	ErrTooManyRequests  = fmt.Errorf("No requests left. Please add your own API Key or try again in 24h")
	ErrHistoryDisabled  = fmt.Errorf("history is disabled")
	ErrGenerationFailed = fmt.Errorf("Failed to generate image")
)

type GenerationConfig struct {
	Model string `mapstructure:"model"`

	Width int `mapstructure:"width"`

	Height int `mapstructure:"height"`

	Steps int `mapstructure:"steps"`

	// Seed is pinned for iterative (consistency) mode.
	Seed int64 `mapstructure:"seed"`
}

type GenerateInput struct {
	Prompt string

	IterativeMode bool

	UserAPIKey string

	// ClientID keys the rate limit and the history.
	ClientID string
}

type GenerateOutput struct {
	Image model.ImageResponse

	// RateLimit is nil when the limiter was not consulted.
	RateLimit *ratelimit.Result

	Cached bool
}

type Service struct {
	provider      provider.Provider
	defaultAPIKey string
	generation    GenerationConfig
	limiter       ratelimit.Limiter
	cache         *cache.ImageCache
	history       *history.Store
	archiver      *archive.Archiver
	now           func() time.Time
}

type Option func(*Service)

func WithLimiter(limiter ratelimit.Limiter) Option {
	return func(s *Service) {
		s.limiter = limiter
	}
}

func WithCache(c *cache.ImageCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithHistory(store *history.Store) Option {
	return func(s *Service) {
		s.history = store
	}
}

func WithArchiver(archiver *archive.Archiver) Option {
	return func(s *Service) {
		s.archiver = archiver
	}
}

func NewService(p provider.Provider, defaultAPIKey string, generation GenerationConfig, opts ...Option) *Service {
	s := &Service{
		provider:      p,
		defaultAPIKey: defaultAPIKey,
		generation:    generation,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func (s *Service) RateLimited() bool {
	return s.limiter != nil
}

func (s *Service) HistoryEnabled() bool {
	return s.history != nil
}

// Generate validates the key, applies the rate limit to callers without their
// own key and forwards the prompt to the provider.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	log := logger.FromContext(ctx)

	apiKey := in.UserAPIKey
	if apiKey == "" {
		apiKey = s.defaultAPIKey
	}
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	out := &GenerateOutput{}
	if s.limiter != nil && in.UserAPIKey == "" {
		result, err := s.limiter.Limit(ctx, in.ClientID)
		if err != nil {
			return nil, err
		}
		out.RateLimit = &result
		if !result.Success {
			log.Warnf("rate limit exceeded for %s", in.ClientID)
			return out, ErrTooManyRequests
		}
	}

	var seed *int64
	if in.IterativeMode {
		pinned := s.generation.Seed
		seed = &pinned
	}

	var cacheKey []byte
	if s.cache != nil && seed != nil {
		cacheKey = cache.Key(s.generation.Model, in.Prompt, *seed)
		if image, ok := s.cache.Get(cacheKey); ok {
			log.Infof("Serving cached image for prompt: %s", in.Prompt)
			out.Image = *image
			out.Cached = true
			s.record(ctx, in, out.Image)
			return out, nil
		}
	}

	log.Infof("Generating image with prompt: %s", in.Prompt)
	image, err := s.provider.Generate(ctx, provider.Request{
		Prompt: in.Prompt,
		Model:  s.generation.Model,
		Width:  s.generation.Width,
		Height: s.generation.Height,
		Steps:  s.generation.Steps,
		Seed:   seed,
		APIKey: apiKey,
		BYOK:   in.UserAPIKey != "",
	})
	if err != nil {
		log.Errorf("Error generating image: %s", err)
		if err.Error() == "" {
			return out, ErrGenerationFailed
		}
		return out, err
	}
	log.Infof("Image generated successfully")

	out.Image = model.ImageResponse{
		Index:   image.Index,
		B64JSON: image.B64JSON,
		Timings: model.Timings{Inference: image.Inference},
	}
	if cacheKey != nil {
		if err := s.cache.Set(cacheKey, out.Image); err != nil {
			if cache.IsTooLarge(err) {
				log.Debugf("image too large to cache")
			} else {
				log.Warnf("failed to cache image: %s", err)
			}
		}
	}
	s.record(ctx, in, out.Image)
	return out, nil
}

// record appends to the history and hands the image to the archiver, neither
// can fail the request.
func (s *Service) record(ctx context.Context, in GenerateInput, image model.ImageResponse) {
	if s.history == nil && s.archiver == nil {
		return
	}
	generation := model.Generation{
		ID:            uuid.New().String(),
		Prompt:        in.Prompt,
		IterativeMode: in.IterativeMode,
		Image:         image,
		CreatedAt:     s.now().Unix(),
	}
	if s.history != nil {
		if _, err := s.history.Append(ctx, in.ClientID, generation); err != nil {
			logger.FromContext(ctx).Warnf("failed to record history: %s", err)
		}
	}
	if s.archiver != nil {
		s.archiver.Submit(generation)
	}
}

func (s *Service) History(ctx context.Context, clientID string) ([]model.Generation, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.List(ctx, clientID)
}

func (s *Service) HistoryEntry(ctx context.Context, clientID, id string) (*model.Generation, error) {
	if s.history == nil {
		return nil, ErrHistoryDisabled
	}
	return s.history.Get(ctx, clientID, id)
}

func (s *Service) ClearHistory(ctx context.Context, clientID string) error {
	if s.history == nil {
		return ErrHistoryDisabled
	}
	return s.history.Clear(ctx, clientID)
}

// IsClientError reports errors caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNoAPIKey)
}
