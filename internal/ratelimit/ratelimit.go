package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Config struct {
	Limit int64 `mapstructure:"limit"`

	Window time.Duration `mapstructure:"window"`

	Prefix string `mapstructure:"prefix"`
}

type Result struct {
	Success bool

	Limit int64

	Remaining int64

	// Reset is the end of the current window in unix milliseconds.
	Reset int64
}

type Limiter interface {
	Limit(ctx context.Context, identifier string) (Result, error)
}

// the expiry is only armed by the first hit of a window
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local window = ARGV[1]
local count = redis.call("INCR", key)
if count == 1 then
	redis.call("PEXPIRE", key, window)
end
return count
`)

// FixedWindow counts hits per identifier in windows aligned to the unix epoch.
type FixedWindow struct {
	client redis.Scripter
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewFixedWindow(client redis.Scripter, cfg Config) *FixedWindow {
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	if cfg.Window <= 0 {
		cfg.Window = 1440 * time.Minute
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "imagen"
	}
	return &FixedWindow{
		client: client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
		now:    time.Now,
	}
}

func (l *FixedWindow) Limit(ctx context.Context, identifier string) (Result, error) {
	windowMs := l.window.Milliseconds()
	bucket := l.now().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%d", l.prefix, identifier, bucket)

	count, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMs).Int64()
	if err != nil {
		return Result{}, fmt.Errorf("failed to count request for %s: %w", identifier, err)
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Success:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     (bucket + 1) * windowMs,
	}, nil
}
