package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/haojie06/imagen-http/internal/archive"
	"github.com/haojie06/imagen-http/internal/cache"
	"github.com/haojie06/imagen-http/internal/history"
	"github.com/haojie06/imagen-http/internal/imagen"
	"github.com/haojie06/imagen-http/internal/logger"
	"github.com/haojie06/imagen-http/internal/provider"
	"github.com/haojie06/imagen-http/internal/ratelimit"
	"github.com/haojie06/imagen-http/internal/server"
	"github.com/haojie06/imagen-http/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "IMAGEN"

type Config struct {
	Server server.Config `mapstructure:"server"`

	Provider provider.Config `mapstructure:"provider"`

	Generation imagen.GenerationConfig `mapstructure:"generation"`

	// Redis backs both the rate limiter and the history; empty addr disables them.
	Redis store.RedisConfig `mapstructure:"redis"`

	RateLimit ratelimit.Config `mapstructure:"rateLimit"`

	Cache cache.Config `mapstructure:"cache"`

	History history.Config `mapstructure:"history"`

	Archive archive.Config `mapstructure:"archive"`

	Log logger.Config `mapstructure:"log"`
}

// well-known variable names from the hosted deployment
var envBindings = map[string]string{
	"provider.apiKey":         "TOGETHER_API_KEY",
	"provider.heliconeAPIKey": "HELICONE_API_KEY",
	"provider.baseURL":        "TOGETHER_BASE_URL",
	"provider.name":           "IMAGEN_PROVIDER",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"archive.bucket":          "ARCHIVE_BUCKET",
	"server.host":             "SERVER_HOST",
	"server.port":             "SERVER_PORT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "9000")
	v.SetDefault("server.pprof", false)
	v.SetDefault("server.allowOrigins", []string{"*"})
	v.SetDefault("server.shutdownTimeout", "10s")

	v.SetDefault("provider.name", provider.NameTogether)
	v.SetDefault("provider.apiKey", "")
	v.SetDefault("provider.baseURL", "")
	v.SetDefault("provider.heliconeAPIKey", "")
	v.SetDefault("provider.timeout", "60s")

	v.SetDefault("generation.model", "")
	v.SetDefault("generation.width", 1024)
	v.SetDefault("generation.height", 768)
	v.SetDefault("generation.steps", 3)
	v.SetDefault("generation.seed", 123)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rateLimit.limit", 100)
	v.SetDefault("rateLimit.window", "1440m")
	v.SetDefault("rateLimit.prefix", "imagen")

	v.SetDefault("cache.sizeMB", 256)
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("history.maxEntries", 20)
	v.SetDefault("history.ttl", "24h")
	v.SetDefault("history.prefix", "imagen")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.accessKey", "")
	v.SetDefault("archive.secretKey", "")
	v.SetDefault("archive.prefix", "generations/")
	v.SetDefault("archive.workers", 2)
	v.SetDefault("archive.queueSize", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxSizeMB", 100)
	v.SetDefault("log.maxBackups", 7)
	v.SetDefault("log.maxAgeDays", 7)
}

// Load reads .env, then config.yaml from the first path containing one, then
// the environment. A missing config file is not an error.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Debug("no config file found, using defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = provider.DefaultModel(cfg.Provider.Name)
	}
	return &cfg, nil
}
