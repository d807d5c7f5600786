package cache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coocood/freecache"
	"github.com/haojie06/imagen-http/internal/model"
)

type Config struct {
	SizeMB int `mapstructure:"sizeMB"`

	TTL time.Duration `mapstructure:"ttl"`
}

// ImageCache keeps decoded images of seeded generations, a seeded request
// for the same model and prompt yields the same image.
type ImageCache struct {
	cache *freecache.Cache
	ttl   time.Duration
}

// New returns nil when the cache is disabled.
func New(cfg Config) *ImageCache {
	if cfg.SizeMB <= 0 {
		return nil
	}
	return &ImageCache{
		cache: freecache.NewCache(cfg.SizeMB * 1024 * 1024),
		ttl:   cfg.TTL,
	}
}

func Key(modelName, prompt string, seed int64) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%d\x00%s", modelName, seed, prompt)))
	return sum[:]
}

func (c *ImageCache) Get(key []byte) (*model.ImageResponse, bool) {
	value, err := c.cache.Get(key)
	if err != nil || len(value) < 8 {
		return nil, false
	}
	inference := math.Float64frombits(binary.BigEndian.Uint64(value[:8]))
	return &model.ImageResponse{
		Index:   0,
		B64JSON: base64.StdEncoding.EncodeToString(value[8:]),
		Timings: model.Timings{Inference: inference},
	}, true
}

// Set stores the raw image bytes. Images larger than 1/1024 of the cache
// size are rejected by freecache with ErrLargeEntry.
func (c *ImageCache) Set(key []byte, image model.ImageResponse) error {
	raw, err := base64.StdEncoding.DecodeString(image.B64JSON)
	if err != nil {
		return fmt.Errorf("image is not valid base64: %w", err)
	}
	value := make([]byte, 8+len(raw))
	binary.BigEndian.PutUint64(value[:8], math.Float64bits(image.Timings.Inference))
	copy(value[8:], raw)
	return c.cache.Set(key, value, int(c.ttl.Seconds()))
}

func IsTooLarge(err error) bool {
	return errors.Is(err, freecache.ErrLargeEntry)
}

func (c *ImageCache) EntryCount() int64 {
	return c.cache.EntryCount()
}
