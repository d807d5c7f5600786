package history

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/haojie06/imagen-http/internal/model"
)

var ErrNotFound = errors.New("generation not found")

type Config struct {
	MaxEntries int64 `mapstructure:"maxEntries"`

	TTL time.Duration `mapstructure:"ttl"`

	Prefix string `mapstructure:"prefix"`
}

// Store keeps the latest generations of each client in a capped redis list,
// oldest first. A parallel list of image digests is trimmed in lockstep and
// used to skip images that are already in the history.
type Store struct {
	client     *redis.Client
	maxEntries int64
	ttl        time.Duration
	prefix     string
}

func NewStore(client *redis.Client, cfg Config) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 20
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "imagen"
	}
	return &Store{
		client:     client,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		prefix:     cfg.Prefix,
	}
}

func (s *Store) entriesKey(identifier string) string {
	return fmt.Sprintf("%s:history:%s", s.prefix, identifier)
}

func (s *Store) digestsKey(identifier string) string {
	return fmt.Sprintf("%s:history:%s:digests", s.prefix, identifier)
}

func digest(b64 string) string {
	sum := sha256.Sum256([]byte(b64))
	return hex.EncodeToString(sum[:])
}

// appendScript pushes an entry and its digest unless the digest is already
// listed, both lists are trimmed and expire together.
var appendScript = redis.NewScript(`
local entries = KEYS[1]
local digests = KEYS[2]
local digest = ARGV[1]
for _, existing in ipairs(redis.call("LRANGE", digests, 0, -1)) do
	if existing == digest then
		return 0
	end
end
redis.call("RPUSH", entries, ARGV[2])
redis.call("LTRIM", entries, ARGV[3], -1)
redis.call("PEXPIRE", entries, ARGV[4])
redis.call("RPUSH", digests, digest)
redis.call("LTRIM", digests, ARGV[3], -1)
redis.call("PEXPIRE", digests, ARGV[4])
return 1
`)

// Append reports false when the image is already in the history.
func (s *Store) Append(ctx context.Context, identifier string, generation model.Generation) (bool, error) {
	data, err := json.Marshal(generation)
	if err != nil {
		return false, fmt.Errorf("failed to marshal generation: %w", err)
	}

	keys := []string{s.entriesKey(identifier), s.digestsKey(identifier)}
	added, err := appendScript.Run(ctx, s.client, keys,
		digest(generation.Image.B64JSON), data, -s.maxEntries, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to store generation: %w", err)
	}
	return added == 1, nil
}

func (s *Store) List(ctx context.Context, identifier string) ([]model.Generation, error) {
	values, err := s.client.LRange(ctx, s.entriesKey(identifier), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	generations := make([]model.Generation, 0, len(values))
	for _, value := range values {
		var generation model.Generation
		if err := json.Unmarshal([]byte(value), &generation); err != nil {
			continue
		}
		generations = append(generations, generation)
	}
	return generations, nil
}

func (s *Store) Get(ctx context.Context, identifier, id string) (*model.Generation, error) {
	generations, err := s.List(ctx, identifier)
	if err != nil {
		return nil, err
	}
	for i := range generations {
		if generations[i].ID == id {
			return &generations[i], nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) Clear(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.entriesKey(identifier), s.digestsKey(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
