package localcatalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediasearch/searchservice/internal/domain"
)

const defaultStoreKey = "msearch:catalog:v1"

// Store persists the catalog index between restarts.
type Store interface {
	Load(ctx context.Context) ([]domain.CatalogEntry, error)
	Save(ctx context.Context, entries []domain.CatalogEntry) error
}

type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultStoreKey
	}
	return &RedisStore{client: client, key: storeKey}
}

// Load returns nil without error when nothing has been indexed yet.
func (s *RedisStore) Load(ctx context.Context) ([]domain.CatalogEntry, error) {
	if s == nil || s.client == nil {
		return nil, nil
	}
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var entries []domain.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *RedisStore) Save(ctx context.Context, entries []domain.CatalogEntry) error {
	if s == nil || s.client == nil {
		return nil
	}
	if entries == nil {
		entries = []domain.CatalogEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, data, 0)
		pipe.Set(ctx, s.key+":updated", time.Now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	return err
}

// UpdatedAt reports when the index was last saved.
func (s *RedisStore) UpdatedAt(ctx context.Context) (time.Time, error) {
	if s == nil || s.client == nil {
		return time.Time{}, nil
	}
	raw, err := s.client.Get(ctx, s.key+":updated").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}
