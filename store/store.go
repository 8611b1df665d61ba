package store

import (
	"context"
	"errors"
	"fmt"

	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/redis"
	"tashkeela.com/diac/s3client"
	"tashkeela.com/diac/types"
)

// ErrNotFound is returned by Load when no model of the order has been saved.
var ErrNotFound = errors.New("model not found")

// Store persists whole models, one per context order.
type Store interface {
	Load(ctx context.Context, order int, tags types.TagSet) (*ngram.Model, error)
	Save(ctx context.Context, m *ngram.Model) error
}

// Open loads the saved model of the given order, or returns a fresh empty
// one when the store has none. loaded reports which happened.
func Open(ctx context.Context, s Store, order int, tags types.TagSet) (m *ngram.Model, loaded bool, err error) {
	m, err = s.Load(ctx, order, tags)
	switch {
	case err == nil:
		return m, true, nil
	case errors.Is(err, ErrNotFound):
		m, err = ngram.NewModel(order, tags)
		return m, false, err
	default:
		return nil, false, fmt.Errorf("load order %d model: %w", order, err)
	}
}

// BlobName is the object name of an order's model blob.
func BlobName(order int) string {
	return fmt.Sprintf("%dgram_model.json", order)
}

// FromConfig builds the store a run profile names. Redis and S3 stores read
// their connection settings from the environment. The returned close
// function releases whatever connection the store holds.
func FromConfig(cfg types.StoreConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case types.StoreFile:
		s, err := NewFileStore(cfg.Path)
		return s, noop, err
	case types.StoreSQLite:
		s, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case types.StoreRedis:
		client, err := redis.NewClientFromEnv()
		if err != nil {
			return nil, noop, fmt.Errorf("redis config: %w", err)
		}
		return NewRedisStore(client, cfg.Prefix), client.Close, nil
	case types.StoreS3:
		client, err := s3client.New()
		if err != nil {
			return nil, noop, fmt.Errorf("s3 config: %w", err)
		}
		return NewS3Store(client, cfg.Prefix), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}
}
