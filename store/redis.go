package store

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/ngram"
	diacredis "tashkeela.com/diac/redis"
	"tashkeela.com/diac/types"
)

const redisBatchSize = 1000

// RedisStore keeps each model in a hash whose fields are encoded keys and
// whose values are counts. A second hash carries the checksum.
type RedisStore struct {
	client *diacredis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisStore(client *diacredis.Client, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger.NewLogger("RedisStore"),
	}
}

func (s *RedisStore) ModelKey(order int) string {
	return fmt.Sprintf("%smodel:%d", s.prefix, order)
}

func (s *RedisStore) metaKey(order int) string {
	return s.ModelKey(order) + ":meta"
}

func (s *RedisStore) stagingKey(order int) string {
	return s.ModelKey(order) + ":staging"
}

// Load reads the checksum and the entries in one MULTI/EXEC so a concurrent
// Save cannot slip between the two reads.
func (s *RedisStore) Load(ctx context.Context, order int, tags types.TagSet) (*ngram.Model, error) {
	var metaCmd, fieldsCmd *goredis.StringStringMapCmd
	_, err := s.client.Universal().TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		metaCmd = pipe.HGetAll(ctx, s.metaKey(order))
		fieldsCmd = pipe.HGetAll(ctx, s.ModelKey(order))
		return nil
	})
	if err != nil {
		return nil, err
	}
	m, err := s.decode(order, tags, metaCmd.Val(), fieldsCmd.Val())
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Int("order", order).Int("entries", m.Len()).Msg("Loaded model")
	return m, nil
}

func (s *RedisStore) decode(order int, tags types.TagSet, meta, fields map[string]string) (*ngram.Model, error) {
	if len(meta) == 0 {
		return nil, fmt.Errorf("%s: %w", s.ModelKey(order), ErrNotFound)
	}
	want, err := strconv.ParseUint(meta["checksum"], 16, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: bad checksum %q: %w", s.metaKey(order), meta["checksum"], err)
	}
	m, err := ngram.NewModel(order, tags)
	if err != nil {
		return nil, err
	}
	for field, value := range fields {
		key, err := ngram.DecodeKey(field, order, tags)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.ModelKey(order), err)
		}
		count, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s field %q: %w", s.ModelKey(order), field, err)
		}
		if err := m.Add(key, count); err != nil {
			return nil, err
		}
	}
	if got := m.Fingerprint(); got != want {
		return nil, fmt.Errorf("model checksum mismatch: stored %x, computed %x", want, got)
	}
	return m, nil
}

// Save writes the model into a staging hash and renames it over the live
// one while holding the model's lock, so readers see the old or the new
// model and never a mix.
func (s *RedisStore) Save(ctx context.Context, m *ngram.Model) error {
	order := m.Order()
	release, err := s.client.Lock(ctx, s.ModelKey(order))
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to release model lock")
		}
	}()

	rdb := s.client.Universal()
	staging := s.stagingKey(order)
	if err := rdb.Del(ctx, staging).Err(); err != nil {
		return err
	}

	tags := m.Tags()
	entries := m.Entries()
	for start := 0; start < len(entries); start += redisBatchSize {
		end := start + redisBatchSize
		if end > len(entries) {
			end = len(entries)
		}
		values := make(map[string]interface{}, end-start)
		for _, e := range entries[start:end] {
			values[ngram.EncodeKey(e.Key, tags)] = e.Count
		}
		if err := rdb.HSet(ctx, staging, values).Err(); err != nil {
			return fmt.Errorf("write %s: %w", staging, err)
		}
	}

	_, err = rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(entries) == 0 {
			pipe.Del(ctx, s.ModelKey(order))
		} else {
			pipe.Rename(ctx, staging, s.ModelKey(order))
		}
		pipe.HSet(ctx, s.metaKey(order),
			"checksum", strconv.FormatUint(m.Fingerprint(), 16),
			"entries", len(entries),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", s.ModelKey(order), err)
	}
	s.logger.Info().Int("order", order).Int("entries", len(entries)).Msg("Saved model")
	return nil
}
