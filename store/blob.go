package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/s3client"
	"tashkeela.com/diac/types"
)

// BlobBackend is an object store addressed by key.
type BlobBackend interface {
	Upload(ctx context.Context, key string, data []byte) error
	Download(ctx context.Context, key string) ([]byte, error)
}

// BlobStore keeps encoded models in a BlobBackend under Prefix.
type BlobStore struct {
	Backend BlobBackend
	Prefix  string
	// IsNotFound recognizes the backend's missing-object error.
	IsNotFound func(error) bool
}

// NewS3Store stores models in the client's bucket.
func NewS3Store(client *s3client.Client, prefix string) *BlobStore {
	return &BlobStore{
		Backend: client,
		Prefix:  prefix,
		IsNotFound: func(err error) bool {
			return errors.Is(err, s3client.ErrNotFound)
		},
	}
}

func (s *BlobStore) Key(order int) string {
	return path.Join(s.Prefix, BlobName(order))
}

func (s *BlobStore) Load(ctx context.Context, order int, tags types.TagSet) (*ngram.Model, error) {
	data, err := s.Backend.Download(ctx, s.Key(order))
	if err != nil {
		if errors.Is(err, ErrNotFound) || (s.IsNotFound != nil && s.IsNotFound(err)) {
			return nil, fmt.Errorf("%s: %w", s.Key(order), ErrNotFound)
		}
		return nil, err
	}
	m, err := ngram.Decode(bytes.NewReader(data), tags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Key(order), err)
	}
	if m.Order() != order {
		return nil, fmt.Errorf("%s holds an order %d model", s.Key(order), m.Order())
	}
	return m, nil
}

func (s *BlobStore) Save(ctx context.Context, m *ngram.Model) error {
	var buf bytes.Buffer
	if err := ngram.Encode(&buf, m); err != nil {
		return err
	}
	return s.Backend.Upload(ctx, s.Key(m.Order()), buf.Bytes())
}

// MemoryBackend is an in-process BlobBackend.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (b *MemoryBackend) Upload(_ context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	b.mu.Lock()
	b.objects[key] = cp
	b.mu.Unlock()
	return nil
}

func (b *MemoryBackend) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// NewMemoryStore is a BlobStore that lives only as long as the process.
func NewMemoryStore() *BlobStore {
	return &BlobStore{Backend: NewMemoryBackend()}
}
