package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

// FileStore keeps one JSON blob per order in a directory.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) Path(order int) string {
	return filepath.Join(s.Dir, BlobName(order))
}

func (s *FileStore) Load(_ context.Context, order int, tags types.TagSet) (*ngram.Model, error) {
	f, err := os.Open(s.Path(order))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", s.Path(order), ErrNotFound)
		}
		return nil, err
	}
	defer f.Close()

	m, err := ngram.Decode(f, tags)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Path(order), err)
	}
	if m.Order() != order {
		return nil, fmt.Errorf("%s holds an order %d model", s.Path(order), m.Order())
	}
	return m, nil
}

func (s *FileStore) Save(_ context.Context, m *ngram.Model) error {
	return utils.WriteFileAtomic(s.Path(m.Order()), func(w io.Writer) error {
		return ngram.Encode(w, m)
	})
}
