package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/utils"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ngram_models (
	ord INTEGER PRIMARY KEY,
	checksum TEXT NOT NULL,
	entries INTEGER NOT NULL,
	saved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS ngram_counts (
	ord INTEGER NOT NULL,
	context TEXT NOT NULL,
	ch TEXT NOT NULL,
	tag TEXT NOT NULL,
	count INTEGER NOT NULL,
	PRIMARY KEY (ord, context, ch, tag)
);
`

// SQLiteStore keeps one row per count, so a model can be inspected with SQL.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context, order int, tags types.TagSet) (*ngram.Model, error) {
	var checksum string
	err := s.db.QueryRowContext(ctx, `SELECT checksum FROM ngram_models WHERE ord = ?`, order).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s order %d: %w", s.dbPath, order, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	want, err := strconv.ParseUint(checksum, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("bad checksum %q: %w", checksum, err)
	}

	m, err := ngram.NewModel(order, tags)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT context, ch, tag, count FROM ngram_counts WHERE ord = ?`, order)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var ctxText, ch, tagSym string
		var count int64
		if err := rows.Scan(&ctxText, &ch, &tagSym, &count); err != nil {
			return nil, err
		}
		r, size := utf8.DecodeRuneInString(ch)
		if size == 0 || size != len(ch) {
			return nil, fmt.Errorf("invalid character %q", ch)
		}
		tag, err := tags.ParseSymbol(tagSym)
		if err != nil {
			return nil, err
		}
		if err := m.Add(ngram.Key{Context: ctxText, Char: r, Tag: tag}, uint64(count)); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if got := m.Fingerprint(); got != want {
		return nil, fmt.Errorf("model checksum mismatch: stored %x, computed %x", want, got)
	}
	return m, nil
}

// Save replaces every row of the model's order in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, m *ngram.Model) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM ngram_counts WHERE ord = ?`, m.Order()); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO ngram_counts (ord, context, ch, tag, count) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	tags := m.Tags()
	entries := m.Entries()
	for _, e := range entries {
		if _, err = stmt.ExecContext(ctx, m.Order(), e.Context, string(e.Char), tags.Symbol(e.Tag), int64(e.Count)); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO ngram_models (ord, checksum, entries, saved_at) VALUES (?, ?, ?, ?)`,
		m.Order(), strconv.FormatUint(m.Fingerprint(), 16), len(entries), time.Now().UTC())
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Orders lists the orders that have a saved model.
func (s *SQLiteStore) Orders(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ord FROM ngram_models ORDER BY ord`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []int
	for rows.Next() {
		var o int
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
