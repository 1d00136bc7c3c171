package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/query"
)

// Codec serializes one type for SQLite storage. Encode also derives the row
// id so the store never inspects items itself.
type Codec struct {
	Encode func(item any) (id string, payload []byte, err error)
	Decode func(payload []byte) (any, error)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
	type      TEXT NOT NULL,
	id        TEXT NOT NULL,
	payload   BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (type, id)
);
`

var (
	sqliteGetValidator  = query.Has("id").As(query.Type[string]()).MustBuild()
	sqliteManyValidator = query.CanHave("ids").As(query.Type[[]string]()).MustBuild()
)

// SQLiteStore is a dual-role element persisting items as serialized rows
// keyed by (type, id). It uses the CGO-free modernc SQLite driver, so the
// library stays pure Go.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	codecs map[domain.Key]Codec
	types  domain.TypeSet
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. The codec map fixes the store's declared type set.
func OpenSQLiteStore(path string, codecs map[domain.Key]Codec, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare sqlite schema: %w", err)
	}

	keys := make([]domain.Key, 0, len(codecs))
	for key := range codecs {
		keys = append(keys, key)
	}
	return &SQLiteStore{
		db:     db,
		logger: logger,
		codecs: codecs,
		types:  domain.NewTypeSet(keys...),
	}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Provides declares the store's types.
func (s *SQLiteStore) Provides() domain.TypeSet { return s.types }

// Accepts declares the store's types.
func (s *SQLiteStore) Accepts() domain.TypeSet { return s.types }

// Get loads and decodes the row keyed by the query's "id".
func (s *SQLiteStore) Get(ctx context.Context, key domain.Key, q domain.Query, pctx *domain.Context) (any, error) {
	codec, ok := s.codecs[key]
	if !ok {
		return nil, domain.UnsupportedType(key)
	}
	if err := sqliteGetValidator.Validate(q, pctx); err != nil {
		return nil, err
	}

	id := q["id"].(string)
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM items WHERE type = ? AND id = ?`, string(key), id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	return codec.Decode(payload)
}

// GetMany yields the decoded rows for the query's "ids", or every row of the
// type when "ids" is absent. Rows are decoded lazily as the consumer pulls.
func (s *SQLiteStore) GetMany(ctx context.Context, key domain.Key, q domain.Query, pctx *domain.Context) (iter.Seq2[any, error], error) {
	codec, ok := s.codecs[key]
	if !ok {
		return nil, domain.UnsupportedType(key)
	}
	if err := sqliteManyValidator.Validate(q, pctx); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	if ids, ok := q["ids"].([]string); ok {
		if len(ids) == 0 {
			return nil, domain.NotFound(key)
		}
		placeholders := ""
		args := make([]any, 0, len(ids)+1)
		args = append(args, string(key))
		for i, id := range ids {
			if i > 0 {
				placeholders += ","
			}
			placeholders += "?"
			args = append(args, id)
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT payload FROM items WHERE type = ? AND id IN (`+placeholders+`) ORDER BY id`, args...)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT payload FROM items WHERE type = ? ORDER BY id`, string(key))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get many %q: %w", key, err)
	}

	return func(yield func(any, error) bool) {
		defer rows.Close()
		for rows.Next() {
			var payload []byte
			if err := rows.Scan(&payload); err != nil {
				yield(nil, fmt.Errorf("sqlite scan %q: %w", key, err))
				return
			}
			item, err := codec.Decode(payload)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("sqlite iterate %q: %w", key, err))
		}
	}, nil
}

// Put encodes and upserts one item.
func (s *SQLiteStore) Put(ctx context.Context, key domain.Key, item any, _ *domain.Context) error {
	codec, ok := s.codecs[key]
	if !ok {
		return domain.UnsupportedType(key)
	}
	id, payload, err := codec.Encode(item)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO items (type, id, payload, stored_at) VALUES (?, ?, ?, ?)`,
		string(key), id, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite put %q: %w", key, err)
	}
	s.logger.Debug("sqlite store put", "type", key, "id", id)
	return nil
}

// PutMany upserts the sequence within one transaction.
func (s *SQLiteStore) PutMany(ctx context.Context, key domain.Key, items iter.Seq[any], _ *domain.Context) error {
	codec, ok := s.codecs[key]
	if !ok {
		return domain.UnsupportedType(key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite put many %q: %w", key, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO items (type, id, payload, stored_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite put many %q: %w", key, err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for item := range items {
		id, payload, err := codec.Encode(item)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		if _, err := stmt.ExecContext(ctx, string(key), id, payload, now); err != nil {
			return fmt.Errorf("sqlite put many %q: %w", key, err)
		}
	}
	return tx.Commit()
}
