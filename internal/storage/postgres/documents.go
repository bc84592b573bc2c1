// Package postgres stores document collections in a jsonb table.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"guildkeeper/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id TEXT NOT NULL,
	body JSONB NOT NULL,
	created_at BIGINT NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_body ON documents USING GIN (body);
`

type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Documents = (*Store)(nil)

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `INSERT INTO documents (collection, id, body, created_at) VALUES ($1, $2, $3, $4)`,
		collection, id, body, time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter storage.Filter, out any) error {
	match, err := containment(filter)
	if err != nil {
		return err
	}
	var body []byte
	err = s.pool.QueryRow(ctx, `SELECT body FROM documents WHERE collection = $1 AND body @> $2 ORDER BY created_at LIMIT 1`,
		collection, match).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return json.Unmarshal(body, out)
}

func (s *Store) FindMany(ctx context.Context, collection string, filter storage.Filter, opts storage.FindOptions, out any) error {
	match, err := containment(filter)
	if err != nil {
		return err
	}
	query := `SELECT body FROM documents WHERE collection = $1 AND body @> $2`
	args := []any{collection, match}
	if opts.Sort != "" {
		if err := storage.ValidateField(opts.Sort); err != nil {
			return err
		}
		args = append(args, opts.Sort)
		query += ` ORDER BY body -> $3`
		if opts.Desc {
			query += ` DESC`
		}
		query += `, created_at`
	} else {
		query += ` ORDER BY created_at`
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	bodies, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return storage.DecodeMany(bodies, out)
}

func (s *Store) UpdateOne(ctx context.Context, collection string, filter storage.Filter, set map[string]any, upsert bool) (err error) {
	match, err := containment(filter)
	if err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var id string
	var body []byte
	scanErr := tx.QueryRow(ctx, `SELECT id, body FROM documents WHERE collection = $1 AND body @> $2 ORDER BY created_at LIMIT 1 FOR UPDATE`,
		collection, match).Scan(&id, &body)
	switch {
	case scanErr == nil:
		var merged []byte
		merged, err = storage.MergeDocument(body, set)
		if err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, `UPDATE documents SET body = $1 WHERE collection = $2 AND id = $3`, merged, collection, id); err != nil {
			return fmt.Errorf("update %s: %w", collection, err)
		}
	case errors.Is(scanErr, pgx.ErrNoRows):
		if !upsert {
			err = storage.ErrNotFound
			return err
		}
		var merged []byte
		merged, err = storage.MergeDocument(match, set)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO documents (collection, id, body, created_at) VALUES ($1, $2, $3, $4)`,
			collection, uuid.NewString(), merged, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("upsert %s: %w", collection, err)
		}
	default:
		err = scanErr
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return tx.Commit(ctx)
}

func (s *Store) DeleteOne(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	match, err := containment(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = (
			SELECT id FROM documents WHERE collection = $1 AND body @> $2 ORDER BY created_at LIMIT 1
		)`, collection, match)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter storage.Filter) (int64, error) {
	match, err := containment(filter)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND body @> $2`, collection, match)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

// containment encodes an equality filter as a jsonb document for the @> operator.
func containment(filter storage.Filter) ([]byte, error) {
	if _, err := filter.SortedKeys(); err != nil {
		return nil, err
	}
	if filter == nil {
		filter = storage.Filter{}
	}
	return json.Marshal(filter)
}
