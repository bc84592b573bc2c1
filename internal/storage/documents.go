package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Documents is a small collection-oriented store. Documents are JSON objects
// and filters match top-level fields by equality.
type Documents interface {
	InsertOne(ctx context.Context, collection string, doc any) (string, error)
	FindOne(ctx context.Context, collection string, filter Filter, out any) error
	FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions, out any) error
	UpdateOne(ctx context.Context, collection string, filter Filter, set map[string]any, upsert bool) error
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error)
}

type Filter map[string]any

type FindOptions struct {
	Sort  string
	Desc  bool
	Limit int
}

var fieldPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidateField rejects field names that cannot be used as a JSON path segment.
func ValidateField(name string) error {
	if !fieldPattern.MatchString(name) {
		return fmt.Errorf("storage: invalid field name %q", name)
	}
	return nil
}

// SortedKeys returns the filter keys in a stable order after validating them.
func (f Filter) SortedKeys() ([]string, error) {
	keys := make([]string, 0, len(f))
	for key := range f {
		if err := ValidateField(key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MergeDocument decodes body into a generic map and overlays set on it.
func MergeDocument(body []byte, set map[string]any) ([]byte, error) {
	current := make(map[string]any)
	if len(body) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(body))
		decoder.UseNumber()
		if err := decoder.Decode(&current); err != nil {
			return nil, err
		}
	}
	for key, value := range set {
		if err := ValidateField(key); err != nil {
			return nil, err
		}
		current[key] = value
	}
	return json.Marshal(current)
}

// DecodeMany unmarshals a list of JSON bodies into out, a pointer to a slice.
func DecodeMany(bodies [][]byte, out any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, body := range bodies {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(body)
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), out)
}

func (s *Store) InsertOne(ctx context.Context, collection string, doc any) (string, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO documents (collection, id, body, created_at) VALUES (?, ?, ?, ?)`,
		collection, id, string(body), time.Now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, err)
	}
	return id, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter Filter, out any) error {
	where, args, err := sqliteWhere(collection, filter)
	if err != nil {
		return err
	}
	var body string
	err = s.db.GetContext(ctx, &body, `SELECT body FROM documents WHERE `+where+` ORDER BY created_at LIMIT 1`, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("find %s: %w", collection, err)
	}
	return json.Unmarshal([]byte(body), out)
}

func (s *Store) FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions, out any) error {
	where, args, err := sqliteWhere(collection, filter)
	if err != nil {
		return err
	}
	query := `SELECT body FROM documents WHERE ` + where
	if opts.Sort != "" {
		if err := ValidateField(opts.Sort); err != nil {
			return err
		}
		query += ` ORDER BY json_extract(body, ?)`
		if opts.Desc {
			query += ` DESC`
		}
		query += `, created_at`
		args = append(args, "$."+opts.Sort)
	} else {
		query += ` ORDER BY created_at`
	}
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	var rows []string
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return fmt.Errorf("find %s: %w", collection, err)
	}
	bodies := make([][]byte, 0, len(rows))
	for _, row := range rows {
		bodies = append(bodies, []byte(row))
	}
	return DecodeMany(bodies, out)
}

func (s *Store) UpdateOne(ctx context.Context, collection string, filter Filter, set map[string]any, upsert bool) (err error) {
	where, args, err := sqliteWhere(collection, filter)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row struct {
		ID   string `db:"id"`
		Body string `db:"body"`
	}
	scanErr := tx.GetContext(ctx, &row, `SELECT id, body FROM documents WHERE `+where+` ORDER BY created_at LIMIT 1`, args...)
	switch {
	case scanErr == nil:
		var merged []byte
		merged, err = MergeDocument([]byte(row.Body), set)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE collection = ? AND id = ?`, string(merged), collection, row.ID)
		if err != nil {
			return fmt.Errorf("update %s: %w", collection, err)
		}
	case errors.Is(scanErr, sql.ErrNoRows):
		if !upsert {
			err = ErrNotFound
			return err
		}
		if err = insertMerged(ctx, tx, collection, filter, set); err != nil {
			return err
		}
	default:
		err = scanErr
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return tx.Commit()
}

func insertMerged(ctx context.Context, tx *sqlx.Tx, collection string, filter Filter, set map[string]any) error {
	seed, err := json.Marshal(map[string]any(filter))
	if err != nil {
		return err
	}
	merged, err := MergeDocument(seed, set)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO documents (collection, id, body, created_at) VALUES (?, ?, ?, ?)`,
		collection, uuid.NewString(), string(merged), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

func (s *Store) DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, args, err := sqliteWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE rowid IN (SELECT rowid FROM documents WHERE `+where+` ORDER BY created_at LIMIT 1)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return result.RowsAffected()
}

func (s *Store) DeleteMany(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, args, err := sqliteWhere(collection, filter)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", collection, err)
	}
	return result.RowsAffected()
}

func sqliteWhere(collection string, filter Filter) (string, []any, error) {
	keys, err := filter.SortedKeys()
	if err != nil {
		return "", nil, err
	}
	clauses := []string{"collection = ?"}
	args := []any{collection}
	for _, key := range keys {
		clauses = append(clauses, "json_extract(body, ?) = ?")
		args = append(args, "$."+key, sqliteValue(filter[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// json_extract reports JSON booleans as 0 or 1.
func sqliteValue(value any) any {
	if b, ok := value.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return value
}
