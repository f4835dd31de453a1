package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id         TEXT NOT NULL,
    fields     TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS counters (
    name       TEXT PRIMARY KEY,
    last_value INTEGER NOT NULL
);`

// SQLiteStore — хранилище документов в файле SQLite (однонодовый режим).
// Поля документа хранятся JSON-текстом; фильтры применяются после чтения,
// чтобы сравнение 1 и "1" вело себя так же, как в остальных бэкендах.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite открывает (или создаёт) базу по пути path и применяет схему.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("создание каталога SQLite: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открытие SQLite: %w", err)
	}
	// SQLite допускает одного писателя; одно соединение сериализует транзакции.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("применение схемы SQLite: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close закрывает базу.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping проверяет доступность базы (для readiness).
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// List читает документы коллекции в порядке вставки.
func (s *SQLiteStore) List(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fields FROM documents WHERE collection = ? ORDER BY rowid`, collection)
	if err != nil {
		return nil, wrap("list", collection, err, nil)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var (
			id  string
			raw string
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrap("list", collection, err, nil)
		}
		r, err := decodeRecord(id, []byte(raw))
		if err != nil {
			return nil, wrap("list", collection, err, nil)
		}
		if Matches(r, filters) {
			result = append(result, r)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list", collection, err, nil)
	}
	return result, nil
}

// CountWhere без фильтров считает средствами SQL, иначе — через List.
func (s *SQLiteStore) CountWhere(ctx context.Context, collection string, filters ...Filter) (int, error) {
	if len(filters) == 0 {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
		if err != nil {
			return 0, wrap("count", collection, err, nil)
		}
		return n, nil
	}
	records, err := s.List(ctx, collection, filters...)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// GetByID возвращает документ или ErrNotFound.
func (s *SQLiteStore) GetByID(ctx context.Context, collection, id string) (Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, wrap("get", collection, err, nil)
	}
	r, err := decodeRecord(id, []byte(raw))
	return r, wrap("get", collection, err, nil)
}

// Create вставляет документ; занятый id — ErrDuplicate.
func (s *SQLiteStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UTC()
	raw, err := json.Marshal(stamp(fields, now, true))
	if err != nil {
		return "", fmt.Errorf("сериализация документа: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO documents (collection, id, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(raw), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return "", wrap("create", collection, err, nil)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", ErrDuplicate
	}
	return id, nil
}

// Update выполняет чтение-слияние-запись в одной транзакции.
func (s *SQLiteStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("update", collection, err, nil)
	}
	defer tx.Rollback() //nolint:errcheck

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT fields FROM documents WHERE collection = ? AND id = ?`, collection, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return wrap("update", collection, err, nil)
	}

	current, err := decodeRecord(id, []byte(raw))
	if err != nil {
		return wrap("update", collection, err, nil)
	}
	now := s.now().UTC()
	merged := maps.Clone(current.Fields)
	maps.Copy(merged, stamp(patch, now, false))
	if createdAt, ok := current.Fields[FieldCreatedAt]; ok {
		merged[FieldCreatedAt] = createdAt
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("сериализация документа: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET fields = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(out), now.Format(time.RFC3339Nano), collection, id); err != nil {
		return wrap("update", collection, err, nil)
	}
	return wrap("update", collection, tx.Commit(), nil)
}

// Delete удаляет документ.
func (s *SQLiteStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id)
	return wrap("delete", collection, err, nil)
}

// NextSequence увеличивает счётчик одним UPSERT-запросом.
func (s *SQLiteStore) NextSequence(ctx context.Context, counter string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO counters (name, last_value) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET last_value = last_value + 1
		 RETURNING last_value`, counter).Scan(&n)
	if err != nil {
		return 0, wrap("sequence", counter, err, nil)
	}
	return n, nil
}

func decodeRecord(id string, raw []byte) (Record, error) {
	fields := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return Record{}, fmt.Errorf("разбор документа %s: %w", id, err)
		}
	}
	return Record{ID: id, Fields: fields}, nil
}
