package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/siteadmin/internal/domain/value"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore — хранилище документов в PostgreSQL (таблица documents, поля в JSONB).
// Фильтры равенства выполняются на стороне БД.
type PostgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
	now  func() time.Time
}

// NewPostgresStore создаёт хранилище поверх пула подключений.
// Схема создаётся миграциями пакета database.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, db: pool, now: time.Now}
}

// runInTx выполняет fn внутри транзакции.
func (s *PostgresStore) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// buildWhere формирует условие WHERE для коллекции и фильтров.
// Поле "id" без значения в документе сравнивается с ID документа.
func buildWhere(collection string, filters []Filter) (string, []any) {
	conditions := []string{"collection = $1"}
	args := []any{collection}
	for _, f := range filters {
		args = append(args, f.Field)
		keyIdx := len(args)
		args = append(args, value.String(f.Value))
		valIdx := len(args)

		fallback := "''"
		if f.Field == "id" {
			fallback = "id"
		}
		conditions = append(conditions,
			fmt.Sprintf("COALESCE(fields->>($%d::text), %s) = $%d::text", keyIdx, fallback, valIdx))
	}
	return strings.Join(conditions, " AND "), args
}

// List возвращает документы в порядке вставки.
func (s *PostgresStore) List(ctx context.Context, collection string, filters ...Filter) ([]Record, error) {
	where, args := buildWhere(collection, filters)
	query := fmt.Sprintf(`SELECT id, fields FROM documents WHERE %s ORDER BY seq`, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapPg("list", collection, err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, wrapPg("list", collection, err)
		}
		r, err := decodeRecord(id, raw)
		if err != nil {
			return nil, wrapPg("list", collection, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPg("list", collection, err)
	}
	return result, nil
}

// CountWhere считает документы средствами SQL.
func (s *PostgresStore) CountWhere(ctx context.Context, collection string, filters ...Filter) (int, error) {
	where, args := buildWhere(collection, filters)
	var n int
	err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM documents WHERE %s`, where), args...).Scan(&n)
	if err != nil {
		return 0, wrapPg("count", collection, err)
	}
	return n, nil
}

// GetByID возвращает документ или ErrNotFound.
func (s *PostgresStore) GetByID(ctx context.Context, collection, id string) (Record, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT fields FROM documents WHERE collection = $1 AND id = $2`, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, wrapPg("get", collection, err)
	}
	r, err := decodeRecord(id, raw)
	if err != nil {
		return Record{}, wrapPg("get", collection, err)
	}
	return r, nil
}

// Create вставляет документ; нарушение уникальности — ErrDuplicate.
func (s *PostgresStore) Create(ctx context.Context, collection, id string, fields map[string]any) (string, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now().UTC()
	raw, err := json.Marshal(stamp(fields, now, true))
	if err != nil {
		return "", fmt.Errorf("сериализация документа: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO documents (collection, id, fields, created_at, updated_at)
		 VALUES ($1, $2, $3::jsonb, $4, $4)`,
		collection, id, string(raw), now)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicate
		}
		return "", wrapPg("create", collection, err)
	}
	return id, nil
}

// Update сливает patch с полями документа оператором ||.
// createdAt из patch отбрасывается.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, patch map[string]any) error {
	now := s.now().UTC()
	raw, err := json.Marshal(stamp(patch, now, false))
	if err != nil {
		return fmt.Errorf("сериализация документа: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET fields = fields || $3::jsonb, updated_at = $4
		 WHERE collection = $1 AND id = $2`,
		collection, id, string(raw), now)
	if err != nil {
		return wrapPg("update", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет документ.
func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	return wrapPg("delete", collection, err)
}

// NextSequence выполняет чтение-инкремент-запись счётчика в транзакции.
// Строка счётчика блокируется UPDATE до коммита, конкурентные вызовы
// получают последовательные значения.
func (s *PostgresStore) NextSequence(ctx context.Context, counter string) (int64, error) {
	var n int64
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO counters (name, last_value) VALUES ($1, 0) ON CONFLICT (name) DO NOTHING`,
			counter); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`UPDATE counters SET last_value = last_value + 1 WHERE name = $1 RETURNING last_value`,
			counter).Scan(&n)
	})
	if err != nil {
		return 0, wrapPg("sequence", counter, err)
	}
	return n, nil
}

// Ping проверяет доступность PostgreSQL.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

func wrapPg(op, collection string, err error) error {
	return wrap(op, collection, err, func(err error) bool {
		return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
	})
}
