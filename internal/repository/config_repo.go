package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jackmusick/bifrost-api-sub005/internal/domain"
)

// PostgresConfigStore implements ConfigStore on a single scoped_entries table.
type PostgresConfigStore struct {
	pool *pgxpool.Pool
}

var _ ConfigStore = (*PostgresConfigStore)(nil)

func NewPostgresConfigStore(pool *pgxpool.Pool) *PostgresConfigStore {
	return &PostgresConfigStore{pool: pool}
}

const entryColumns = `scope, key, value, type, description, updated_by, created_at, updated_at`

func (s *PostgresConfigStore) Get(ctx context.Context, scope, key string) (*domain.ConfigEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM scoped_entries WHERE scope = $1 AND key = $2`,
		domain.NormalizeScope(scope), key)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get entry %s/%s: %w", scope, key, err)
	}
	return entry, nil
}

func (s *PostgresConfigStore) GetWithFallback(ctx context.Context, scope, key string) (*domain.ConfigEntry, error) {
	scope = domain.NormalizeScope(scope)
	entry, err := s.Get(ctx, scope, key)
	if err != nil || entry != nil {
		return entry, err
	}
	if scope == domain.ScopeGlobal {
		return nil, nil
	}
	return s.Get(ctx, domain.ScopeGlobal, key)
}

func (s *PostgresConfigStore) List(ctx context.Context, scope, prefix string) ([]domain.ConfigEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM scoped_entries WHERE scope = $1 AND key LIKE $2 ORDER BY key`,
		domain.NormalizeScope(scope), likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list entries %s: %w", scope, err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresConfigStore) ListAllScopes(ctx context.Context, prefix string) ([]domain.ConfigEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entryColumns+` FROM scoped_entries WHERE key LIKE $1 ORDER BY scope, key`,
		likePrefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresConfigStore) Set(ctx context.Context, entry domain.ConfigEntry) (*domain.ConfigEntry, error) {
	entry.Scope = domain.NormalizeScope(entry.Scope)
	row := s.pool.QueryRow(ctx,
		`INSERT INTO scoped_entries (scope, key, value, type, description, updated_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 ON CONFLICT (scope, key) DO UPDATE SET
		   value = EXCLUDED.value,
		   type = EXCLUDED.type,
		   description = EXCLUDED.description,
		   updated_by = EXCLUDED.updated_by,
		   updated_at = now()
		 RETURNING `+entryColumns,
		entry.Scope, entry.Key, entry.Value, entry.Type, entry.Description, entry.UpdatedBy)
	saved, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("set entry %s/%s: %w", entry.Scope, entry.Key, err)
	}
	return saved, nil
}

func (s *PostgresConfigStore) Delete(ctx context.Context, scope, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM scoped_entries WHERE scope = $1 AND key = $2`,
		domain.NormalizeScope(scope), key)
	if err != nil {
		return false, fmt.Errorf("delete entry %s/%s: %w", scope, key, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanEntry(row pgx.Row) (*domain.ConfigEntry, error) {
	var entry domain.ConfigEntry
	err := row.Scan(&entry.Scope, &entry.Key, &entry.Value, &entry.Type,
		&entry.Description, &entry.UpdatedBy, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func collectEntries(rows pgx.Rows) ([]domain.ConfigEntry, error) {
	var entries []domain.ConfigEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func likePrefix(prefix string) string {
	escaped := ""
	for _, r := range prefix {
		if r == '%' || r == '_' || r == '\\' {
			escaped += `\`
		}
		escaped += string(r)
	}
	return escaped + "%"
}
