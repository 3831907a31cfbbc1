package exceptiontype

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists catalog entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, et *ExceptionType) error {
	query := `
		INSERT INTO exception_types (code, name, description, default_sla_hours, approval_levels, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		et.Code,
		et.Name,
		et.Description,
		et.DefaultSLAHours,
		et.ApprovalLevels,
		et.Active,
	).Scan(&et.ID, &et.CreatedAt, &et.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return fmt.Errorf("create exception type: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*ExceptionType, error) {
	query := `
		SELECT id, code, name, description, default_sla_hours, approval_levels, active, created_at, updated_at
		FROM exception_types
		WHERE id = $1
	`
	et, err := scanType(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exception type: %w", err)
	}
	return et, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*ExceptionType, error) {
	query := `
		SELECT id, code, name, description, default_sla_hours, approval_levels, active, created_at, updated_at
		FROM exception_types
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list exception types: %w", err)
	}
	defer rows.Close()

	var out []*ExceptionType
	for rows.Next() {
		et, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("list exception types: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanType(row rowScanner) (*ExceptionType, error) {
	var (
		et          ExceptionType
		description sql.NullString
	)
	err := row.Scan(&et.ID, &et.Code, &et.Name, &description,
		&et.DefaultSLAHours, &et.ApprovalLevels, &et.Active,
		&et.CreatedAt, &et.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		et.Description = &description.String
	}
	return &et, nil
}
