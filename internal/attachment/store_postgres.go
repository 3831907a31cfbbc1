package attachment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists attachment rows in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, att *Attachment) error {
	query := `
		INSERT INTO attachments (exception_id, filename, mime, s3_key, sha256, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, uploaded_at
	`
	err := s.db.QueryRowContext(ctx, query,
		att.ExceptionID,
		att.Filename,
		att.Mime,
		att.S3Key,
		att.SHA256,
		att.UploadedBy,
	).Scan(&att.ID, &att.UploadedAt)
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id int64) (*Attachment, error) {
	query := `
		SELECT id, exception_id, filename, mime, s3_key, sha256, uploaded_by, uploaded_at
		FROM attachments
		WHERE id = $1
	`
	att, err := scanAttachment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return att, nil
}

func (s *PostgresStore) ListByException(ctx context.Context, exceptionID int64) ([]*Attachment, error) {
	query := `
		SELECT id, exception_id, filename, mime, s3_key, sha256, uploaded_by, uploaded_at
		FROM attachments
		WHERE exception_id = $1
		ORDER BY id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, exceptionID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		att, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("list attachments: %w", err)
		}
		out = append(out, att)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttachment(row rowScanner) (*Attachment, error) {
	var (
		att        Attachment
		mime       sql.NullString
		sha        sql.NullString
		uploadedBy sql.NullInt64
	)
	err := row.Scan(&att.ID, &att.ExceptionID, &att.Filename, &mime, &att.S3Key, &sha, &uploadedBy, &att.UploadedAt)
	if err != nil {
		return nil, err
	}
	if mime.Valid {
		att.Mime = &mime.String
	}
	if sha.Valid {
		att.SHA256 = &sha.String
	}
	if uploadedBy.Valid {
		att.UploadedBy = &uploadedBy.Int64
	}
	return &att, nil
}
