// Package attachment links uploaded evidence files to exceptions. The service
// hands out presigned URLs; file bytes never pass through this process and
// storage calls never share a transaction with lifecycle mutations.
package attachment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ems/internal/platform/objstore"
	dErrors "ems/pkg/domain-errors"
)

// presignTTL bounds how long an issued URL stays usable.
const presignTTL = 10 * time.Minute

// ErrNotFound is returned for unknown attachment ids.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "attachment not found")

// Attachment is one stored file reference.
type Attachment struct {
	ID          int64
	ExceptionID int64
	Filename    string
	Mime        *string
	S3Key       string
	SHA256      *string
	UploadedBy  *int64
	UploadedAt  time.Time
}

// Store persists attachment rows.
type Store interface {
	Create(ctx context.Context, att *Attachment) error
	GetByID(ctx context.Context, id int64) (*Attachment, error)
	ListByException(ctx context.Context, exceptionID int64) ([]*Attachment, error)
}

// ExceptionDirectory verifies the referenced exception exists before an
// upload slot is issued.
type ExceptionDirectory interface {
	Exists(ctx context.Context, id int64) error
}

// Service coordinates attachment rows and presigned URLs.
type Service struct {
	store      Store
	exceptions ExceptionDirectory
	presigner  objstore.Presigner
}

func NewService(store Store, exceptions ExceptionDirectory, presigner objstore.Presigner) *Service {
	return &Service{store: store, exceptions: exceptions, presigner: presigner}
}

// PresignUploadInput is the payload for requesting an upload slot.
type PresignUploadInput struct {
	ExceptionID int64
	Filename    string
	Mime        *string
	UploadedBy  *int64
}

// UploadSlot is the issued upload grant.
type UploadSlot struct {
	AttachmentID int64
	UploadURL    string
	Key          string
}

// PresignUpload validates the exception, records the attachment row, and
// returns a time-limited upload URL. The row is created up front; a finalize
// step verifying the upload landed is a possible follow-up, matching the
// source system's simple flow.
func (s *Service) PresignUpload(ctx context.Context, in PresignUploadInput) (*UploadSlot, error) {
	if in.Filename == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "filename is required")
	}
	if err := s.exceptions.Exists(ctx, in.ExceptionID); err != nil {
		return nil, err
	}
	if err := s.presigner.EnsureBucket(ctx); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "object storage unavailable")
	}

	safeName := sanitizeFilename(in.Filename)
	key := objectKey(in.ExceptionID, safeName)

	contentType := ""
	if in.Mime != nil {
		contentType = *in.Mime
	}
	url, err := s.presigner.PresignPut(ctx, key, contentType, presignTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "presign upload")
	}

	att := &Attachment{
		ExceptionID: in.ExceptionID,
		Filename:    safeName,
		Mime:        in.Mime,
		S3Key:       key,
		UploadedBy:  in.UploadedBy,
	}
	if err := s.store.Create(ctx, att); err != nil {
		return nil, err
	}

	return &UploadSlot{AttachmentID: att.ID, UploadURL: url, Key: key}, nil
}

// PresignDownload returns a time-limited download URL for a stored attachment.
func (s *Service) PresignDownload(ctx context.Context, attachmentID int64) (string, error) {
	att, err := s.store.GetByID(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	url, err := s.presigner.PresignGet(ctx, att.S3Key, presignTTL)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "presign download")
	}
	return url, nil
}

// ListByException returns attachment metadata newest first.
func (s *Service) ListByException(ctx context.Context, exceptionID int64) ([]*Attachment, error) {
	return s.store.ListByException(ctx, exceptionID)
}

// sanitizeFilename strips any path components a client smuggled in.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}

// objectKey lays out the bucket as exceptions/{id}/{uuid}_{filename}.
func objectKey(exceptionID int64, filename string) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "exceptions/" + strconv.FormatInt(exceptionID, 10) + "/" + token + "_" + filename
}
