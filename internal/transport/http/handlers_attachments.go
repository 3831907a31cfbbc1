package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ems/internal/attachment"
	"ems/internal/transport/http/shared"
	dErrors "ems/pkg/domain-errors"
)

type presignUploadRequest struct {
	Filename   string  `json:"filename"`
	Mime       *string `json:"mime"`
	UploadedBy *int64  `json:"uploaded_by"`
}

type presignUploadResponse struct {
	AttachmentID int64  `json:"attachment_id"`
	UploadURL    string `json:"upload_url"`
	Key          string `json:"key"`
}

type attachmentResponse struct {
	ID          int64     `json:"id"`
	ExceptionID int64     `json:"exception_id"`
	Filename    string    `json:"filename"`
	Mime        *string   `json:"mime"`
	S3Key       string    `json:"s3_key"`
	SHA256      *string   `json:"sha256"`
	UploadedBy  *int64    `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func (h *Handler) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	exceptionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be an integer"))
		return
	}
	var req presignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	slot, err := h.attachments.PresignUpload(r.Context(), attachment.PresignUploadInput{
		ExceptionID: exceptionID,
		Filename:    req.Filename,
		Mime:        req.Mime,
		UploadedBy:  req.UploadedBy,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, presignUploadResponse{
		AttachmentID: slot.AttachmentID,
		UploadURL:    slot.UploadURL,
		Key:          slot.Key,
	})
}

func (h *Handler) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	exceptionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be an integer"))
		return
	}
	list, err := h.attachments.ListByException(r.Context(), exceptionID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]attachmentResponse, 0, len(list))
	for _, att := range list {
		out = append(out, attachmentResponse{
			ID:          att.ID,
			ExceptionID: att.ExceptionID,
			Filename:    att.Filename,
			Mime:        att.Mime,
			S3Key:       att.S3Key,
			SHA256:      att.SHA256,
			UploadedBy:  att.UploadedBy,
			UploadedAt:  att.UploadedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handlePresignDownload(w http.ResponseWriter, r *http.Request) {
	attachmentID, err := strconv.ParseInt(chi.URLParam(r, "attachmentID"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be an integer"))
		return
	}
	url, err := h.attachments.PresignDownload(r.Context(), attachmentID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"download_url": url})
}
