// Package handler exposes the exception lifecycle over HTTP. It delegates to
// the service without embedding lifecycle rules.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ems/internal/audit"
	"ems/internal/exception/models"
	"ems/internal/exception/service"
	"ems/internal/platform/middleware"
	"ems/internal/transport/http/shared"
	dErrors "ems/pkg/domain-errors"
)

// Service defines the interface for exception lifecycle operations.
type Service interface {
	Create(ctx context.Context, in service.CreateInput) (*models.Exception, error)
	Get(ctx context.Context, id int64) (*models.Exception, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.Exception, error)
	Transition(ctx context.Context, id int64, target string, actorID *int64, comment *string) (*models.Exception, error)
	Approve(ctx context.Context, id int64, level int, decision string, approverID int64, comment *string) (*models.Exception, error)
	Assign(ctx context.Context, id int64, assignedTo int64, actorID *int64, comment *string) (*models.Exception, error)
	ListApprovals(ctx context.Context, id int64) ([]*models.Approval, error)
	ListAudit(ctx context.Context, id int64) ([]*audit.Event, error)
}

// Handler handles exception endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, service: service}
}

// Register mounts the exception routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/exceptions", h.handleCreate)
	r.Get("/exceptions", h.handleList)
	r.Get("/exceptions/{id}", h.handleGet)
	r.Post("/exceptions/{id}/transition", h.handleTransition)
	r.Post("/exceptions/{id}/assign", h.handleAssign)
	r.Post("/exceptions/{id}/approve", h.handleApprove)
	r.Get("/exceptions/{id}/approvals", h.handleListApprovals)
	r.Get("/exceptions/{id}/audit", h.handleListAudit)
}

type createRequest struct {
	TypeID      int64      `json:"type_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Severity    *string    `json:"severity"`
	BuID        *string    `json:"bu_id"`
	CreatedBy   *int64     `json:"created_by"`
	AssignedTo  *int64     `json:"assigned_to"`
	Priority    *int       `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
}

type transitionRequest struct {
	ToStatus string  `json:"to_status"`
	ActorID  *int64  `json:"actor_id"`
	Comment  *string `json:"comment"`
}

type assignRequest struct {
	AssignedTo int64   `json:"assigned_to"`
	ActorID    *int64  `json:"actor_id"`
	Comment    *string `json:"comment"`
}

type approvalRequest struct {
	Level      int     `json:"level"`
	Decision   string  `json:"decision"`
	ApproverID int64   `json:"approver_id"`
	Comment    *string `json:"comment"`
}

type exceptionResponse struct {
	ID          int64      `json:"id"`
	TypeID      int64      `json:"type_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Severity    *string    `json:"severity"`
	BuID        *string    `json:"bu_id"`
	CreatedBy   *int64     `json:"created_by"`
	AssignedTo  *int64     `json:"assigned_to"`
	Status      string     `json:"status"`
	Priority    *int       `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
	EscalatedAt *time.Time `json:"escalated_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func toResponse(exc *models.Exception) exceptionResponse {
	return exceptionResponse{
		ID:          exc.ID,
		TypeID:      exc.TypeID,
		Title:       exc.Title,
		Description: exc.Description,
		Severity:    exc.Severity,
		BuID:        exc.BuID,
		CreatedBy:   exc.CreatedBy,
		AssignedTo:  exc.AssignedTo,
		Status:      string(exc.Status),
		Priority:    exc.Priority,
		DueAt:       exc.DueAt,
		EscalatedAt: exc.EscalatedAt,
		CreatedAt:   exc.CreatedAt,
		UpdatedAt:   exc.UpdatedAt,
	}
}

type approvalResponse struct {
	ID          int64      `json:"id"`
	ExceptionID int64      `json:"exception_id"`
	Level       int        `json:"level"`
	ApproverID  *int64     `json:"approver_id"`
	Decision    string     `json:"decision"`
	Comment     *string    `json:"comment"`
	DecidedAt   *time.Time `json:"decided_at"`
}

type auditResponse struct {
	ID         int64           `json:"id"`
	At         time.Time       `json:"at"`
	ActorID    *int64          `json:"actor_id"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Old        json.RawMessage `json:"old"`
	New        json.RawMessage `json:"new"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	exc, err := h.service.Create(ctx, service.CreateInput{
		TypeID:      req.TypeID,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		BuID:        req.BuID,
		CreatedBy:   req.CreatedBy,
		AssignedTo:  req.AssignedTo,
		Priority:    req.Priority,
		DueAt:       req.DueAt,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "create exception", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(exc))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var filter models.ListFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			shared.WriteError(w, dErrors.Newf(dErrors.CodeInvalidStatus, "unknown status %q", raw))
			return
		}
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("type_id"); raw != "" {
		typeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "type_id must be an integer"))
			return
		}
		filter.TypeID = &typeID
	}
	list, err := h.service.List(ctx, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "list exceptions", err)
		return
	}
	out := make([]exceptionResponse, 0, len(list))
	for _, exc := range list {
		out = append(out, toResponse(exc))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	exc, err := h.service.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "get exception", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(exc))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	exc, err := h.service.Transition(ctx, id, req.ToStatus, req.ActorID, req.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "transition exception", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(exc))
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.AssignedTo == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "assigned_to is required"))
		return
	}
	exc, err := h.service.Assign(ctx, id, req.AssignedTo, req.ActorID, req.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "assign exception", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(exc))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	req := approvalRequest{Level: 1}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.ApproverID == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "approver_id is required"))
		return
	}
	exc, err := h.service.Approve(ctx, id, req.Level, req.Decision, req.ApproverID, req.Comment)
	if err != nil {
		h.writeServiceError(ctx, w, "approve exception", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(exc))
}

func (h *Handler) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	approvals, err := h.service.ListApprovals(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "list approvals", err)
		return
	}
	out := make([]approvalResponse, 0, len(approvals))
	for _, ap := range approvals {
		out = append(out, approvalResponse{
			ID:          ap.ID,
			ExceptionID: ap.ExceptionID,
			Level:       ap.Level,
			ApproverID:  ap.ApproverID,
			Decision:    string(ap.Decision),
			Comment:     ap.Comment,
			DecidedAt:   ap.DecidedAt,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	events, err := h.service.ListAudit(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "list audit trail", err)
		return
	}
	out := make([]auditResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, auditResponse{
			ID:         ev.ID,
			At:         ev.At,
			ActorID:    ev.ActorID,
			Action:     ev.Action,
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			Old:        ev.Old,
			New:        ev.New,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be an integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "operation failed",
			"request_id", middleware.GetRequestID(ctx),
			"op", op,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
		return
	}
	h.logger.WarnContext(ctx, "rejected request",
		"request_id", middleware.GetRequestID(ctx),
		"op", op,
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}
