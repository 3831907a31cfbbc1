package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ems/internal/exceptiontype"
	"ems/internal/transport/http/shared"
	dErrors "ems/pkg/domain-errors"
)

type typeRequest struct {
	Code            string  `json:"code"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	DefaultSLAHours int     `json:"default_sla_hours"`
	ApprovalLevels  int     `json:"approval_levels"`
	Active          *bool   `json:"active"`
}

type typeResponse struct {
	ID              int64     `json:"id"`
	Code            string    `json:"code"`
	Name            string    `json:"name"`
	Description     *string   `json:"description"`
	DefaultSLAHours int       `json:"default_sla_hours"`
	ApprovalLevels  int       `json:"approval_levels"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toTypeResponse(et *exceptiontype.ExceptionType) typeResponse {
	return typeResponse{
		ID:              et.ID,
		Code:            et.Code,
		Name:            et.Name,
		Description:     et.Description,
		DefaultSLAHours: et.DefaultSLAHours,
		ApprovalLevels:  et.ApprovalLevels,
		Active:          et.Active,
		CreatedAt:       et.CreatedAt,
		UpdatedAt:       et.UpdatedAt,
	}
}

func (h *Handler) handleCreateType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	et, err := h.types.Create(r.Context(), exceptiontype.CreateInput{
		Code:            req.Code,
		Name:            req.Name,
		Description:     req.Description,
		DefaultSLAHours: req.DefaultSLAHours,
		ApprovalLevels:  req.ApprovalLevels,
		Active:          req.Active,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toTypeResponse(et))
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	list, err := h.types.List(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]typeResponse, 0, len(list))
	for _, et := range list {
		out = append(out, toTypeResponse(et))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetType(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be an integer"))
		return
	}
	et, err := h.types.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTypeResponse(et))
}
