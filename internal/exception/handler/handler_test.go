package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ems/internal/exception/handler/mocks"
	"ems/internal/exception/models"
	"ems/internal/exception/service"
	dErrors "ems/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/exception-mocks.go -package=mocks Service
type ExceptionHandlerSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *ExceptionHandlerSuite) SetupSuite() {
	s.ctx = context.Background()
}

func TestExceptionHandlerSuite(t *testing.T) {
	suite.Run(t, new(ExceptionHandlerSuite))
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := New(mockService, logger)
	r := chi.NewRouter()
	handler.Register(r)
	return r, mockService
}

func sampleException(id int64, status models.Status) *models.Exception {
	created := time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)
	return &models.Exception{
		ID:        id,
		TypeID:    1,
		Title:     "limit breach",
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func (s *ExceptionHandlerSuite) TestCreateReturns201() {
	router, mockService := newTestRouter(s.T())

	mockService.EXPECT().Create(gomock.Any(), service.CreateInput{
		TypeID: 1,
		Title:  "limit breach",
	}).Return(sampleException(7, models.StatusNew), nil)

	body, err := json.Marshal(map[string]any{"type_id": 1, "title": "limit breach"})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), float64(7), resp["id"])
	assert.Equal(s.T(), "NEW", resp["status"])
}

func (s *ExceptionHandlerSuite) TestCreateRejectsMalformedBody() {
	router, _ := newTestRouter(s.T())

	req := httptest.NewRequest(http.MethodPost, "/exceptions", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ExceptionHandlerSuite) TestGetNotFoundMapsTo404() {
	router, mockService := newTestRouter(s.T())

	mockService.EXPECT().Get(gomock.Any(), int64(99)).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "exception not found"))

	req := httptest.NewRequest(http.MethodGet, "/exceptions/99", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusNotFound, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), string(dErrors.CodeNotFound), resp["error"])
}

func (s *ExceptionHandlerSuite) TestGetRejectsNonNumericID() {
	router, _ := newTestRouter(s.T())

	req := httptest.NewRequest(http.MethodGet, "/exceptions/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ExceptionHandlerSuite) TestListForwardsStatusFilter() {
	router, mockService := newTestRouter(s.T())

	triaged := models.StatusTriaged
	mockService.EXPECT().List(gomock.Any(), models.ListFilter{Status: &triaged}).
		Return([]*models.Exception{sampleException(3, models.StatusTriaged)}, nil)

	req := httptest.NewRequest(http.MethodGet, "/exceptions?status=TRIAGED", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	var resp []map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(s.T(), resp, 1)
	assert.Equal(s.T(), "TRIAGED", resp[0]["status"])
}

func (s *ExceptionHandlerSuite) TestListRejectsUnknownStatus() {
	router, _ := newTestRouter(s.T())

	req := httptest.NewRequest(http.MethodGet, "/exceptions?status=BOGUS", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), string(dErrors.CodeInvalidStatus), resp["error"])
}

func (s *ExceptionHandlerSuite) TestTransitionIllegalMapsTo400() {
	router, mockService := newTestRouter(s.T())

	actor := int64(5)
	mockService.EXPECT().Transition(gomock.Any(), int64(7), "CLOSED", &actor, (*string)(nil)).
		Return(nil, dErrors.New(dErrors.CodeIllegalTransition, "invalid transition NEW -> CLOSED"))

	body, err := json.Marshal(map[string]any{"to_status": "CLOSED", "actor_id": 5})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions/7/transition", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), string(dErrors.CodeIllegalTransition), resp["error"])
	assert.Equal(s.T(), "invalid transition NEW -> CLOSED", resp["message"])
}

func (s *ExceptionHandlerSuite) TestApproveDefaultsLevelToOne() {
	router, mockService := newTestRouter(s.T())

	mockService.EXPECT().Approve(gomock.Any(), int64(7), 1, "APPROVED", int64(2), (*string)(nil)).
		Return(sampleException(7, models.StatusApproved), nil)

	body, err := json.Marshal(map[string]any{"decision": "APPROVED", "approver_id": 2})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions/7/approve", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusOK, w.Code)
}

func (s *ExceptionHandlerSuite) TestApproveRequiresApproverID() {
	router, _ := newTestRouter(s.T())

	body, err := json.Marshal(map[string]any{"decision": "APPROVED"})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions/7/approve", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ExceptionHandlerSuite) TestSelfApprovalMapsTo400() {
	router, mockService := newTestRouter(s.T())

	mockService.EXPECT().Approve(gomock.Any(), int64(7), 1, "APPROVED", int64(2), (*string)(nil)).
		Return(nil, dErrors.New(dErrors.CodeSelfApproval, "creator cannot approve own exception"))

	body, err := json.Marshal(map[string]any{"decision": "APPROVED", "approver_id": 2})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions/7/approve", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), string(dErrors.CodeSelfApproval), resp["error"])
}

func (s *ExceptionHandlerSuite) TestAssignRequiresAssignee() {
	router, _ := newTestRouter(s.T())

	body, err := json.Marshal(map[string]any{"actor_id": 1})
	require.NoError(s.T(), err)

	req := httptest.NewRequest(http.MethodPost, "/exceptions/7/assign", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *ExceptionHandlerSuite) TestInternalErrorHidesDetails() {
	router, mockService := newTestRouter(s.T())

	mockService.EXPECT().Get(gomock.Any(), int64(7)).
		Return(nil, dErrors.New(dErrors.CodeInternal, "connection refused to db host"))

	req := httptest.NewRequest(http.MethodGet, "/exceptions/7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), http.StatusInternalServerError, w.Code)
	var resp map[string]any
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(s.T(), resp["message"])
}
