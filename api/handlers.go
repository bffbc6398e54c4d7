/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes leave requests, quotas, warnings and attachments over REST.
  Handles HTTP request/response and JSON serialization and delegates every
  decision to leave.RequestService.

ENDPOINTS:
  Users:
    GET    /api/users                   List users
    POST   /api/users                   Create or update a user
    GET    /api/users/{id}              Get user
    GET    /api/users/{id}/quota        Quota for ?category=&year=&excludeId=
    GET    /api/users/{id}/warnings     Active warnings
    GET    /api/users/{id}/categories   Categories the user may request

  Requests:
    GET    /api/requests                List, filtered by ?userId=&status=&category=
    POST   /api/requests                Submit
    PUT    /api/requests/{id}           Edit and resubmit
    POST   /api/requests/preview        Dry-run every submission check
    POST   /api/requests/overlap        Overlap check
    POST   /api/requests/duration       Duration of a span
    POST   /api/requests/{id}/approve   Approve current step
    POST   /api/requests/{id}/reject    Reject
    POST   /api/requests/{id}/cancel    Cancel
    DELETE /api/requests/{id}           Delete

  Attachments:
    POST   /api/attachments             Multipart upload
    DELETE /api/attachments?ref=        Delete by reference

ERROR HANDLING:
  Service errors map to HTTP status by category:
  - 400: Validation errors, invalid input
  - 404: Unknown user, request or workflow group
  - 409: Overlap, invalid workflow transition
  - 422: Quota exceeded, base out of range
  - 500: Storage or other collaborator failures

SEE ALSO:
  - settlements.go: Overtime settlement and admin handlers
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API needs from persistence. Both store/sqlite and
// store/memory implement it.
type Store interface {
	leave.Store
	overtime.Store
	leave.CategoryConfig
	factory.Writer

	ListWorkflowGroups(ctx context.Context) ([]leave.WorkflowGroup, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	Requests    *leave.RequestService
	Settlements *overtime.Service
	Factory     *factory.ConfigFactory

	// Scheduler is optional. When set, admin resyncs go through it so
	// LastRun stays accurate.
	Scheduler *overtime.ResyncScheduler

	logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store and the two services.
func NewHandler(store Store, requests *leave.RequestService, settlements *overtime.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:       store,
		Requests:    requests,
		Settlements: settlements,
		Factory:     factory.NewConfigFactory(),
		logger:      logger,
	}
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list users", err)
		return
	}
	if users == nil {
		users = []leave.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// SaveUser creates or updates a user from the config JSON shape.
func (h *Handler) SaveUser(w http.ResponseWriter, r *http.Request) {
	var req factory.UserJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	cfg, err := h.Factory.FromJSON(factory.ConfigJSON{Users: []factory.UserJSON{req}})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user", err)
		return
	}
	user := cfg.Users[0]
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	saved, err := h.Store.GetUser(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetQuota returns the quota report for ?category= in ?year= (default:
// current year).
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required", nil)
		return
	}
	year := time.Now().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}
	excludeID := generic.RequestID(r.URL.Query().Get("excludeId"))

	report, err := h.Requests.Quota(r.Context(), generic.UserID(chi.URLParam(r, "id")), leave.Category(category), year, excludeID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuotaDTO(report))
}

// GetWarnings returns the user's active warnings.
func (h *Handler) GetWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Requests.Warnings(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if warnings == nil {
		warnings = []leave.ActiveWarning{}
	}
	writeJSON(w, http.StatusOK, warnings)
}

// GetAvailableCategories lists the categories the user may request.
func (h *Handler) GetAvailableCategories(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Requests.AvailableCategories(r.Context(), generic.UserID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// ListCategories returns the active category table.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Requests.Categories().List())
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListRequests returns requests filtered by query parameters.
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := leave.RequestFilter{
		UserID:   generic.UserID(q.Get("userId")),
		Status:   leave.Status(q.Get("status")),
		Category: leave.Category(q.Get("category")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status", nil)
		return
	}
	requests, err := h.Requests.ListRequests(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// SubmitRequest creates a new leave request.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	created, err := h.Requests.Submit(r.Context(), req.toDraft(""))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// EditRequest resubmits an in-process or rejected request.
func (h *Handler) EditRequest(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	updated, err := h.Requests.Submit(r.Context(), req.toDraft(generic.RequestID(chi.URLParam(r, "id"))))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// PreviewRequest runs every submission check without writing.
func (h *Handler) PreviewRequest(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	check, err := h.Requests.Preview(r.Context(), req.toDraft(generic.RequestID(req.ExcludeID)))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	dto := CheckDTO{
		OK:       check.OK(),
		Days:     leave.FormatDays(check.Days.Value),
		Hours:    check.Hours.Value.String(),
		Conflict: check.Conflict,
	}
	if check.Quota != nil {
		q := toQuotaDTO(*check.Quota)
		dto.Quota = &q
	}
	writeJSON(w, http.StatusOK, dto)
}

// CheckOverlap reports the first request conflicting with the span.
func (h *Handler) CheckOverlap(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	conflict, err := h.Requests.CheckOverlap(r.Context(), generic.UserID(req.UserID), req.Span, generic.RequestID(req.ExcludeID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, OverlapDTO{Overlaps: conflict != nil, Conflict: conflict})
}

// ComputeDuration returns the days and hours of a span.
func (h *Handler) ComputeDuration(w http.ResponseWriter, r *http.Request) {
	var span generic.Span
	if err := json.NewDecoder(r.Body).Decode(&span); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := span.Validate(); err != nil {
		writeServiceError(w, err)
		return
	}
	days := leave.DurationDays(span)
	writeJSON(w, http.StatusOK, DurationDTO{
		Days:      days,
		Hours:     leave.DurationHours(span),
		AutoHours: leave.AutoHours(span),
		Display:   leave.FormatDays(days),
	})
}

// GetRequest returns one request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Requests.GetRequest(r.Context(), generic.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteRequest removes a request and its attachments.
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.Requests.Delete(r.Context(), generic.RequestID(chi.URLParam(r, "id"))); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveRequest signs the current approval step.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Requests.Approve)
}

// RejectRequest rejects an in-process request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Requests.Reject)
}

// CancelRequest cancels an in-process or approved request.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Requests.Cancel)
}

type transitionFunc func(ctx context.Context, id generic.RequestID, actor leave.Actor, comment string) (leave.Request, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Actor.ID == "" {
		writeError(w, http.StatusBadRequest, "actor.id is required", nil)
		return
	}
	updated, err := fn(r.Context(), generic.RequestID(chi.URLParam(r, "id")), req.Actor, req.Comment)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// =============================================================================
// ATTACHMENT HANDLERS
// =============================================================================

// UploadAttachment accepts multipart form fields userId, applyDate
// (default today), sequence (default 1) and file.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 2*leave.MaxAttachmentSize)
	if err := r.ParseMultipartForm(leave.MaxAttachmentSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	userID := r.FormValue("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}
	applyDate := generic.Today()
	if s := r.FormValue("applyDate"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid applyDate", err)
			return
		}
		applyDate = d
	}
	seq := 1
	if s := r.FormValue("sequence"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sequence", err)
			return
		}
		seq = n
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", err)
		return
	}
	defer file.Close()

	ref, err := h.Requests.UploadAttachment(r.Context(), generic.UserID(userID), leave.AttachmentInput{
		ApplyDate:   applyDate,
		Sequence:    seq,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}

// DeleteAttachment removes the object behind ?ref=.
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("ref")
	if ref == "" {
		writeError(w, http.StatusBadRequest, "ref is required", nil)
		return
	}
	if err := h.Requests.DeleteAttachment(r.Context(), ref); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a domain error to its HTTP status.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case generic.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, generic.ErrQuotaExceeded), generic.IsInvariant(err):
		writeError(w, http.StatusUnprocessableEntity, "Rejected", err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

// parseMonth reads a required YYYY-MM query parameter.
func parseMonth(r *http.Request, key string) (generic.YearMonth, error) {
	return generic.ParseYearMonth(r.URL.Query().Get(key))
}
