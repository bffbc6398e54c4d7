/*
settlements.go - Overtime settlement and admin handlers

ENDPOINTS:
  Settlements:
    GET    /api/settlements             Records, optionally ?month=YYYY-MM
    POST   /api/settlements             Apply BATCH / SINGLE_BASE / SINGLE_PAY / BATCH_BASE
    GET    /api/settlements/preview     Worksheet for ?month=
    GET    /api/settlements/live        Live balance for ?userId=&month=
    GET    /api/settlements/review      Detail review rows for ?month=
    POST   /api/settlements/review      Apply a detail review

  Admin:
    POST   /api/admin/resync            Rewrite every overtime snapshot
    GET    /api/admin/config            Organization config as JSON
    PUT    /api/admin/config            Upsert organization config

PARTIAL FAILURE:
  When records are written but the quota snapshot sync fails, the response
  is still 200 with the written records and "syncError" set. The next
  resync repairs the snapshot.
*/
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/overtime"
)

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// ListSettlements returns settlement records.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	var month generic.YearMonth
	if r.URL.Query().Get("month") != "" {
		m, err := parseMonth(r, "month")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid month", err)
			return
		}
		month = m
	}
	records, err := h.Settlements.ListRecords(r.Context(), month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []overtime.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ApplySettlement runs one settlement action.
func (h *Handler) ApplySettlement(w http.ResponseWriter, r *http.Request) {
	var req SettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Settlements.ApplySettlement(r.Context(), req.toAction())
	h.writeResult(w, res, err)
}

// ApplyDetailReview records per-request corrections and re-derives the
// month's settlement bases.
func (h *Handler) ApplyDetailReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Settlements.ApplyDetailReview(r.Context(), req.toReview())
	h.writeResult(w, res, err)
}

func (h *Handler) writeResult(w http.ResponseWriter, res overtime.Result, err error) {
	if err != nil && !overtime.IsSyncError(err) {
		writeServiceError(w, err)
		return
	}
	dto := toResultDTO(res)
	if err != nil {
		dto.SyncError = err.Error()
	}
	writeJSON(w, http.StatusOK, dto)
}

// PreviewSettlement returns the settlement worksheet for a month.
func (h *Handler) PreviewSettlement(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	rows, err := h.Settlements.Preview(r.Context(), month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// GetLiveBalance returns the balance a user carries into a month.
func (h *Handler) GetLiveBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}
	month, err := parseMonth(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	hours, err := h.Settlements.LiveBalance(r.Context(), generic.UserID(userID), month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LiveBalanceDTO{UserID: userID, Month: month.String(), Hours: hours})
}

// ListReviewRows lists the approved overtime requests of a month.
func (h *Handler) ListReviewRows(w http.ResponseWriter, r *http.Request) {
	month, err := parseMonth(r, "month")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}
	rows, err := h.Settlements.ReviewRows(r.Context(), month)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []overtime.ReviewRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// TriggerResync rewrites every user's overtime snapshot now.
func (h *Handler) TriggerResync(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler != nil {
		n := h.Scheduler.RunNow(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshots": n,
			"lastRun":   h.Scheduler.LastRun().Format(time.RFC3339),
		})
		return
	}
	snaps, err := h.Settlements.Resync(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": len(snaps)})
}

// GetConfig returns categories, workflow groups, warning rules and users in
// the factory JSON shape.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.currentConfig(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(cfg))
}

// PutConfig upserts every item of a config document and reloads the
// category table.
func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	cfg, err := h.Factory.Parse(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}
	if err := factory.Apply(r.Context(), h.Store, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to apply config", err)
		return
	}
	if err := h.Requests.LoadCategories(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	h.GetConfig(w, r)
}

func (h *Handler) currentConfig(r *http.Request) (factory.Config, error) {
	ctx := r.Context()
	var (
		cfg factory.Config
		err error
	)
	if cfg.WorkflowGroups, err = h.Store.ListWorkflowGroups(ctx); err != nil {
		return factory.Config{}, generic.Collaborator("list workflow groups", err)
	}
	if cfg.WarningRules, err = h.Store.ListWarningRules(ctx); err != nil {
		return factory.Config{}, generic.Collaborator("list warning rules", err)
	}
	if cfg.Users, err = h.Store.ListUsers(ctx); err != nil {
		return factory.Config{}, generic.Collaborator("list users", err)
	}
	cfg.Categories = h.Requests.Categories().List()
	return cfg, nil
}
