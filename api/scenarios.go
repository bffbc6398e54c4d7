/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the store with realistic data
	for demos. Each scenario applies an organization config through the
	factory, then drives the services the same way the API would.

AVAILABLE SCENARIOS:
	basic-office:        Annual quota, two-step approval, sick-leave warning
	overtime-settlement: Approved overtime, compensatory leave, a settled month
	gender-categories:   Gender-restricted categories and title-capped workflow

HOW SCENARIOS WORK:
 1. Reset the store
 2. Apply the scenario's config JSON via factory
 3. Reload the category table
 4. Submit and approve requests through RequestService
 5. Optionally settle months through overtime.Service

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "overtime-settlement"}

NOTE:
	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "basic-office",
		Name:        "Basic Office",
		Description: "Annual leave with a two-step approval chain and a sick-leave warning rule",
	},
	{
		ID:          "overtime-settlement",
		Name:        "Overtime Settlement",
		Description: "Approved overtime, compensatory leave and a settled January feeding February",
	},
	{
		ID:          "gender-categories",
		Name:        "Gender Categories",
		Description: "Menstrual and paternity leave restrictions, directors approved in one step",
	},
}

var hrAdmin = leave.Actor{ID: "hr-1", Name: "HR Admin", Role: "hr"}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "basic-office":
		load = h.loadBasicOfficeScenario
	case "overtime-settlement":
		load = h.loadOvertimeSettlementScenario
	case "gender-categories":
		load = h.loadGenderCategoriesScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := load(ctx); err != nil {
		h.logger.ErrorContext(ctx, "scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears every table.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	if err := h.Requests.LoadCategories(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const baseCategoriesJSON = `[
	{"code": "ANNUAL", "name": "Annual leave", "quota": "annual"},
	{"code": "COMPENSATORY", "name": "Compensatory leave", "quota": "overtime_balance"},
	{"code": "OVERTIME", "name": "Overtime"},
	{"code": "SICK", "name": "Sick leave"},
	{"code": "PERSONAL", "name": "Personal leave"},
	{"code": "MENSTRUAL", "name": "Menstrual leave", "allowed_gender": "FEMALE_ONLY"},
	{"code": "PATERNITY", "name": "Paternity leave", "allowed_gender": "MALE_ONLY"}
]`

func (h *Handler) loadBasicOfficeScenario(ctx context.Context) error {
	err := h.applyConfig(ctx, `{
		"categories": `+baseCategoriesJSON+`,
		"workflow_groups": [{
			"id": "office", "name": "Office",
			"steps": [
				{"name": "Team lead", "approver_role": "lead"},
				{"name": "HR", "approver_role": "hr"}
			]
		}],
		"warning_rules": [{
			"id": "sick-3", "name": "Frequent sick leave", "target_type": "SICK",
			"threshold": 3, "message": "3 or more sick days taken", "color": "#f59e0b"
		}],
		"users": [
			{"id": "alice", "employee_id": "E001", "name": "Alice", "department": "Engineering",
			 "job_title": "Engineer", "gender": "FEMALE", "workflow_group_id": "office",
			 "annual_quota": {"2024": 14}},
			{"id": "bob", "employee_id": "E002", "name": "Bob", "department": "Engineering",
			 "job_title": "Engineer", "gender": "MALE", "workflow_group_id": "office",
			 "annual_quota": {"2024": 10}}
		]
	}`)
	if err != nil {
		return err
	}

	// Alice: 3 approved annual days, 3 approved sick days (fires the rule),
	// and one annual request still waiting on HR.
	if _, err := h.submitApproved(ctx, "alice", leave.CategoryAnnual, daySpan("2024-03-04", "2024-03-06")); err != nil {
		return err
	}
	if _, err := h.submitApproved(ctx, "alice", leave.CategorySick, daySpan("2024-04-08", "2024-04-09")); err != nil {
		return err
	}
	if _, err := h.submitApproved(ctx, "alice", leave.CategorySick, halfDay("2024-05-02", "09:00", "13:00")); err != nil {
		return err
	}
	if _, err := h.submitApproved(ctx, "alice", leave.CategorySick, halfDay("2024-05-20", "14:00", "18:00")); err != nil {
		return err
	}
	pending, err := h.submit(ctx, "alice", leave.CategoryAnnual, daySpan("2024-07-15", "2024-07-19"))
	if err != nil {
		return err
	}
	if _, err := h.Requests.Approve(ctx, pending.ID, leave.Actor{ID: "lead-1", Name: "Team Lead", Role: "lead"}, ""); err != nil {
		return err
	}

	// Bob: one rejected request.
	rejected, err := h.submit(ctx, "bob", leave.CategoryPersonal, daySpan("2024-06-03", "2024-06-03"))
	if err != nil {
		return err
	}
	_, err = h.Requests.Reject(ctx, rejected.ID, hrAdmin, "Release week")
	return err
}

func (h *Handler) loadOvertimeSettlementScenario(ctx context.Context) error {
	err := h.applyConfig(ctx, `{
		"categories": `+baseCategoriesJSON+`,
		"workflow_groups": [{
			"id": "ops", "name": "Operations",
			"steps": [{"name": "Manager", "approver_role": "manager"}]
		}],
		"users": [
			{"id": "carol", "employee_id": "E010", "name": "Carol", "department": "Operations",
			 "job_title": "Operator", "gender": "FEMALE", "workflow_group_id": "ops",
			 "annual_quota": {"2024": 12}},
			{"id": "dave", "employee_id": "E011", "name": "Dave", "department": "Operations",
			 "job_title": "Operator", "gender": "MALE", "workflow_group_id": "ops",
			 "annual_quota": {"2024": 12}}
		]
	}`)
	if err != nil {
		return err
	}

	// January: Carol works 3 evenings (9h), Dave one Saturday (8h).
	for _, day := range []string{"2024-01-09", "2024-01-16", "2024-01-23"} {
		if _, err := h.submitApproved(ctx, "carol", leave.CategoryOvertime, halfDay(day, "18:00", "21:00")); err != nil {
			return err
		}
	}
	if _, err := h.submitApproved(ctx, "dave", leave.CategoryOvertime, daySpan("2024-01-20", "2024-01-20")); err != nil {
		return err
	}

	signer := overtime.Signer{ID: hrAdmin.ID, Name: hrAdmin.Name, Role: hrAdmin.Role}
	jan := generic.NewYearMonth(2024, 1)
	if _, err := h.Settlements.ApplyDetailReview(ctx, overtime.Review{
		Month:         jan,
		AutoCalculate: true,
		Signer:        signer,
	}); err != nil {
		return err
	}
	if _, err := h.Settlements.ApplySettlement(ctx, overtime.Action{
		Kind:   overtime.ActionSinglePay,
		Month:  jan,
		UserID: "dave",
		Pay:    map[generic.UserID]decimal.Decimal{"dave": decimal.NewFromInt(4)},
		Signer: signer,
	}); err != nil {
		return err
	}

	// February: Carol spends half a day of her compensatory balance.
	_, err = h.submitApproved(ctx, "carol", leave.CategoryCompensatory, halfDay("2024-02-12", "09:00", "13:00"))
	return err
}

func (h *Handler) loadGenderCategoriesScenario(ctx context.Context) error {
	err := h.applyConfig(ctx, `{
		"categories": `+baseCategoriesJSON+`,
		"workflow_groups": [{
			"id": "corp", "name": "Corporate",
			"steps": [
				{"name": "Manager", "approver_role": "manager"},
				{"name": "Director", "approver_role": "director"},
				{"name": "HR", "approver_role": "hr"}
			],
			"title_rules": [{"job_title": "Director", "max_level": 1}]
		}],
		"users": [
			{"id": "erin", "employee_id": "E020", "name": "Erin", "job_title": "Analyst",
			 "gender": "FEMALE", "workflow_group_id": "corp", "annual_quota": {"2024": 15}},
			{"id": "frank", "employee_id": "E021", "name": "Frank", "job_title": "Director",
			 "gender": "MALE", "workflow_group_id": "corp", "annual_quota": {"2024": 20}}
		]
	}`)
	if err != nil {
		return err
	}
	if _, err := h.submitApproved(ctx, "erin", "MENSTRUAL", daySpan("2024-03-11", "2024-03-11")); err != nil {
		return err
	}
	if _, err := h.submitApproved(ctx, "frank", "PATERNITY", daySpan("2024-04-01", "2024-04-05")); err != nil {
		return err
	}
	_, err = h.submit(ctx, "erin", leave.CategoryAnnual, daySpan("2024-08-05", "2024-08-09"))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) applyConfig(ctx context.Context, jsonStr string) error {
	cfg, err := h.Factory.Parse([]byte(jsonStr))
	if err != nil {
		return fmt.Errorf("parse scenario config: %w", err)
	}
	if err := factory.Apply(ctx, h.Store, cfg); err != nil {
		return err
	}
	return h.Requests.LoadCategories(ctx)
}

func (h *Handler) submit(ctx context.Context, userID string, category leave.Category, span generic.Span) (leave.Request, error) {
	return h.Requests.Submit(ctx, leave.Draft{
		UserID:   generic.UserID(userID),
		Category: category,
		Span:     span,
		Reason:   "demo",
	})
}

// submitApproved submits a request and signs every approval step.
func (h *Handler) submitApproved(ctx context.Context, userID string, category leave.Category, span generic.Span) (leave.Request, error) {
	req, err := h.submit(ctx, userID, category, span)
	if err != nil {
		return leave.Request{}, err
	}
	for req.Status == leave.StatusInProcess {
		if req, err = h.Requests.Approve(ctx, req.ID, hrAdmin, ""); err != nil {
			return leave.Request{}, err
		}
	}
	return req, nil
}

func daySpan(start, end string) generic.Span {
	return generic.NewDaySpan(generic.MustParseDate(start), generic.MustParseDate(end))
}

func halfDay(day, from, to string) generic.Span {
	return generic.NewPartialSpan(generic.MustParseDate(day), generic.MustParseClock(from), generic.MustParseClock(to))
}
