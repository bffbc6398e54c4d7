/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the domain
  types from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Requests:    DraftRequest, ActionRequest, CheckDTO, DurationDTO
  Quota:       QuotaDTO
  Settlements: SettlementRequest, ReviewRequest, SettlementResultDTO
  Scenarios:   ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and services, not in DTOs.

SEE ALSO:
  - handlers.go, settlements.go: Use these types
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// DraftRequest is the body of submit, edit and preview calls.
type DraftRequest struct {
	UserID      string       `json:"userId"`
	Category    string       `json:"category"`
	Span        generic.Span `json:"span"`
	Reason      string       `json:"reason"`
	Deputy      string       `json:"deputy,omitempty"`
	Attachments []string     `json:"attachments,omitempty"`
	ExcludeID   string       `json:"excludeId,omitempty"`
}

func (d DraftRequest) toDraft(id generic.RequestID) leave.Draft {
	return leave.Draft{
		ID:          id,
		UserID:      generic.UserID(d.UserID),
		Category:    leave.Category(d.Category),
		Span:        d.Span,
		Reason:      d.Reason,
		Deputy:      d.Deputy,
		Attachments: d.Attachments,
	}
}

// ActionRequest is the body of approve, reject and cancel calls.
type ActionRequest struct {
	Actor   leave.Actor `json:"actor"`
	Comment string      `json:"comment,omitempty"`
}

// CheckDTO reports the outcome of a submission preview.
type CheckDTO struct {
	OK       bool           `json:"ok"`
	Days     string         `json:"days"`
	Hours    string         `json:"hours"`
	Quota    *QuotaDTO      `json:"quota,omitempty"`
	Conflict *leave.Request `json:"conflict,omitempty"`
}

// DurationDTO reports the computed extent of a span.
type DurationDTO struct {
	Days      decimal.Decimal `json:"days"`
	Hours     decimal.Decimal `json:"hours"`
	AutoHours decimal.Decimal `json:"autoHours"`
	Display   string          `json:"display"`
}

// QuotaDTO is a quota report in days.
type QuotaDTO struct {
	UserID      string          `json:"userId"`
	Category    string          `json:"category"`
	Kind        string          `json:"kind"`
	Year        int             `json:"year"`
	Entitlement decimal.Decimal `json:"entitlement"`
	Used        decimal.Decimal `json:"used"`
	Pending     decimal.Decimal `json:"pending"`
	Remaining   decimal.Decimal `json:"remaining"`
	Display     string          `json:"display"`
}

func toQuotaDTO(q leave.QuotaReport) QuotaDTO {
	remaining := q.Remaining().Value
	return QuotaDTO{
		UserID:      string(q.UserID),
		Category:    string(q.Category),
		Kind:        string(q.Kind),
		Year:        q.Year,
		Entitlement: q.Balance.Entitlement.Value,
		Used:        q.Balance.Used.Value,
		Pending:     q.Balance.Pending.Value,
		Remaining:   remaining,
		Display:     leave.FormatDays(remaining),
	}
}

// OverlapDTO answers an overlap check.
type OverlapDTO struct {
	Overlaps bool           `json:"overlaps"`
	Conflict *leave.Request `json:"conflict,omitempty"`
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// SettlementRequest is the body of POST /api/settlements.
type SettlementRequest struct {
	Action string                     `json:"action"`
	Month  generic.YearMonth          `json:"month"`
	UserID string                     `json:"userId,omitempty"`
	Base   map[string]decimal.Decimal `json:"base,omitempty"`
	Pay    map[string]decimal.Decimal `json:"pay,omitempty"`
	Signer overtime.Signer            `json:"signer"`
}

func (r SettlementRequest) toAction() overtime.Action {
	return overtime.Action{
		Kind:   overtime.ActionKind(r.Action),
		Month:  r.Month,
		UserID: generic.UserID(r.UserID),
		Base:   toUserMap(r.Base),
		Pay:    toUserMap(r.Pay),
		Signer: r.Signer,
	}
}

func toUserMap(m map[string]decimal.Decimal) map[generic.UserID]decimal.Decimal {
	if m == nil {
		return nil
	}
	out := make(map[generic.UserID]decimal.Decimal, len(m))
	for k, v := range m {
		out[generic.UserID(k)] = v
	}
	return out
}

// ReviewRequest is the body of POST /api/settlements/review.
type ReviewRequest struct {
	Month         generic.YearMonth              `json:"month"`
	Edits         map[string]overtime.ReviewEdit `json:"edits,omitempty"`
	Verified      []string                       `json:"verified,omitempty"`
	AutoCalculate bool                           `json:"autoCalculate,omitempty"`
	Signer        overtime.Signer                `json:"signer"`
}

func (r ReviewRequest) toReview() overtime.Review {
	rv := overtime.Review{
		Month:         r.Month,
		AutoCalculate: r.AutoCalculate,
		Signer:        r.Signer,
		Edits:         make(map[generic.RequestID]overtime.ReviewEdit, len(r.Edits)),
	}
	for id, e := range r.Edits {
		rv.Edits[generic.RequestID(id)] = e
	}
	for _, id := range r.Verified {
		rv.Verified = append(rv.Verified, generic.RequestID(id))
	}
	return rv
}

// WarningDTO is a base-out-of-range warning.
type WarningDTO struct {
	UserID  string          `json:"userId"`
	Month   string          `json:"month"`
	Base    decimal.Decimal `json:"base"`
	Applied decimal.Decimal `json:"applied"`
	Message string          `json:"message"`
}

// SnapshotDTO is an overtime quota snapshot written after a settlement.
type SnapshotDTO struct {
	UserID string          `json:"userId"`
	Month  string          `json:"month"`
	Days   decimal.Decimal `json:"days"`
}

// SettlementResultDTO is what a settlement or review wrote. SyncError is set
// when the records were written but the quota snapshot was not.
type SettlementResultDTO struct {
	Records   []overtime.Record `json:"records"`
	Requests  []leave.Request   `json:"requests,omitempty"`
	Warnings  []WarningDTO      `json:"warnings"`
	Snapshots []SnapshotDTO     `json:"snapshots"`
	SyncError string            `json:"syncError,omitempty"`
}

func toResultDTO(res overtime.Result) SettlementResultDTO {
	dto := SettlementResultDTO{
		Records:   res.Records,
		Requests:  res.Requests,
		Warnings:  make([]WarningDTO, 0, len(res.Warnings)),
		Snapshots: toSnapshotDTOs(res.Snapshots),
	}
	if dto.Records == nil {
		dto.Records = []overtime.Record{}
	}
	for _, w := range res.Warnings {
		dto.Warnings = append(dto.Warnings, WarningDTO{
			UserID:  string(w.UserID),
			Month:   w.Month.String(),
			Base:    w.Base,
			Applied: w.Applied,
			Message: w.Error(),
		})
	}
	return dto
}

func toSnapshotDTOs(snaps []overtime.Snapshot) []SnapshotDTO {
	out := make([]SnapshotDTO, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, SnapshotDTO{UserID: string(s.UserID()), Month: s.Month().String(), Days: s.Days()})
	}
	return out
}

// LiveBalanceDTO is the balance a user carries into a month.
type LiveBalanceDTO struct {
	UserID string          `json:"userId"`
	Month  string          `json:"month"`
	Hours  decimal.Decimal `json:"hours"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
