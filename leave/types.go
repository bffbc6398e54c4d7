// Package leave implements leave requests, quota accounting, overlap
// detection and threshold warnings on top of the generic primitives.
package leave

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// CATEGORY
// =============================================================================

// Category identifies a leave type. The set is data-driven (see CategorySet);
// the constants below are the ones the engine itself refers to.
type Category string

const (
	CategoryAnnual       Category = "ANNUAL"
	CategoryOvertime     Category = "OVERTIME"
	CategoryCompensatory Category = "COMPENSATORY"
	CategorySick         Category = "SICK"
	CategoryPersonal     Category = "PERSONAL"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusInProcess Status = "IN_PROCESS"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the request no longer counts against anything.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// Pending reports whether the request is still moving through approval.
func (s Status) Pending() bool {
	return !s.Terminal() && s != StatusApproved
}

func (s Status) Valid() bool {
	switch s {
	case StatusInProcess, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// USER
// =============================================================================

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

type User struct {
	ID              generic.UserID `json:"id"`
	EmployeeID      string         `json:"employeeId"`
	Name            string         `json:"name"`
	Department      string         `json:"department"`
	JobTitle        string         `json:"jobTitle"`
	Gender          Gender         `json:"gender"`
	WorkflowGroupID string         `json:"workflowGroupId"`
	Quota           Quota          `json:"quota"`
}

// Quota holds a user's entitlements in days.
//
// Overtime is a derived snapshot of the user's latest settlement balance.
// Stores populate it on read; only overtime.Synchronizer writes it, through
// overtime.SnapshotWriter. SaveUser ignores it.
type Quota struct {
	Annual   map[int]decimal.Decimal `json:"annual"`
	Overtime decimal.Decimal         `json:"overtime"`
}

// AnnualFor returns the annual entitlement for year, or zero.
func (q Quota) AnnualFor(year int) decimal.Decimal {
	if q.Annual == nil {
		return decimal.Zero
	}
	return q.Annual[year]
}

// =============================================================================
// REQUEST
// =============================================================================

type LogAction string

const (
	LogSubmit  LogAction = "SUBMIT"
	LogUpdate  LogAction = "UPDATE"
	LogApprove LogAction = "APPROVE"
	LogReject  LogAction = "REJECT"
	LogCancel  LogAction = "CANCEL"
)

// ApprovalLog is one entry in a request's append-only history.
type ApprovalLog struct {
	Action    LogAction `json:"action"`
	ActorID   string    `json:"actorId"`
	ActorName string    `json:"actorName"`
	Comment   string    `json:"comment,omitempty"`
	At        time.Time `json:"at"`
}

// Correction is the post-hoc actual span and duration entered for an
// overtime request during detail review.
type Correction struct {
	Span     generic.Span    `json:"span"`
	Hours    decimal.Decimal `json:"hours"`
	Verified bool            `json:"verified"`
}

type Request struct {
	ID          generic.RequestID `json:"id"`
	UserID      generic.UserID    `json:"userId"`
	Category    Category          `json:"category"`
	Span        generic.Span      `json:"span"`
	Reason      string            `json:"reason"`
	Deputy      string            `json:"deputy,omitempty"`
	Status      Status            `json:"status"`
	CurrentStep int               `json:"currentStep"`
	TotalSteps  int               `json:"totalSteps"`
	ApprovedBy  []string          `json:"approvedBy"`
	Logs        []ApprovalLog     `json:"logs"`
	Attachments []string          `json:"attachments"`
	Correction  *Correction       `json:"correction,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy so callers can mutate without aliasing a
// snapshot that other computations still read.
func (r Request) Clone() Request {
	out := r
	out.ApprovedBy = append([]string(nil), r.ApprovedBy...)
	out.Logs = append([]ApprovalLog(nil), r.Logs...)
	out.Attachments = append([]string(nil), r.Attachments...)
	if r.Correction != nil {
		c := *r.Correction
		out.Correction = &c
	}
	return out
}

// AppendLog adds an entry to the history. Entries are never rewritten.
func (r *Request) AppendLog(entry ApprovalLog) {
	r.Logs = append(r.Logs, entry)
}

// LastLog returns the most recent history entry, if any.
func (r Request) LastLog() (ApprovalLog, bool) {
	if len(r.Logs) == 0 {
		return ApprovalLog{}, false
	}
	return r.Logs[len(r.Logs)-1], true
}

// =============================================================================
// EFFECTIVE SPAN - Submitted | Corrected
// =============================================================================

// Effective is the authoritative extent of a request for settlement: either
// the span as submitted, or a detail-review correction that supersedes it.
type Effective interface {
	EffectiveSpan() generic.Span
	isEffective()
}

// Submitted is a request with no correction.
type Submitted struct {
	Span generic.Span
}

// Corrected is a request whose actual span and hours were fixed in review.
type Corrected struct {
	Span     generic.Span
	Hours    decimal.Decimal
	Verified bool
}

func (s Submitted) EffectiveSpan() generic.Span { return s.Span }
func (c Corrected) EffectiveSpan() generic.Span { return c.Span }
func (Submitted) isEffective()                  {}
func (Corrected) isEffective()                  {}

// Effective returns which value is authoritative for this request.
func (r Request) Effective() Effective {
	if r.Correction != nil {
		return Corrected{Span: r.Correction.Span, Hours: r.Correction.Hours, Verified: r.Correction.Verified}
	}
	return Submitted{Span: r.Span}
}

// Actor identifies who performs a workflow or settlement action.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}
