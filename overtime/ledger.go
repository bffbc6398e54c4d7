/*
ledger.go - Monthly overtime settlement ledger

PURPOSE:
  Computes what a settlement action does to each user's (year, month)
  record. The ledger is pure: it takes one consistently-read State and
  returns the records to upsert. Service does the reading and writing.

CARRY-FORWARD:
  live      = previous month's RemainingHours (Jan wraps to prior Dec), else 0
  remaining = live + ActualHours - PaidHours - compensatory hours this month

  AppliedHours (approved OVERTIME hours by original start date) is
  informational and recomputed on every write.

  Writing a month also recomputes every later record of the same user in
  month order, each from the record before it as just rewritten. Later
  records keep their base, pay and signatures; only derived figures move.
  A record with neither signature is an opening balance and is never
  recomputed.

ACTION KINDS:
  BATCH        sets base and/or pay for every user with an input
  BATCH_BASE   sets base for every user with a base input
  SINGLE_BASE  sets base for one user
  SINGLE_PAY   sets pay for one user

AUTHORIZATION:
  BaseAuth and PayAuth are independent. A signature is overwritten when its
  sub-field changes value, and set when an action writes a sub-field that
  has never been signed, even to an unchanged value. Under
  ReauthorizeExplicit an explicit base action (SINGLE_BASE, BATCH_BASE) or
  SINGLE_PAY re-stamps a signed value even when it is unchanged; BATCH never
  re-stamps a signed, unchanged value. Under
  ReauthorizeOnChange nothing re-stamps unless the value changes.

  A write that changes no figure and stamps nothing returns the stored
  record untouched, so rerunning an action is a no-op.

BASE RANGE:
  A base outside [0, AppliedHours] is reported as *BaseOutOfRangeError.
  BaseAdvisory returns it as a warning next to the write, BaseEnforced
  rejects the whole action before anything is written.

SEE ALSO:
  - review.go: Detail-review variant deriving the base from corrections
  - sync.go: Snapshot derivation after a write
*/
package overtime

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// POLICIES
// =============================================================================

type BasePolicy string

const (
	BaseAdvisory BasePolicy = "advisory"
	BaseEnforced BasePolicy = "enforced"
)

func ParseBasePolicy(s string) (BasePolicy, error) {
	switch p := BasePolicy(s); p {
	case BaseAdvisory, BaseEnforced:
		return p, nil
	case "":
		return BaseAdvisory, nil
	}
	return "", fmt.Errorf("%w: unknown base policy %q", generic.ErrValidation, s)
}

type ReauthorizePolicy string

const (
	ReauthorizeExplicit ReauthorizePolicy = "explicit"
	ReauthorizeOnChange ReauthorizePolicy = "on_change"
)

func ParseReauthorizePolicy(s string) (ReauthorizePolicy, error) {
	switch p := ReauthorizePolicy(s); p {
	case ReauthorizeExplicit, ReauthorizeOnChange:
		return p, nil
	case "":
		return ReauthorizeExplicit, nil
	}
	return "", fmt.Errorf("%w: unknown reauthorize policy %q", generic.ErrValidation, s)
}

// =============================================================================
// ACTIONS
// =============================================================================

type ActionKind string

const (
	ActionBatch      ActionKind = "BATCH"
	ActionSingleBase ActionKind = "SINGLE_BASE"
	ActionSinglePay  ActionKind = "SINGLE_PAY"
	ActionBatchBase  ActionKind = "BATCH_BASE"
)

func (k ActionKind) Valid() bool {
	switch k {
	case ActionBatch, ActionSingleBase, ActionSinglePay, ActionBatchBase:
		return true
	}
	return false
}

func (k ActionKind) setsBase() bool     { return k == ActionBatch || k == ActionSingleBase || k == ActionBatchBase }
func (k ActionKind) setsPay() bool      { return k == ActionBatch || k == ActionSinglePay }
func (k ActionKind) explicitBase() bool { return k == ActionSingleBase || k == ActionBatchBase }
func (k ActionKind) explicitPay() bool  { return k == ActionSinglePay }
func (k ActionKind) single() bool       { return k == ActionSingleBase || k == ActionSinglePay }

// Action is one authorized settlement for a month. Base and Pay hold the
// caller-entered hours per user; a user without an entry keeps the stored
// value for that sub-field.
type Action struct {
	Kind   ActionKind
	Month  generic.YearMonth
	UserID generic.UserID
	Base   map[generic.UserID]decimal.Decimal
	Pay    map[generic.UserID]decimal.Decimal
	Signer Signer
}

// Targets returns the users the action touches, sorted.
func (a Action) Targets() []generic.UserID {
	set := make(map[generic.UserID]struct{})
	switch a.Kind {
	case ActionBatch:
		for id := range a.Base {
			set[id] = struct{}{}
		}
		for id := range a.Pay {
			set[id] = struct{}{}
		}
	case ActionBatchBase:
		for id := range a.Base {
			set[id] = struct{}{}
		}
	case ActionSingleBase, ActionSinglePay:
		if a.UserID != "" {
			set[a.UserID] = struct{}{}
		}
	}
	ids := make([]generic.UserID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a Action) Validate() error {
	if !a.Kind.Valid() {
		return &InputError{Field: "action", Value: string(a.Kind), Reason: "unknown action kind"}
	}
	if err := a.Month.Validate(); err != nil {
		return err
	}
	if a.Signer.Name == "" {
		return &InputError{Field: "signer", Reason: "signer name is required"}
	}
	if a.Kind.single() && a.UserID == "" {
		return &InputError{Field: "userId", Value: string(a.Kind), Reason: "single action needs a user"}
	}
	if len(a.Targets()) == 0 {
		return &InputError{Field: "inputs", Value: string(a.Kind), Reason: "no users to settle"}
	}
	for id, v := range a.Pay {
		if v.IsNegative() {
			return &InputError{UserID: id, Field: "pay", Value: v.String(), Reason: "must not be negative"}
		}
	}
	return nil
}

func (a Action) baseInput(id generic.UserID) (decimal.Decimal, bool) {
	if !a.Kind.setsBase() {
		return decimal.Zero, false
	}
	v, ok := a.Base[id]
	return v, ok
}

func (a Action) payInput(id generic.UserID) (decimal.Decimal, bool) {
	if !a.Kind.setsPay() {
		return decimal.Zero, false
	}
	v, ok := a.Pay[id]
	return v, ok
}

// =============================================================================
// LEDGER
// =============================================================================

// State is the consistent snapshot an action is computed from.
type State struct {
	Records  []Record
	Requests []leave.Request
	Users    []leave.User
}

func (st State) hasUser(id generic.UserID) bool {
	for _, u := range st.Users {
		if u.ID == id {
			return true
		}
	}
	return false
}

// Outcome is what an action would write.
type Outcome struct {
	Records  []Record
	Warnings []*BaseOutOfRangeError
	Touched  []generic.UserID
}

type Ledger struct {
	basePolicy BasePolicy
	reauth     ReauthorizePolicy
	now        func() time.Time
	newID      func() generic.RecordID
}

type LedgerOption func(*Ledger)

func WithBasePolicy(p BasePolicy) LedgerOption {
	return func(l *Ledger) { l.basePolicy = p }
}

func WithReauthorize(p ReauthorizePolicy) LedgerOption {
	return func(l *Ledger) { l.reauth = p }
}

// WithLedgerClock overrides time.Now, for tests.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// WithRecordIDs overrides record id generation, for tests.
func WithRecordIDs(fn func() generic.RecordID) LedgerOption {
	return func(l *Ledger) { l.newID = fn }
}

func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		basePolicy: BaseAdvisory,
		reauth:     ReauthorizeExplicit,
		now:        time.Now,
		newID:      func() generic.RecordID { return generic.RecordID(uuid.NewString()) },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) BasePolicy() BasePolicy               { return l.basePolicy }
func (l *Ledger) ReauthorizePolicy() ReauthorizePolicy { return l.reauth }

// LiveBalance returns the balance carried into month: the previous month's
// RemainingHours for userID, or zero when there is no such record.
func LiveBalance(records []Record, userID generic.UserID, month generic.YearMonth) decimal.Decimal {
	prev := month.Prev()
	for _, r := range records {
		if r.UserID == userID && r.Month == prev {
			return r.RemainingHours
		}
	}
	return decimal.Zero
}

// AppliedHours sums approved OVERTIME hours for userID whose original start
// date falls in month.
func AppliedHours(requests []leave.Request, userID generic.UserID, month generic.YearMonth) decimal.Decimal {
	return monthlyHours(requests, userID, month, leave.CategoryOvertime)
}

// CompensatoryHours sums approved COMPENSATORY hours for userID starting in
// month.
func CompensatoryHours(requests []leave.Request, userID generic.UserID, month generic.YearMonth) decimal.Decimal {
	return monthlyHours(requests, userID, month, leave.CategoryCompensatory)
}

func monthlyHours(requests []leave.Request, userID generic.UserID, month generic.YearMonth, category leave.Category) decimal.Decimal {
	total := decimal.Zero
	for _, r := range requests {
		if r.UserID != userID || r.Status != leave.StatusApproved || r.Category != category {
			continue
		}
		if !month.Contains(r.Span.StartDate) {
			continue
		}
		total = total.Add(leave.DurationHours(r.Span))
	}
	return total.Round(2)
}

// recompute fills the derived figures of rec from st.
func recompute(rec *Record, st State) {
	rec.AppliedHours = AppliedHours(st.Requests, rec.UserID, rec.Month)
	live := LiveBalance(st.Records, rec.UserID, rec.Month)
	comp := CompensatoryHours(st.Requests, rec.UserID, rec.Month)
	rec.RemainingHours = live.Add(rec.ActualHours).Sub(rec.PaidHours).Sub(comp)
}

func (l *Ledger) checkBase(rec Record) *BaseOutOfRangeError {
	if rec.ActualHours.IsNegative() || rec.ActualHours.GreaterThan(rec.AppliedHours) {
		return &BaseOutOfRangeError{UserID: rec.UserID, Month: rec.Month, Base: rec.ActualHours, Applied: rec.AppliedHours}
	}
	return nil
}

// Apply computes the records action a writes against st.
func (l *Ledger) Apply(a Action, st State) (Outcome, error) {
	if err := a.Validate(); err != nil {
		return Outcome{}, err
	}
	existing := index(st.Records)
	now := l.now().UTC()

	var out Outcome
	for _, id := range a.Targets() {
		if !st.hasUser(id) {
			return Outcome{}, &generic.NotFoundError{Kind: "user", ID: string(id)}
		}
		prev, found := existing[Key{UserID: id, Month: a.Month}]
		rec := Record{ID: l.newID(), UserID: id, Month: a.Month}
		if found {
			rec = prev.Clone()
		}

		base, hasBase := a.baseInput(id)
		pay, hasPay := a.payInput(id)
		oldBase, oldPaid := rec.ActualHours, rec.PaidHours
		if hasBase {
			rec.ActualHours = base
		}
		if hasPay {
			rec.PaidHours = pay
		}
		recompute(&rec, st)

		if hasBase {
			if w := l.checkBase(rec); w != nil {
				if l.basePolicy == BaseEnforced {
					return Outcome{}, w
				}
				out.Warnings = append(out.Warnings, w)
			}
		}

		stamped := false
		if hasBase && (!base.Equal(oldBase) || rec.BaseAuth == nil || (a.Kind.explicitBase() && l.reauth == ReauthorizeExplicit)) {
			rec.BaseAuth = a.Signer.stamp(now)
			stamped = true
		}
		if hasPay && (!pay.Equal(oldPaid) || rec.PayAuth == nil || (a.Kind.explicitPay() && l.reauth == ReauthorizeExplicit)) {
			rec.PayAuth = a.Signer.stamp(now)
			stamped = true
		}

		if found && !stamped && sameFigures(prev, rec) {
			rec = prev
		} else {
			rec.SettledAt = now
			rec.SettledBy = a.Signer.Name
		}
		out.Records = append(out.Records, rec)
		out.Touched = append(out.Touched, id)
	}
	out.Records = append(out.Records, carryForward(out.Records, st)...)
	return out, nil
}

// carryForward recomputes the records that follow each written month of the
// same user, against the chain with written already in place. It returns
// the later records whose figures changed.
func carryForward(written []Record, st State) []Record {
	from := make(map[generic.UserID]generic.YearMonth, len(written))
	for _, w := range written {
		if m, ok := from[w.UserID]; !ok || m.After(w.Month) {
			from[w.UserID] = w.Month
		}
	}
	return rechain(merge(st.Records, written), st.Requests, func(r Record) bool {
		m, ok := from[r.UserID]
		return ok && r.Month.After(m)
	})
}

// Recalculate recomputes every settled record of st in month order and
// returns the ones whose figures drifted from the chain, for example after
// a compensatory request was approved in an already settled month.
func Recalculate(st State) []Record {
	return rechain(st.Records, st.Requests, func(Record) bool { return true })
}

// rechain recomputes, in month order, the settled records of chain selected
// by include. Each one reads its live balance from the chain as already
// updated. Base, pay and signatures are kept.
func rechain(chain []Record, requests []leave.Request, include func(Record) bool) []Record {
	sorted := make([]Record, len(chain))
	copy(sorted, chain)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[j].Month.After(sorted[i].Month) })

	st := State{Records: sorted, Requests: requests}
	var changed []Record
	for i, r := range sorted {
		if !r.settled() || !include(r) {
			continue
		}
		next := r.Clone()
		recompute(&next, st)
		if sameFigures(r, next) {
			continue
		}
		sorted[i] = next
		changed = append(changed, next)
	}
	return changed
}
