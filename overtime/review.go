package overtime

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// DETAIL REVIEW
// =============================================================================

// ReviewEdit is the actual span and hours entered for one overtime request.
type ReviewEdit struct {
	Span  generic.Span    `json:"span"`
	Hours decimal.Decimal `json:"hours"`
}

// Review corrects the approved overtime requests of one month and re-derives
// each affected user's base from the corrected hours.
//
// Edits not supplied keep the row default. Verified lists the requests the
// reviewer signs off; each gets an UPDATE entry in its log. A request left
// out of Verified is stored unverified, so a review can withdraw a sign-off. With
// AutoCalculate the entered hours are replaced by leave.AutoHours of the span.
type Review struct {
	Month         generic.YearMonth
	Edits         map[generic.RequestID]ReviewEdit
	Verified      []generic.RequestID
	AutoCalculate bool
	Signer        Signer
}

// ReviewRow is one reviewable request with its current edit.
type ReviewRow struct {
	Request  leave.Request `json:"request"`
	Edit     ReviewEdit    `json:"edit"`
	Verified bool          `json:"verified"`
}

// ReviewRows lists approved OVERTIME requests starting in month, ordered by
// start date. A request without a correction defaults to its submitted span
// and zero hours.
func ReviewRows(requests []leave.Request, month generic.YearMonth) []ReviewRow {
	var rows []ReviewRow
	for _, r := range requests {
		if r.Category != leave.CategoryOvertime || r.Status != leave.StatusApproved {
			continue
		}
		if !month.Contains(r.Span.StartDate) {
			continue
		}
		rows = append(rows, ReviewRow{Request: r, Edit: defaultEdit(r), Verified: r.Correction != nil && r.Correction.Verified})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].Request, rows[j].Request
		if !a.Span.StartDate.Equal(b.Span.StartDate) {
			return a.Span.StartDate.Before(b.Span.StartDate)
		}
		return a.ID < b.ID
	})
	return rows
}

func defaultEdit(r leave.Request) ReviewEdit {
	if c, ok := r.Effective().(leave.Corrected); ok {
		return ReviewEdit{Span: c.Span, Hours: c.Hours}
	}
	span := r.Span
	if !span.PartialDay && !span.HasTimes() {
		span.StartTime = generic.ClockPtr(0)
		span.EndTime = generic.ClockPtr(0)
	}
	return ReviewEdit{Span: span, Hours: decimal.Zero}
}

// ReviewOutcome is what a review writes: the settlement records plus the
// requests whose correction or log changed.
type ReviewOutcome struct {
	Outcome
	Requests []leave.Request
}

// Review applies rv against st.
func (l *Ledger) Review(rv Review, st State) (ReviewOutcome, error) {
	if err := rv.Month.Validate(); err != nil {
		return ReviewOutcome{}, err
	}
	if rv.Signer.Name == "" {
		return ReviewOutcome{}, &InputError{Field: "signer", Reason: "signer name is required"}
	}

	rows := ReviewRows(st.Requests, rv.Month)
	byID := make(map[generic.RequestID]int, len(rows))
	for i, row := range rows {
		byID[row.Request.ID] = i
	}
	for id := range rv.Edits {
		if _, ok := byID[id]; !ok {
			return ReviewOutcome{}, &InputError{Field: "requestId", Value: string(id), Reason: "not an approved overtime request in " + rv.Month.String()}
		}
	}
	verified := make(map[generic.RequestID]bool, len(rv.Verified))
	for _, id := range rv.Verified {
		if _, ok := byID[id]; !ok {
			return ReviewOutcome{}, &InputError{Field: "verified", Value: string(id), Reason: "not an approved overtime request in " + rv.Month.String()}
		}
		verified[id] = true
	}

	now := l.now().UTC()
	var out ReviewOutcome
	totals := make(map[generic.UserID]decimal.Decimal)
	var users []generic.UserID
	updated := make(map[generic.RequestID]leave.Request)

	for _, row := range rows {
		req := row.Request
		edit, ok := rv.Edits[req.ID]
		if !ok {
			edit = row.Edit
		}
		if err := edit.Span.Validate(); err != nil {
			return ReviewOutcome{}, err
		}
		if rv.AutoCalculate {
			edit.Hours = leave.AutoHours(edit.Span)
		}
		if edit.Hours.IsNegative() {
			return ReviewOutcome{}, &InputError{UserID: req.UserID, Field: "hours", Value: edit.Hours.String(), Reason: "must not be negative"}
		}

		next := req.Clone()
		changed := false
		correction := leave.Correction{Span: edit.Span, Hours: edit.Hours, Verified: verified[req.ID]}
		if req.Correction == nil || !sameCorrection(*req.Correction, correction) {
			next.Correction = &correction
			changed = true
		}
		if verified[req.ID] {
			comment := fmt.Sprintf("actual span %s, approved hours %s", edit.Span, edit.Hours.String())
			last, hasLast := req.LastLog()
			if !hasLast || last.Action != leave.LogUpdate || last.Comment != comment {
				next.AppendLog(leave.ApprovalLog{Action: leave.LogUpdate, ActorID: rv.Signer.ID, ActorName: rv.Signer.Name, Comment: comment, At: now})
				changed = true
			}
		}
		if changed {
			next.UpdatedAt = now
			updated[req.ID] = next
			out.Requests = append(out.Requests, next)
		}

		if _, seen := totals[req.UserID]; !seen {
			users = append(users, req.UserID)
			totals[req.UserID] = decimal.Zero
		}
		totals[req.UserID] = totals[req.UserID].Add(edit.Hours)
	}

	merged := st
	merged.Requests = make([]leave.Request, len(st.Requests))
	for i, r := range st.Requests {
		if u, ok := updated[r.ID]; ok {
			r = u
		}
		merged.Requests[i] = r
	}

	existing := index(st.Records)
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	for _, id := range users {
		if !st.hasUser(id) {
			continue
		}
		prev, found := existing[Key{UserID: id, Month: rv.Month}]
		rec := Record{ID: l.newID(), UserID: id, Month: rv.Month, SettledAt: now, SettledBy: rv.Signer.Name}
		if found {
			rec = prev.Clone()
		}
		base := totals[id].Round(2)
		changed := !base.Equal(rec.ActualHours)
		rec.ActualHours = base
		recompute(&rec, merged)

		if w := l.checkBase(rec); w != nil {
			if l.basePolicy == BaseEnforced {
				return ReviewOutcome{}, w
			}
			out.Warnings = append(out.Warnings, w)
		}
		if changed || rec.BaseAuth == nil || l.reauth == ReauthorizeExplicit {
			rec.BaseAuth = rv.Signer.stamp(now)
		} else if found && sameFigures(prev, rec) {
			continue
		}
		out.Records = append(out.Records, rec)
		out.Touched = append(out.Touched, id)
	}
	out.Records = append(out.Records, carryForward(out.Records, merged)...)
	return out, nil
}

func sameCorrection(a, b leave.Correction) bool {
	return a.Span.Equal(b.Span) && a.Hours.Equal(b.Hours) && a.Verified == b.Verified
}
