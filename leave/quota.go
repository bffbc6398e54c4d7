/*
quota.go - Quota accountant

PURPOSE:
  Answers "how many days of this category does the user have left?" while
  counting both finalized and in-flight requests. Read-only: it is called on
  every keystroke of a draft and must never mutate anything.

FORMULA:
  remaining = max(0, entitlement - (used + pending))

  entitlement: by QuotaKind
    annual           -> user.Quota.Annual[year]
    overtime_balance -> user.Quota.Overtime (synchronized snapshot)
    none             -> 0
  used:    DurationDays over APPROVED requests of the category
  pending: DurationDays over in-process requests of the category

  Annual leave only counts requests whose start date falls in the year.
  The request being edited is excluded by id so a resubmission does not
  count against itself.

SEE ALSO:
  - generic/balance.go: Remaining() formula
  - duration.go: DurationDays
*/
package leave

import (
	"github.com/warp/leave-engine/generic"
)

// QuotaReport is a computed balance for one user, category and year.
type QuotaReport struct {
	UserID   generic.UserID  `json:"userId"`
	Category Category        `json:"category"`
	Kind     QuotaKind       `json:"kind"`
	Year     int             `json:"year"`
	Balance  generic.Balance `json:"-"`
}

// Remaining is shorthand for Balance.Remaining().
func (q QuotaReport) Remaining() generic.Amount {
	return q.Balance.Remaining()
}

// ComputeQuota returns the balance of def for user in year.
// requests may contain other users' requests; they are ignored.
func ComputeQuota(user User, def CategoryDef, year int, requests []Request, excludeID generic.RequestID) QuotaReport {
	balance := generic.NewBalance(generic.UnitDays)
	balance.Entitlement = entitlement(user, def, year)

	for _, r := range requests {
		if r.UserID != user.ID || r.Category != def.Code {
			continue
		}
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if def.Quota == QuotaAnnual && r.Span.StartDate.Year() != year {
			continue
		}
		d := Duration(r.Span, generic.UnitDays)
		switch {
		case r.Status == StatusApproved:
			balance.Used = balance.Used.Add(d)
		case r.Status.Pending():
			balance.Pending = balance.Pending.Add(d)
		}
	}

	return QuotaReport{
		UserID:   user.ID,
		Category: def.Code,
		Kind:     def.Quota,
		Year:     year,
		Balance:  balance,
	}
}

func entitlement(user User, def CategoryDef, year int) generic.Amount {
	switch def.Quota {
	case QuotaAnnual:
		return generic.NewAmountFromDecimal(user.Quota.AnnualFor(year), generic.UnitDays)
	case QuotaOvertimeBalance:
		return generic.NewAmountFromDecimal(user.Quota.Overtime, generic.UnitDays)
	}
	return generic.NewAmountFromInt(0, generic.UnitDays)
}
