/*
balance.go - Quota balance arithmetic

PURPOSE:
  Answers "how much may this user still request?" from three components.
  The caller supplies the sums; this file only owns the formula.

BALANCE COMPONENTS:
  Entitlement: What the user is granted for the period
  Used:        Finalized (approved) consumption
  Pending:     In-flight requests, not yet approved or rejected

AVAILABILITY CALCULATION:
  Remaining = max(0, Entitlement - (Used + Pending))

  Pending is subtracted up front so that two concurrent drafts cannot both
  be submitted against the same unused days.

EXAMPLE:
  10 days entitlement, 3 approved, 2 pending:
    Remaining = 10 - (3 + 2) = 5 days

SEE ALSO:
  - leave/quota.go: Computes Used and Pending from request history
*/
package generic

// =============================================================================
// BALANCE
// =============================================================================

type Balance struct {
	Entitlement Amount
	Used        Amount
	Pending     Amount
}

// NewBalance returns a zero balance in the given unit.
func NewBalance(unit Unit) Balance {
	zero := NewAmountFromInt(0, unit)
	return Balance{Entitlement: zero, Used: zero, Pending: zero}
}

// Consumed returns Used + Pending.
func (b Balance) Consumed() Amount {
	return b.Used.Add(b.Pending)
}

// Remaining returns Entitlement - (Used + Pending), never negative.
func (b Balance) Remaining() Amount {
	return b.Entitlement.Sub(b.Consumed()).ClampZero()
}

// Covers reports whether the requested amount fits in what remains.
func (b Balance) Covers(requested Amount) bool {
	return !requested.GreaterThan(b.Remaining())
}
