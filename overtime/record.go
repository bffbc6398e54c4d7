// Package overtime implements monthly overtime settlement: the settlement
// ledger, detail review of overtime corrections and the synchronizer that
// keeps each user's overtime quota snapshot derived from the ledger.
package overtime

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Signature is an authorization stamp on one sub-field of a record.
type Signature struct {
	Name string    `json:"name"`
	Role string    `json:"role"`
	At   time.Time `json:"at"`
}

// Signer is who authorizes a settlement action.
type Signer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

func (s Signer) stamp(at time.Time) *Signature {
	return &Signature{Name: s.Name, Role: s.Role, At: at}
}

// Record is the settlement of one user for one month. At most one exists per
// (UserID, Month); writes are upserts on that key.
//
// ActualHours (the base) and PaidHours are the only inputs. AppliedHours and
// RemainingHours are recomputed on every write.
type Record struct {
	ID             generic.RecordID  `json:"id"`
	UserID         generic.UserID    `json:"userId"`
	Month          generic.YearMonth `json:"month"`
	AppliedHours   decimal.Decimal   `json:"appliedHours"`
	ActualHours    decimal.Decimal   `json:"actualHours"`
	PaidHours      decimal.Decimal   `json:"paidHours"`
	RemainingHours decimal.Decimal   `json:"remainingHours"`
	BaseAuth       *Signature        `json:"baseAuth,omitempty"`
	PayAuth        *Signature        `json:"payAuth,omitempty"`
	SettledAt      time.Time         `json:"settledAt"`
	SettledBy      string            `json:"settledBy"`
}

// Key identifies a record.
type Key struct {
	UserID generic.UserID
	Month  generic.YearMonth
}

func (r Record) Key() Key {
	return Key{UserID: r.UserID, Month: r.Month}
}

// Clone copies the record including its signatures.
func (r Record) Clone() Record {
	out := r
	if r.BaseAuth != nil {
		s := *r.BaseAuth
		out.BaseAuth = &s
	}
	if r.PayAuth != nil {
		s := *r.PayAuth
		out.PayAuth = &s
	}
	return out
}

// settled reports whether r was written by a signed settlement.
func (r Record) settled() bool {
	return r.BaseAuth != nil || r.PayAuth != nil
}

// sameFigures reports whether the numeric fields of a and b match.
func sameFigures(a, b Record) bool {
	return a.AppliedHours.Equal(b.AppliedHours) &&
		a.ActualHours.Equal(b.ActualHours) &&
		a.PaidHours.Equal(b.PaidHours) &&
		a.RemainingHours.Equal(b.RemainingHours)
}

// index maps records by key. Later duplicates win, matching upsert order.
func index(records []Record) map[Key]Record {
	m := make(map[Key]Record, len(records))
	for _, r := range records {
		m[r.Key()] = r
	}
	return m
}

// merge returns base with written replacing records of the same key.
func merge(base, written []Record) []Record {
	byKey := index(written)
	out := make([]Record, 0, len(base)+len(written))
	seen := make(map[Key]bool, len(written))
	for _, r := range base {
		if w, ok := byKey[r.Key()]; ok {
			r = w
			seen[r.Key()] = true
		}
		out = append(out, r)
	}
	for _, w := range written {
		if !seen[w.Key()] {
			out = append(out, w)
		}
	}
	return out
}
