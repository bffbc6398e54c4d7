package overtime

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is the overtime quota derived for one user from the ledger. It
// can only be built by ComputeSnapshots, so every value written to a user's
// quota has come from a settlement record.
type Snapshot struct {
	userID generic.UserID
	month  generic.YearMonth
	days   decimal.Decimal
}

func (s Snapshot) UserID() generic.UserID   { return s.userID }
func (s Snapshot) Month() generic.YearMonth { return s.month }
func (s Snapshot) Days() decimal.Decimal    { return s.days }

// SnapshotWriter persists snapshots to user quotas. It is the only path by
// which leave.Quota.Overtime changes.
type SnapshotWriter interface {
	ApplyOvertimeSnapshots(ctx context.Context, snapshots []Snapshot) error
}

var thousandths = int32(3)

// ComputeSnapshots derives a snapshot for each of users from their latest
// record (by year, then month). Users with no record get no snapshot and
// keep their stored value.
//
//	days = max(0, round(remaining / 8, 3))
func ComputeSnapshots(records []Record, users []generic.UserID) []Snapshot {
	latest := make(map[generic.UserID]Record)
	for _, r := range records {
		cur, ok := latest[r.UserID]
		if !ok || r.Month.After(cur.Month) {
			latest[r.UserID] = r
		}
	}
	var out []Snapshot
	for _, id := range users {
		r, ok := latest[id]
		if !ok {
			continue
		}
		days := r.RemainingHours.Div(generic.HoursPerDay).Round(thousandths)
		if days.IsNegative() {
			days = decimal.Zero
		}
		out = append(out, Snapshot{userID: id, month: r.Month, days: days})
	}
	return out
}

// =============================================================================
// SYNCHRONIZER
// =============================================================================

// SyncError reports that records were written but the quota snapshot was
// not. The ledger stays authoritative; a later resync repairs the snapshot.
type SyncError struct {
	Users []generic.UserID
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync overtime snapshot for %d users: %v", len(e.Users), e.Err)
}

func (e *SyncError) Unwrap() []error {
	return []error{generic.ErrCollaborator, e.Err}
}

type Synchronizer struct {
	writer SnapshotWriter
}

func NewSynchronizer(w SnapshotWriter) *Synchronizer {
	return &Synchronizer{writer: w}
}

// Sync derives snapshots for users from records and writes them in one call.
// It does not retry; a failure is returned as *SyncError.
func (s *Synchronizer) Sync(ctx context.Context, records []Record, users []generic.UserID) ([]Snapshot, error) {
	snaps := ComputeSnapshots(records, users)
	if len(snaps) == 0 {
		return nil, nil
	}
	if err := s.writer.ApplyOvertimeSnapshots(ctx, snaps); err != nil {
		return nil, &SyncError{Users: users, Err: err}
	}
	return snaps, nil
}

// userIDs lists the ids of users.
func userIDs(users []leave.User) []generic.UserID {
	ids := make([]generic.UserID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}
