package overtime

import (
	"context"

	"github.com/warp/leave-engine/leave"
)

// SettlementStore persists records. UpsertSettlements replaces any record
// with the same (UserID, Month) key.
type SettlementStore interface {
	ListSettlements(ctx context.Context) ([]Record, error)
	UpsertSettlements(ctx context.Context, records []Record) error
}

// Store is everything Service needs. Implementations that also satisfy
// generic.TxRunner[Store] get their writes grouped in one transaction.
type Store interface {
	leave.RequestStore
	leave.UserStore
	SettlementStore
	SnapshotWriter
}
