/*
store.go - Transaction capability shared by every store

PURPOSE:
  Domain packages define their own persistence interfaces (leave.RequestStore,
  overtime.SettlementStore, ...). Some implementations can additionally run a
  group of writes atomically. This file defines that optional capability and a
  helper that uses it when present.

CAPABILITY DETECTION:
  Stores are passed around as their plain interface. Callers that need
  atomicity check for TxRunner at runtime rather than demanding it:

    err := generic.RunInTx(ctx, store, func(s overtime.Store) error {
        ...
    })

  If the store cannot do transactions, fn runs directly against it. Callers
  therefore compute everything they need before the first write, so a
  non-transactional store still never sees a half-computed batch.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: database/sql transaction
  - store/memory/memory.go: snapshot + rollback

SEE ALSO:
  - overtime/service.go: Settlement writes use RunInTx
*/
package generic

import "context"

// TxRunner is implemented by stores that can execute fn atomically.
// If fn returns an error the writes made through the passed store are
// rolled back.
type TxRunner[S any] interface {
	WithTx(ctx context.Context, fn func(S) error) error
}

// RunInTx runs fn inside a transaction when store supports one, otherwise
// directly against store.
func RunInTx[S any](ctx context.Context, store S, fn func(S) error) error {
	if tx, ok := any(store).(TxRunner[S]); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(store)
}
