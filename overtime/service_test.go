package overtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T, ids ...string) *memory.Memory {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	for _, u := range users(ids...) {
		require.NoError(t, store.SaveUser(ctx, u))
	}
	return store
}

func seedRequest(t *testing.T, store *memory.Memory, r leave.Request) {
	t.Helper()
	require.NoError(t, store.CreateRequest(context.Background(), r))
}

func overtimeDays(t *testing.T, store *memory.Memory, id string) decimal.Decimal {
	t.Helper()
	u, err := store.GetUser(context.Background(), generic.UserID(id))
	require.NoError(t, err)
	return u.Quota.Overtime
}

// =============================================================================
// SETTLEMENT AND SYNC
// =============================================================================

func TestService_SyncOnlyTouchedUsers(t *testing.T) {
	ctx := context.Background()

	// GIVEN: u1 carries 12h out of December, u4 carries 16h out of November
	store := newStore(t, "u1", "u2", "u3", "u4")
	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "dec-u1", UserID: "u1", Month: month("2023-12"), RemainingHours: dec("12")},
		{ID: "nov-u4", UserID: "u4", Month: month("2023-11"), RemainingHours: dec("16")},
	}))
	seedRequest(t, store, approved("ot1", "u1", leave.CategoryOvertime, wholeDays("2024-01-10", "2024-01-10")))
	seedRequest(t, store, approved("ot2", "u2", leave.CategoryOvertime, evening("2024-01-11", "18:00", "22:00")))
	seedRequest(t, store, approved("ot3", "u3", leave.CategoryOvertime, evening("2024-01-12", "18:00", "20:00")))

	svc := overtime.NewService(store, newLedger(), nil)
	_, err := svc.Resync(ctx)
	require.NoError(t, err)
	assert.True(t, overtimeDays(t, store, "u4").Equal(dec("2")))

	// WHEN: January is settled for u1, u2 and u3 in one batch
	res, err := svc.ApplySettlement(ctx, overtime.Action{
		Kind:   overtime.ActionBatch,
		Month:  month("2024-01"),
		Base:   map[generic.UserID]decimal.Decimal{"u1": dec("8"), "u2": dec("4"), "u3": dec("2")},
		Pay:    map[generic.UserID]decimal.Decimal{"u2": dec("0"), "u3": dec("1")},
		Signer: hrSigner,
	})

	// THEN: Each touched user gets their own balance, u4 is left alone
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
	assert.Len(t, res.Snapshots, 3)
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("2.5")))
	assert.True(t, overtimeDays(t, store, "u2").Equal(dec("0.5")))
	assert.True(t, overtimeDays(t, store, "u3").Equal(dec("0.125")))
	assert.True(t, overtimeDays(t, store, "u4").Equal(dec("2")))
}

func TestService_BackEditUpdatesLaterMonthsAndSnapshot(t *testing.T) {
	ctx := context.Background()

	// GIVEN: February settled at 16h and March at 8h
	store := newStore(t, "u1")
	seedRequest(t, store, approved("feb", "u1", leave.CategoryOvertime, wholeDays("2024-02-05", "2024-02-06")))
	seedRequest(t, store, approved("mar", "u1", leave.CategoryOvertime, wholeDays("2024-03-04", "2024-03-04")))
	svc := overtime.NewService(store, newLedger(), nil)
	settleBase := func(m string, hours string) overtime.Result {
		res, err := svc.ApplySettlement(ctx, overtime.Action{
			Kind: overtime.ActionSingleBase, Month: month(m), UserID: "u1",
			Base: map[generic.UserID]decimal.Decimal{"u1": dec(hours)}, Signer: hrSigner,
		})
		require.NoError(t, err)
		return res
	}
	settleBase("2024-02", "16")
	settleBase("2024-03", "8")
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("3")))

	// WHEN: February is revised down to 0
	res := settleBase("2024-02", "0")

	// THEN: March is rewritten in the same action and the snapshot follows it
	assert.Len(t, res.Records, 2)
	mar, err := svc.ListRecords(ctx, month("2024-03"))
	require.NoError(t, err)
	require.Len(t, mar, 1)
	assert.True(t, mar[0].RemainingHours.Equal(dec("8")))
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("1")))
}

func TestService_ResyncRepairsLateCompensatoryLeave(t *testing.T) {
	ctx := context.Background()

	// GIVEN: January settled at 8h
	store := newStore(t, "u1")
	seedRequest(t, store, approved("ot", "u1", leave.CategoryOvertime, wholeDays("2024-01-10", "2024-01-10")))
	svc := overtime.NewService(store, newLedger(), nil)
	_, err := svc.ApplySettlement(ctx, overtime.Action{
		Kind: overtime.ActionSingleBase, Month: month("2024-01"), UserID: "u1",
		Base: map[generic.UserID]decimal.Decimal{"u1": dec("8")}, Signer: hrSigner,
	})
	require.NoError(t, err)
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("1")))

	// WHEN: Half a day of compensatory leave in January is approved afterwards
	//        and the scheduler runs
	seedRequest(t, store, approved("comp", "u1", leave.CategoryCompensatory, evening("2024-01-22", "09:00", "13:00")))
	n := overtime.NewResyncScheduler(svc, nil).RunNow(ctx)

	// THEN: The record and the snapshot reflect the leave taken
	assert.Equal(t, 1, n)
	records, err := svc.ListRecords(ctx, month("2024-01"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].RemainingHours.Equal(dec("4")))
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("0.5")))
}

func TestService_SyncFailureKeepsRecords(t *testing.T) {
	ctx := context.Background()

	// GIVEN: A store whose snapshot write fails
	store := newStore(t, "u1")
	seedRequest(t, store, approved("ot", "u1", leave.CategoryOvertime, wholeDays("2024-01-10", "2024-01-10")))
	store.SnapshotErr = errors.New("quota table locked")
	svc := overtime.NewService(store, newLedger(), nil)

	// WHEN: A settlement is applied
	res, err := svc.ApplySettlement(ctx, overtime.Action{
		Kind: overtime.ActionSingleBase, Month: month("2024-01"), UserID: "u1",
		Base: map[generic.UserID]decimal.Decimal{"u1": dec("8")}, Signer: hrSigner,
	})

	// THEN: The record is written and the error says only the sync failed
	require.Error(t, err)
	assert.True(t, overtime.IsSyncError(err))
	assert.ErrorIs(t, err, generic.ErrCollaborator)
	assert.Len(t, res.Records, 1)

	records, err := svc.ListRecords(ctx, month("2024-01"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].RemainingHours.Equal(dec("8")))
	assert.True(t, overtimeDays(t, store, "u1").IsZero())

	// WHEN: The store recovers and the scheduler runs
	store.SnapshotErr = nil
	scheduler := overtime.NewResyncScheduler(svc, nil)
	n := scheduler.RunNow(ctx)

	// THEN: The snapshot converges
	assert.Equal(t, 1, n)
	assert.False(t, scheduler.LastRun().IsZero())
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("1")))
}

func TestScheduler_FailedRunLeavesLastRun(t *testing.T) {
	store := newStore(t, "u1")
	require.NoError(t, store.UpsertSettlements(context.Background(), []overtime.Record{
		{ID: "r", UserID: "u1", Month: month("2024-01"), RemainingHours: dec("4")},
	}))
	store.SnapshotErr = errors.New("down")

	scheduler := overtime.NewResyncScheduler(overtime.NewService(store, nil, nil), nil)

	assert.Equal(t, 0, scheduler.RunNow(context.Background()))
	assert.True(t, scheduler.LastRun().IsZero())
}

func TestScheduler_ConcurrentRunsAreSerialized(t *testing.T) {
	store := newStore(t, "u1", "u2")
	require.NoError(t, store.UpsertSettlements(context.Background(), []overtime.Record{
		{ID: "r", UserID: "u1", Month: month("2024-01"), RemainingHours: dec("4")},
	}))
	scheduler := overtime.NewResyncScheduler(overtime.NewService(store, nil, nil), nil)

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts[i] = scheduler.RunNow(context.Background())
		}()
	}
	wg.Wait()

	// u2 has no record, so each run writes one snapshot.
	for _, n := range counts {
		assert.Equal(t, 1, n)
	}
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("0.5")))
}

func TestScheduler_DisabledStartIsNoop(t *testing.T) {
	scheduler := overtime.NewResyncScheduler(overtime.NewService(newStore(t), nil, nil), nil)
	scheduler.Enabled = false

	scheduler.Start()
	scheduler.Stop()

	assert.True(t, scheduler.LastRun().IsZero())
}

func TestService_EnforcedBaseWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "u1")
	seedRequest(t, store, approved("ot", "u1", leave.CategoryOvertime, evening("2024-01-10", "18:00", "20:00")))
	svc := overtime.NewService(store, newLedger(overtime.WithBasePolicy(overtime.BaseEnforced)), nil)

	_, err := svc.ApplySettlement(ctx, overtime.Action{
		Kind: overtime.ActionSingleBase, Month: month("2024-01"), UserID: "u1",
		Base: map[generic.UserID]decimal.Decimal{"u1": dec("3")}, Signer: hrSigner,
	})

	assert.ErrorIs(t, err, generic.ErrBaseOutOfRange)
	assert.False(t, overtime.IsSyncError(err))
	records, err := svc.ListRecords(ctx, generic.YearMonth{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

// =============================================================================
// DETAIL REVIEW
// =============================================================================

func TestService_DetailReviewCorrectsRequests(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "u1")
	seedRequest(t, store, approved("ot", "u1", leave.CategoryOvertime, evening("2024-03-05", "18:00", "21:00")))
	svc := overtime.NewService(store, newLedger(), nil)

	rows, err := svc.ReviewRows(ctx, month("2024-03"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Verified)

	// WHEN: The month is reviewed with auto-calculated hours and verified
	res, err := svc.ApplyDetailReview(ctx, overtime.Review{
		Month:         month("2024-03"),
		AutoCalculate: true,
		Verified:      []generic.RequestID{"ot"},
		Signer:        hrSigner,
	})

	// THEN: The request carries the correction and the base follows it
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].ActualHours.Equal(dec("3")))

	stored, err := store.GetRequest(ctx, "ot")
	require.NoError(t, err)
	require.NotNil(t, stored.Correction)
	assert.True(t, stored.Correction.Verified)
	assert.True(t, stored.Correction.Hours.Equal(dec("3")))
	require.Len(t, stored.Logs, 1)
	assert.Equal(t, leave.LogUpdate, stored.Logs[0].Action)
	assert.True(t, overtimeDays(t, store, "u1").Equal(dec("0.375")))

	rows, err = svc.ReviewRows(ctx, month("2024-03"))
	require.NoError(t, err)
	assert.True(t, rows[0].Verified)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestService_PreviewAndLiveBalance(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, "u1", "u2")
	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "dec", UserID: "u1", Month: month("2023-12"), RemainingHours: dec("6")},
		{ID: "jan", UserID: "u1", Month: month("2024-01"), ActualHours: dec("8"), PaidHours: dec("2"), AppliedHours: dec("8"), RemainingHours: dec("12")},
	}))
	seedRequest(t, store, approved("ot", "u1", leave.CategoryOvertime, wholeDays("2024-01-10", "2024-01-10")))
	svc := overtime.NewService(store, newLedger(), nil)

	live, err := svc.LiveBalance(ctx, "u1", month("2024-01"))
	require.NoError(t, err)
	assert.True(t, live.Equal(dec("6")))

	_, err = svc.LiveBalance(ctx, "u1", generic.YearMonth{Year: 2024, Month: 0})
	assert.ErrorIs(t, err, generic.ErrValidation)

	rows, err := svc.Preview(ctx, month("2024-01"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	var u1, u2 overtime.PreviewRow
	for _, r := range rows {
		switch r.UserID {
		case "u1":
			u1 = r
		case "u2":
			u2 = r
		}
	}
	require.NotNil(t, u1.Record)
	assert.True(t, u1.Applied.Equal(dec("8")))
	assert.True(t, u1.Remaining.Equal(dec("12")))
	assert.True(t, u1.BaseValid)
	assert.Nil(t, u2.Record)
	assert.True(t, u2.Remaining.IsZero())

	// Preview writes nothing.
	records, err := svc.ListRecords(ctx, month("2024-01"))
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
