package sqlite

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
)

func TestListSettlements_CorruptHoursAreReported(t *testing.T) {
	ctx := context.Background()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// GIVEN: A settlement whose remaining hours were overwritten with garbage
	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "r1", UserID: "u1", Month: generic.NewYearMonth(2024, 1), RemainingHours: decimal.NewFromInt(8)},
	}))
	_, err = store.db.ExecContext(ctx, `UPDATE settlement_records SET remaining_hours = 'eight' WHERE id = 'r1'`)
	require.NoError(t, err)

	// WHEN: Settlements are listed
	_, err = store.ListSettlements(ctx)

	// THEN: The bad column is named instead of reading as zero
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remaining_hours")
	assert.Contains(t, err.Error(), "r1")
}

func TestListWarningRules_CorruptThresholdIsReported(t *testing.T) {
	ctx := context.Background()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveWarningRule(ctx, leave.WarningRule{ID: "w", Name: "Sick", TargetType: "SICK", Threshold: decimal.NewFromInt(3)}))
	_, err = store.db.ExecContext(ctx, `UPDATE warning_rules SET threshold = '' WHERE id = 'w'`)
	require.NoError(t, err)

	_, err = store.ListWarningRules(ctx)
	assert.ErrorContains(t, err, "threshold")
}
