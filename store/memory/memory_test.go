package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/overtime"
	"github.com/warp/leave-engine/store/memory"
)

func jan() generic.YearMonth {
	ym, _ := generic.ParseYearMonth("2024-01")
	return ym
}

func TestUpsertSettlements_KeepsIDPerKey(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "first", UserID: "u1", Month: jan(), ActualHours: decimal.NewFromInt(4)},
	}))
	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "second", UserID: "u1", Month: jan(), ActualHours: decimal.NewFromInt(6)},
	}))

	records, err := store.ListSettlements(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, generic.RecordID("first"), records[0].ID)
	assert.True(t, records[0].ActualHours.Equal(decimal.NewFromInt(6)))
}

func TestSaveUser_KeepsOvertimeSnapshot(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "A"}))
	require.NoError(t, store.UpsertSettlements(ctx, []overtime.Record{
		{ID: "r", UserID: "u1", Month: jan(), RemainingHours: decimal.NewFromInt(12)},
	}))
	records, err := store.ListSettlements(ctx)
	require.NoError(t, err)
	require.NoError(t, store.ApplyOvertimeSnapshots(ctx, overtime.ComputeSnapshots(records, []generic.UserID{"u1"})))

	// WHEN: The profile is saved with a stale overtime figure
	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "A", Quota: leave.Quota{Overtime: decimal.NewFromInt(99)}}))

	// THEN: The snapshot is kept
	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Quota.Overtime.Equal(decimal.NewFromFloat(1.5)))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "A"}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx overtime.Store) error {
		require.NoError(t, tx.CreateRequest(ctx, leave.Request{ID: "r1", UserID: "u1"}))
		require.NoError(t, tx.UpsertSettlements(ctx, []overtime.Record{{ID: "x", UserID: "u1", Month: jan()}}))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	requests, _ := store.ListRequests(ctx)
	assert.Empty(t, requests)
	records, _ := store.ListSettlements(ctx)
	assert.Empty(t, records)
}

func TestGroupForUser(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	_, err := store.GroupForUser(ctx, "ghost")
	assert.True(t, generic.IsNotFound(err))

	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "A"}))
	_, err = store.GroupForUser(ctx, "u1")
	assert.True(t, generic.IsNotFound(err))

	require.NoError(t, store.SaveWorkflowGroup(ctx, leave.WorkflowGroup{ID: "default", Name: "Default"}))
	g, err := store.GroupForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "default", g.ID)
}

func TestReset_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "A"}))
	require.NoError(t, store.SaveCategory(ctx, leave.CategoryDef{Code: "ANNUAL"}))

	require.NoError(t, store.Reset(ctx))

	users, _ := store.ListUsers(ctx)
	cats, _ := store.ListCategories(ctx)
	assert.Empty(t, users)
	assert.Empty(t, cats)
}

func TestObjects_PutNewAndRemove(t *testing.T) {
	ctx := context.Background()
	objects := memory.NewObjects("http://files.local/", "attachments")

	ref, err := objects.PutNew(ctx, "u1/a.pdf", leave.Upload{Body: strings.NewReader("pdf")})
	require.NoError(t, err)
	assert.Equal(t, "http://files.local/attachments/u1/a.pdf", ref)

	_, err = objects.PutNew(ctx, "u1/a.pdf", leave.Upload{Body: strings.NewReader("again")})
	assert.ErrorIs(t, err, leave.ErrAttachmentExists)

	assert.ErrorIs(t, objects.Remove(ctx, "http://elsewhere/x"), generic.ErrValidation)
	require.NoError(t, objects.Remove(ctx, ref))
	assert.True(t, generic.IsNotFound(objects.Remove(ctx, ref)))
	assert.Empty(t, objects.Names())
}
