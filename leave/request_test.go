package leave_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	manager = leave.Actor{ID: "m1", Name: "Manager", Role: "manager"}
	hr      = leave.Actor{ID: "hr1", Name: "HR", Role: "hr"}
)

type fixture struct {
	svc     *leave.RequestService
	store   *memory.Memory
	objects *memory.Objects
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	require.NoError(t, store.SaveWorkflowGroup(ctx, leave.WorkflowGroup{
		ID:         "default",
		Name:       "Default",
		Steps:      []leave.WorkflowStep{{Level: 1, Name: "Manager"}, {Level: 2, Name: "HR"}},
		TitleRules: []leave.TitleRule{{JobTitle: "Director", MaxLevel: 0}},
	}))
	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "alice", EmployeeID: "E001", Name: "Alice", Gender: leave.GenderFemale,
		JobTitle: "Engineer", WorkflowGroupID: "default",
		Quota: leave.Quota{Annual: map[int]decimal.Decimal{2024: dec("5")}},
	}))
	require.NoError(t, store.SaveUser(ctx, leave.User{
		ID: "bob", EmployeeID: "E002", Name: "Bob", Gender: leave.GenderMale,
		JobTitle: "Director", WorkflowGroupID: "default",
	}))

	objects := memory.NewObjects("http://files.local", "attachments")
	seq := 0
	svc := leave.NewRequestService(store,
		leave.WithAttachments(leave.NewAttachments(objects)),
		leave.WithClock(func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) }),
		leave.WithIDGenerator(func() generic.RequestID {
			seq++
			return generic.RequestID(fmt.Sprintf("req-%d", seq))
		}),
	)
	return fixture{svc: svc, store: store, objects: objects}
}

func draft(user string, category leave.Category, span generic.Span) leave.Draft {
	return leave.Draft{UserID: generic.UserID(user), Category: category, Span: span, Reason: "test"}
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_CreatesInProcessRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-07")))
	require.NoError(t, err)

	assert.Equal(t, generic.RequestID("req-1"), req.ID)
	assert.Equal(t, leave.StatusInProcess, req.Status)
	assert.Equal(t, 1, req.CurrentStep)
	assert.Equal(t, 2, req.TotalSteps)
	require.Len(t, req.Logs, 1)
	assert.Equal(t, leave.LogSubmit, req.Logs[0].Action)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Span, stored.Span)
}

func TestSubmit_ZeroStepsApprovesImmediately(t *testing.T) {
	// GIVEN: Directors have a title rule capping approval at 0 levels
	f := newFixture(t)

	req, err := f.svc.Submit(context.Background(), draft("bob", leave.CategoryPersonal, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.Equal(t, 0, req.TotalSteps)
}

func TestSubmit_OverlapRejectedBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-08")))
	require.NoError(t, err)

	// WHEN: A sick morning on the last day of the annual leave
	_, err = f.svc.Submit(ctx, draft("alice", leave.CategorySick, partial("2024-05-08", "09:00", "12:00")))

	// THEN
	var oe *leave.OverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, generic.RequestID("req-1"), oe.Conflict.ID)
	assert.ErrorIs(t, err, generic.ErrOverlap)

	all, _ := f.store.ListRequests(ctx)
	assert.Len(t, all, 1)
}

func TestSubmit_QuotaExceeded(t *testing.T) {
	// GIVEN: Alice has 5 annual days in 2024 and 3 pending
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-08")))
	require.NoError(t, err)

	// WHEN: She asks for 3 more
	_, err = f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-06-03", "2024-06-05")))

	// THEN
	var qe *leave.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.True(t, qe.Remaining.Value.Equal(dec("2")))
	assert.True(t, qe.Requested.Value.Equal(dec("3")))

	// Two days still fit.
	_, err = f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-06-03", "2024-06-04")))
	assert.NoError(t, err)
}

func TestSubmit_GenderRestrictedCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, draft("bob", "MENSTRUAL", days("2024-05-06", "2024-05-06")))
	var ce *leave.CategoryError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, leave.ErrCategoryNotAllowed)
	assert.Equal(t, leave.GenderMale, ce.Gender)

	_, err = f.svc.Submit(ctx, draft("alice", "MENSTRUAL", days("2024-05-06", "2024-05-06")))
	assert.NoError(t, err)
}

func TestSubmit_UnknownCategoryAndUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, draft("alice", "SABBATICAL", days("2024-05-06", "2024-05-06")))
	assert.ErrorIs(t, err, leave.ErrCategoryNotAllowed)

	_, err = f.svc.Submit(ctx, draft("nobody", leave.CategoryAnnual, days("2024-05-06", "2024-05-06")))
	assert.True(t, generic.IsNotFound(err))
}

func TestSubmit_InvalidSpan(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-05")))
	assert.ErrorIs(t, err, generic.ErrInvalidSpan)
}

func TestSubmit_NoWorkflowConfigured(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveUser(ctx, leave.User{ID: "u1", Name: "U"}))
	svc := leave.NewRequestService(store)

	_, err := svc.Submit(ctx, draft("u1", leave.CategorySick, days("2024-05-06", "2024-05-06")))
	assert.ErrorIs(t, err, leave.ErrNoWorkflow)
}

// =============================================================================
// EDIT
// =============================================================================

func TestEdit_RejectedRequestRestartsWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-08")))
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, manager, "")
	require.NoError(t, err)
	_, err = f.svc.Reject(ctx, req.ID, hr, "too long")
	require.NoError(t, err)

	// WHEN: Resubmitted shorter, overlapping its own old span
	d := draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-07"))
	d.ID = req.ID
	edited, err := f.svc.Submit(ctx, d)

	// THEN: Back to step 1, history preserved
	require.NoError(t, err)
	assert.Equal(t, leave.StatusInProcess, edited.Status)
	assert.Equal(t, 1, edited.CurrentStep)
	assert.Empty(t, edited.ApprovedBy)
	require.Len(t, edited.Logs, 4)
	assert.Equal(t, leave.LogUpdate, edited.Logs[3].Action)
}

func TestEdit_ApprovedRequestCannotBeEdited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("bob", leave.CategoryPersonal, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)

	d := draft("bob", leave.CategoryPersonal, days("2024-05-07", "2024-05-07"))
	d.ID = req.ID
	_, err = f.svc.Submit(ctx, d)

	var te *leave.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, leave.StatusApproved, te.From)
	assert.True(t, generic.IsConflict(err))
}

// =============================================================================
// WORKFLOW
// =============================================================================

func TestApprove_AdvancesThenCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("alice", leave.CategorySick, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)

	req, err = f.svc.Approve(ctx, req.ID, manager, "ok")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusInProcess, req.Status)
	assert.Equal(t, 2, req.CurrentStep)

	req, err = f.svc.Approve(ctx, req.ID, hr, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.Equal(t, []string{"m1", "hr1"}, req.ApprovedBy)

	_, err = f.svc.Approve(ctx, req.ID, hr, "")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestCancel_ApprovedFreesQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-10")))
	require.NoError(t, err)
	q, err := f.svc.Quota(ctx, "alice", leave.CategoryAnnual, 2024, "")
	require.NoError(t, err)
	assert.True(t, q.Remaining().IsZero())

	req, err = f.svc.Cancel(ctx, req.ID, hr, "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, req.Status)

	q, err = f.svc.Quota(ctx, "alice", leave.CategoryAnnual, 2024, "")
	require.NoError(t, err)
	assert.True(t, q.Remaining().Value.Equal(dec("5")))

	_, err = f.svc.Cancel(ctx, req.ID, hr, "")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)
}

func TestReject_OnlyInProcess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Submit(ctx, draft("bob", leave.CategoryPersonal, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)

	_, err = f.svc.Reject(ctx, req.ID, hr, "")
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	_, err = f.svc.Reject(ctx, "missing", hr, "")
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// PREVIEW AND QUERIES
// =============================================================================

func TestPreview_DoesNotWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	check, err := f.svc.Preview(ctx, draft("alice", leave.CategoryAnnual, days("2024-05-06", "2024-05-12")))
	require.NoError(t, err)

	assert.False(t, check.OK())
	assert.True(t, check.Days.Value.Equal(dec("7")))
	require.NotNil(t, check.Quota)
	assert.True(t, check.Quota.Remaining().Value.Equal(dec("5")))

	all, _ := f.store.ListRequests(ctx)
	assert.Empty(t, all)
}

func TestListRequests_Filter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, draft("alice", leave.CategorySick, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, draft("bob", leave.CategoryPersonal, days("2024-05-06", "2024-05-06")))
	require.NoError(t, err)

	got, err := f.svc.ListRequests(ctx, leave.RequestFilter{Status: leave.StatusApproved})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, generic.UserID("bob"), got[0].UserID)

	got, err = f.svc.ListRequests(ctx, leave.RequestFilter{UserID: "alice", Category: leave.CategorySick})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestWarnings_FromStoredRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveWarningRule(ctx, leave.WarningRule{ID: "sick-2", TargetType: leave.CategorySick, Threshold: dec("2")}))

	_, err := f.svc.Submit(ctx, draft("bob", leave.CategorySick, days("2024-05-06", "2024-05-07")))
	require.NoError(t, err)

	warnings, err := f.svc.Warnings(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "sick-2", warnings[0].RuleID)

	warnings, err = f.svc.Warnings(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestLoadCategories_ReplacesAndRestoresDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveCategory(ctx, leave.CategoryDef{Code: "REMOTE", Name: "Remote", AllowedGender: leave.AllowAll}))
	require.NoError(t, f.svc.LoadCategories(ctx))
	_, ok := f.svc.Categories().Lookup("REMOTE")
	assert.True(t, ok)
	_, ok = f.svc.Categories().Lookup(leave.CategoryAnnual)
	assert.False(t, ok)

	require.NoError(t, f.store.Reset(ctx))
	require.NoError(t, f.svc.LoadCategories(ctx))
	_, ok = f.svc.Categories().Lookup(leave.CategoryAnnual)
	assert.True(t, ok)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestUploadAttachment_NameCollisionsGetSuffix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := leave.AttachmentInput{
		ApplyDate: generic.MustParseDate("2024-05-01"),
		Sequence:  1,
		FileName:  "note.pdf",
		Size:      3,
		Body:      strings.NewReader("pdf"),
	}

	ref1, err := f.svc.UploadAttachment(ctx, "alice", in)
	require.NoError(t, err)
	in.Body = strings.NewReader("pdf")
	ref2, err := f.svc.UploadAttachment(ctx, "alice", in)
	require.NoError(t, err)

	assert.Equal(t, "http://files.local/attachments/alice/2024-05-01-E001-1.pdf", ref1)
	assert.Equal(t, "http://files.local/attachments/alice/2024-05-01-E001-1(1).pdf", ref2)
	assert.Equal(t, []string{"alice/2024-05-01-E001-1(1).pdf", "alice/2024-05-01-E001-1.pdf"}, f.objects.Names())
}

func TestUploadAttachment_TooLarge(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UploadAttachment(context.Background(), "alice", leave.AttachmentInput{
		ApplyDate: generic.MustParseDate("2024-05-01"),
		FileName:  "scan.png",
		Size:      leave.MaxAttachmentSize + 1,
		Body:      strings.NewReader(""),
	})
	assert.ErrorIs(t, err, leave.ErrAttachmentTooLarge)
	assert.Empty(t, f.objects.Names())
}

func TestDelete_RemovesAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ref, err := f.svc.UploadAttachment(ctx, "alice", leave.AttachmentInput{
		ApplyDate: generic.MustParseDate("2024-05-01"),
		Sequence:  1,
		FileName:  "note.txt",
		Size:      2,
		Body:      strings.NewReader("hi"),
	})
	require.NoError(t, err)

	d := draft("alice", leave.CategorySick, days("2024-05-06", "2024-05-06"))
	d.Attachments = []string{ref}
	req, err := f.svc.Submit(ctx, d)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, req.ID))
	assert.Empty(t, f.objects.Names())
	_, err = f.store.GetRequest(ctx, req.ID)
	assert.True(t, generic.IsNotFound(err))
}

func TestAttachments_ExhaustedNames(t *testing.T) {
	objects := memory.NewObjects("http://files.local", "attachments")
	a := leave.NewAttachments(objects)
	ctx := context.Background()
	u := leave.Upload{UserID: "u1", EmployeeID: "E9", ApplyDate: generic.MustParseDate("2024-05-01"), Sequence: 1, FileName: "a.txt"}

	for i := 0; i < leave.MaxAttachmentAttempts; i++ {
		_, err := a.Upload(ctx, u)
		require.NoError(t, err)
	}
	_, err := a.Upload(ctx, u)
	assert.ErrorIs(t, err, leave.ErrAttachmentNameExhausted)
}

func TestUploadAttachment_NotConfigured(t *testing.T) {
	svc := leave.NewRequestService(memory.New())
	_, err := svc.UploadAttachment(context.Background(), "alice", leave.AttachmentInput{})
	assert.ErrorIs(t, err, generic.ErrValidation)
}
