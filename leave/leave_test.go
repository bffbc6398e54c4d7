package leave_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func days(start, end string) generic.Span {
	return generic.NewDaySpan(generic.MustParseDate(start), generic.MustParseDate(end))
}

func partial(day, from, to string) generic.Span {
	return generic.NewPartialSpan(generic.MustParseDate(day), generic.MustParseClock(from), generic.MustParseClock(to))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func request(id, user string, category leave.Category, status leave.Status, span generic.Span) leave.Request {
	return leave.Request{
		ID:       generic.RequestID(id),
		UserID:   generic.UserID(user),
		Category: category,
		Status:   status,
		Span:     span,
	}
}

// =============================================================================
// DURATION
// =============================================================================

func TestDuration_WholeDays(t *testing.T) {
	// GIVEN: A three-day span
	// THEN: It counts 3 days and 24 hours
	span := days("2024-05-01", "2024-05-03")

	assert.True(t, leave.DurationDays(span).Equal(dec("3")))
	assert.True(t, leave.DurationHours(span).Equal(dec("24")))
	assert.Equal(t, "3d", leave.FormatDays(leave.DurationDays(span)))
}

func TestDuration_PartialDayWithTimes(t *testing.T) {
	// GIVEN: 09:00 to 13:00 on one day
	// THEN: It counts 4 hours, half a day
	span := partial("2024-05-01", "09:00", "13:00")

	assert.True(t, leave.DurationHours(span).Equal(dec("4")))
	assert.True(t, leave.DurationDays(span).Equal(dec("0.5")))
	assert.Equal(t, "0d 4h", leave.FormatDays(leave.DurationDays(span)))
}

func TestDuration_PartialDayWithoutTimesIsHalfDay(t *testing.T) {
	span := generic.Span{
		StartDate:  generic.MustParseDate("2024-05-01"),
		EndDate:    generic.MustParseDate("2024-05-01"),
		PartialDay: true,
	}
	assert.True(t, leave.DurationDays(span).Equal(dec("0.5")))
	assert.True(t, leave.DurationHours(span).Equal(dec("4")))
}

func TestDuration_ThreeDecimalDays(t *testing.T) {
	// 100 minutes / 480 = 0.2083... -> 0.208
	span := partial("2024-05-01", "09:00", "10:40")
	assert.True(t, leave.DurationDays(span).Equal(dec("0.208")))
	assert.True(t, leave.DurationHours(span).Equal(dec("1.67")))
}

func TestAutoHours(t *testing.T) {
	assert.True(t, leave.AutoHours(days("2024-05-01", "2024-05-02")).Equal(dec("16")))
	assert.True(t, leave.AutoHours(partial("2024-05-01", "18:00", "21:30")).Equal(dec("3.5")))

	// Midnight-to-midnight counts as whole days.
	midnight := partial("2024-05-01", "00:00", "00:00")
	assert.True(t, leave.AutoHours(midnight).Equal(dec("8")))

	// Across midnight: 22:00 on the 1st to 02:00 on the 2nd.
	overnight := generic.Span{
		StartDate:  generic.MustParseDate("2024-05-01"),
		EndDate:    generic.MustParseDate("2024-05-02"),
		PartialDay: true,
		StartTime:  generic.ClockPtr(generic.MustParseClock("22:00")),
		EndTime:    generic.ClockPtr(generic.MustParseClock("02:00")),
	}
	assert.True(t, leave.AutoHours(overnight).Equal(dec("4")))
}

func TestDuration_ReversedTimesClampToZero(t *testing.T) {
	// GIVEN: An unvalidated partial day whose end is before its start
	span := partial("2024-05-01", "13:00", "09:00")

	// THEN: Nothing is counted
	assert.True(t, leave.DurationHours(span).IsZero())
	assert.True(t, leave.DurationDays(span).IsZero())
	assert.True(t, leave.Duration(span, generic.UnitHours).IsZero())
	assert.True(t, leave.AutoHours(span).IsZero())

	// AND: A reversed span across two days still nets out positive
	overnight := generic.Span{
		StartDate:  generic.MustParseDate("2024-05-01"),
		EndDate:    generic.MustParseDate("2024-05-02"),
		PartialDay: true,
		StartTime:  generic.ClockPtr(generic.MustParseClock("13:00")),
		EndTime:    generic.ClockPtr(generic.MustParseClock("09:00")),
	}
	assert.True(t, leave.AutoHours(overnight).Equal(dec("20")))
}

func TestFormatDays(t *testing.T) {
	assert.Equal(t, "2d 4h", leave.FormatDays(dec("2.5")))
	assert.Equal(t, "0d", leave.FormatDays(decimal.Zero))
	assert.Equal(t, "1d 1h", leave.FormatDays(dec("1.125")))
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestDetectOverlap_SharedBoundaryDayConflicts(t *testing.T) {
	// GIVEN: An in-process request May 1-3
	// WHEN: Checking May 3-5
	// THEN: The shared day conflicts
	existing := []leave.Request{request("r1", "u1", leave.CategoryAnnual, leave.StatusInProcess, days("2024-05-01", "2024-05-03"))}

	conflict, ok := leave.DetectOverlap(existing, "u1", days("2024-05-03", "2024-05-05"), "")
	assert.True(t, ok)
	assert.Equal(t, generic.RequestID("r1"), conflict.ID)

	_, ok = leave.DetectOverlap(existing, "u1", days("2024-05-04", "2024-05-05"), "")
	assert.False(t, ok)
}

func TestDetectOverlap_IgnoresTimeOfDay(t *testing.T) {
	// GIVEN: A morning partial-day request
	// WHEN: Checking an afternoon slot on the same date
	// THEN: It still conflicts
	existing := []leave.Request{request("r1", "u1", leave.CategorySick, leave.StatusApproved, partial("2024-05-01", "09:00", "12:00"))}

	_, ok := leave.DetectOverlap(existing, "u1", partial("2024-05-01", "14:00", "18:00"), "")
	assert.True(t, ok)
}

func TestDetectOverlap_SkipsTerminalOtherUsersAndExcluded(t *testing.T) {
	span := days("2024-05-01", "2024-05-01")
	existing := []leave.Request{
		request("rejected", "u1", leave.CategoryAnnual, leave.StatusRejected, span),
		request("cancelled", "u1", leave.CategoryAnnual, leave.StatusCancelled, span),
		request("other", "u2", leave.CategoryAnnual, leave.StatusApproved, span),
		request("self", "u1", leave.CategoryAnnual, leave.StatusInProcess, span),
	}

	_, ok := leave.DetectOverlap(existing, "u1", span, "self")
	assert.False(t, ok)

	conflict, ok := leave.DetectOverlap(existing, "u1", span, "")
	assert.True(t, ok)
	assert.Equal(t, generic.RequestID("self"), conflict.ID)
}

// =============================================================================
// QUOTA
// =============================================================================

func TestComputeQuota_AnnualCountsUsedAndPendingInYear(t *testing.T) {
	// GIVEN: 14 annual days in 2024, 3 approved, 2 pending, 5 approved in 2023
	user := leave.User{ID: "u1", Quota: leave.Quota{Annual: map[int]decimal.Decimal{2024: dec("14")}}}
	def, _ := leave.DefaultCategories().Lookup(leave.CategoryAnnual)
	requests := []leave.Request{
		request("a", "u1", leave.CategoryAnnual, leave.StatusApproved, days("2024-03-04", "2024-03-06")),
		request("b", "u1", leave.CategoryAnnual, leave.StatusInProcess, days("2024-04-01", "2024-04-02")),
		request("c", "u1", leave.CategoryAnnual, leave.StatusApproved, days("2023-12-01", "2023-12-05")),
		request("d", "u1", leave.CategoryAnnual, leave.StatusRejected, days("2024-06-01", "2024-06-10")),
		request("e", "u2", leave.CategoryAnnual, leave.StatusApproved, days("2024-06-01", "2024-06-10")),
	}

	// WHEN
	q := leave.ComputeQuota(user, def, 2024, requests, "")

	// THEN: remaining = 14 - (3 + 2)
	assert.True(t, q.Balance.Used.Value.Equal(dec("3")))
	assert.True(t, q.Balance.Pending.Value.Equal(dec("2")))
	assert.True(t, q.Remaining().Value.Equal(dec("9")))

	// Excluding the pending request frees its days.
	q = leave.ComputeQuota(user, def, 2024, requests, "b")
	assert.True(t, q.Remaining().Value.Equal(dec("11")))
}

func TestComputeQuota_OvertimeBalanceIgnoresYear(t *testing.T) {
	user := leave.User{ID: "u1", Quota: leave.Quota{Overtime: dec("2")}}
	def, _ := leave.DefaultCategories().Lookup(leave.CategoryCompensatory)
	requests := []leave.Request{
		request("a", "u1", leave.CategoryCompensatory, leave.StatusApproved, partial("2023-12-20", "09:00", "13:00")),
	}

	q := leave.ComputeQuota(user, def, 2024, requests, "")
	assert.True(t, q.Remaining().Value.Equal(dec("1.5")))
}

func TestComputeQuota_NeverNegative(t *testing.T) {
	user := leave.User{ID: "u1"}
	def, _ := leave.DefaultCategories().Lookup(leave.CategoryAnnual)
	requests := []leave.Request{request("a", "u1", leave.CategoryAnnual, leave.StatusApproved, days("2024-01-01", "2024-01-05"))}

	q := leave.ComputeQuota(user, def, 2024, requests, "")
	assert.True(t, q.Remaining().IsZero())
}

// =============================================================================
// WARNINGS
// =============================================================================

func TestEvaluateWarnings_SickThreshold(t *testing.T) {
	rules := []leave.WarningRule{{ID: "sick-3", Name: "Frequent sick", TargetType: leave.CategorySick, Threshold: dec("3")}}

	// GIVEN: 2 approved sick days
	// THEN: The rule does not fire
	requests := []leave.Request{request("a", "u1", leave.CategorySick, leave.StatusApproved, days("2024-02-01", "2024-02-02"))}
	assert.Empty(t, leave.EvaluateWarnings("u1", rules, requests))

	// GIVEN: A third day, and an in-process one that must not count
	requests = append(requests,
		request("b", "u1", leave.CategorySick, leave.StatusApproved, days("2024-03-01", "2024-03-01")),
		request("c", "u1", leave.CategorySick, leave.StatusInProcess, days("2024-04-01", "2024-04-05")),
	)
	warnings := leave.EvaluateWarnings("u1", rules, requests)
	if assert.Len(t, warnings, 1) {
		assert.Equal(t, "sick-3", warnings[0].RuleID)
		assert.True(t, warnings[0].CurrentValue.Equal(dec("3")))
	}
}

func TestEvaluateWarnings_PartialDaysCountHalf(t *testing.T) {
	// Partial-day requests add 0.5 regardless of their hours.
	rules := []leave.WarningRule{{ID: "r", TargetType: leave.CategorySick, Threshold: dec("1")}}
	requests := []leave.Request{
		request("a", "u1", leave.CategorySick, leave.StatusApproved, partial("2024-02-01", "09:00", "10:00")),
		request("b", "u1", leave.CategorySick, leave.StatusApproved, partial("2024-02-05", "09:00", "18:00")),
	}
	warnings := leave.EvaluateWarnings("u1", rules, requests)
	if assert.Len(t, warnings, 1) {
		assert.True(t, warnings[0].CurrentValue.Equal(dec("1")))
	}
}

// =============================================================================
// CATEGORIES AND WORKFLOW
// =============================================================================

func TestCategorySet_GenderRestriction(t *testing.T) {
	set := leave.DefaultCategories()

	female := leave.User{Gender: leave.GenderFemale}
	male := leave.User{Gender: leave.GenderMale}

	codes := func(defs []leave.CategoryDef) []leave.Category {
		var out []leave.Category
		for _, d := range defs {
			out = append(out, d.Code)
		}
		return out
	}
	assert.Contains(t, codes(set.AvailableFor(female)), leave.Category("MENSTRUAL"))
	assert.NotContains(t, codes(set.AvailableFor(female)), leave.Category("PATERNITY"))
	assert.Contains(t, codes(set.AvailableFor(male)), leave.Category("PATERNITY"))
	assert.NotContains(t, codes(set.AvailableFor(male)), leave.Category("MENSTRUAL"))
}

func TestCategorySet_ResolveUnknown(t *testing.T) {
	def := leave.DefaultCategories().Resolve("LEGACY")
	assert.Equal(t, leave.Category("LEGACY"), def.Code)
	assert.Equal(t, leave.QuotaNone, def.Quota)
	assert.False(t, def.Enforced())
}

func TestWorkflowGroup_TitleRuleCapsSteps(t *testing.T) {
	g := leave.WorkflowGroup{
		ID:         "corp",
		Steps:      []leave.WorkflowStep{{Level: 1}, {Level: 2}, {Level: 3}},
		TitleRules: []leave.TitleRule{{JobTitle: "Director", MaxLevel: 1}, {JobTitle: "CEO", MaxLevel: 0}},
	}
	assert.Equal(t, 3, g.TotalStepsFor(leave.User{JobTitle: "Engineer"}))
	assert.Equal(t, 1, g.TotalStepsFor(leave.User{JobTitle: "Director"}))
	assert.Equal(t, 0, g.TotalStepsFor(leave.User{JobTitle: "CEO"}))
}

func TestSelectGroup_FallsBackToFirst(t *testing.T) {
	groups := []leave.WorkflowGroup{{ID: "a"}, {ID: "b"}}

	g, ok := leave.SelectGroup(groups, leave.User{WorkflowGroupID: "b"})
	assert.True(t, ok)
	assert.Equal(t, "b", g.ID)

	g, ok = leave.SelectGroup(groups, leave.User{WorkflowGroupID: "missing"})
	assert.True(t, ok)
	assert.Equal(t, "a", g.ID)

	_, ok = leave.SelectGroup(nil, leave.User{})
	assert.False(t, ok)
}

// =============================================================================
// EFFECTIVE SPAN
// =============================================================================

func TestRequest_EffectivePrefersCorrection(t *testing.T) {
	r := request("a", "u1", leave.CategoryOvertime, leave.StatusApproved, partial("2024-05-01", "18:00", "20:00"))
	_, submitted := r.Effective().(leave.Submitted)
	assert.True(t, submitted)

	r.Correction = &leave.Correction{Span: partial("2024-05-01", "18:00", "22:00"), Hours: dec("4")}
	eff, corrected := r.Effective().(leave.Corrected)
	assert.True(t, corrected)
	assert.True(t, eff.Hours.Equal(dec("4")))
	assert.Equal(t, "2024-05-01 18:00~22:00", eff.EffectiveSpan().String())
}
