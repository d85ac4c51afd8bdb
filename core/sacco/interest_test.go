package sacco_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sautiplus/backoffice/core/sacco"
)

func TestFlatInterest(t *testing.T) {
	tests := []struct {
		name      string
		principal int64
		rateBps   int64
		months    int
		want      int64
	}{
		{name: "one year at 12%", principal: 100_000, rateBps: 1200, months: 12, want: 12_000},
		{name: "six months at 12%", principal: 100_000, rateBps: 1200, months: 6, want: 6_000},
		{name: "half rounds up", principal: 1, rateBps: 5000, months: 12, want: 1},
		{name: "below half rounds down", principal: 1, rateBps: 4999, months: 12, want: 0},
		{name: "zero rate", principal: 50_000, rateBps: 0, months: 12, want: 0},
		{name: "no overflow", principal: 9_000_000_000_000, rateBps: 10_000, months: 120, want: 90_000_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sacco.FlatInterest(tt.principal, tt.rateBps, tt.months))
		})
	}
}

func sumSchedule(plan []sacco.Installment) (principal, interest int64) {
	for _, inst := range plan {
		principal += inst.Principal
		interest += inst.Interest
	}
	return principal, interest
}

func TestSchedule_Flat(t *testing.T) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	plan := sacco.Schedule(100_000, 1200, 12, sacco.MethodFlat, start)
	require.Len(t, plan, 12)

	assert.Equal(t, sacco.Installment{
		Number: 1, DueDate: start.AddDate(0, 1, 0), Principal: 8_333, Interest: 1_000, Total: 9_333, Balance: 91_667,
	}, plan[0])
	last := plan[11]
	assert.Equal(t, 12, last.Number)
	assert.Equal(t, int64(8_337), last.Principal, "last installment absorbs rounding")
	assert.Equal(t, int64(0), last.Balance)
	assert.True(t, last.DueDate.Equal(start.AddDate(0, 12, 0)))

	principal, interest := sumSchedule(plan)
	assert.Equal(t, int64(100_000), principal)
	assert.Equal(t, int64(12_000), interest)
	assert.Equal(t, interest, sacco.TotalInterest(100_000, 1200, 12, sacco.MethodFlat))
}

func TestSchedule_Reducing(t *testing.T) {
	plan := sacco.Schedule(120_000, 1800, 12, sacco.MethodReducing, time.Time{})
	require.Len(t, plan, 12)

	principal, interest := sumSchedule(plan)
	assert.Equal(t, int64(120_000), principal)
	assert.Equal(t, int64(12_020), interest)
	assert.Equal(t, sacco.Installment{Number: 1, DueDate: time.Time{}.AddDate(0, 1, 0), Principal: 9_202, Interest: 1_800, Total: 11_002, Balance: 110_798}, plan[0])
	assert.Equal(t, sacco.Installment{Number: 12, DueDate: time.Time{}.AddDate(0, 12, 0), Principal: 10_835, Interest: 163, Total: 10_998}, plan[11])
	assert.Equal(t, int64(1_800), plan[0].Interest, "1.5% of the full principal")
	for i := 1; i < len(plan); i++ {
		assert.LessOrEqual(t, plan[i].Interest, plan[i-1].Interest, "interest decreases with the balance")
	}
	assert.Equal(t, interest, sacco.TotalInterest(120_000, 1800, 12, sacco.MethodReducing))
	assert.Less(t, interest, sacco.FlatInterest(120_000, 1800, 12))

	zero := sacco.Schedule(120_000, 0, 12, sacco.MethodReducing, time.Time{})
	for _, inst := range zero {
		assert.Equal(t, int64(10_000), inst.Principal)
		assert.Zero(t, inst.Interest)
	}
}

func TestSchedule_ReducingRounding(t *testing.T) {
	plan := sacco.Schedule(1_000, 1200, 3, sacco.MethodReducing, time.Time{})
	want := []sacco.Installment{
		{Number: 1, Principal: 330, Interest: 10, Total: 340, Balance: 670},
		{Number: 2, Principal: 333, Interest: 7, Total: 340, Balance: 337},
		{Number: 3, Principal: 337, Interest: 3, Total: 340, Balance: 0},
	}
	for i := range want {
		want[i].DueDate = time.Time{}.AddDate(0, i+1, 0)
	}
	assert.Equal(t, want, plan)
}

func TestSchedule_Empty(t *testing.T) {
	assert.Nil(t, sacco.Schedule(0, 1200, 12, sacco.MethodFlat, time.Time{}))
	assert.Nil(t, sacco.Schedule(1000, 1200, 0, sacco.MethodReducing, time.Time{}))
}
