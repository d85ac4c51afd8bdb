package sacco_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sautiplus/backoffice/core/sacco"
)

func holding(no string, shares int64) sacco.Holding {
	return sacco.Holding{MemberID: "m-" + no, MemberNo: no, Shares: shares}
}

func amounts(payouts []sacco.Payout) map[string]int64 {
	res := make(map[string]int64, len(payouts))
	for _, p := range payouts {
		res[p.MemberNo] = p.Amount
	}
	return res
}

func TestApportion(t *testing.T) {
	tests := []struct {
		name     string
		pool     int64
		holdings []sacco.Holding
		want     map[string]int64
	}{
		{
			name:     "exact split",
			pool:     800,
			holdings: []sacco.Holding{holding("SACCO-000001", 5), holding("SACCO-000002", 3)},
			want:     map[string]int64{"SACCO-000001": 500, "SACCO-000002": 300},
		},
		{
			name:     "tie goes to the lowest member number",
			pool:     1001,
			holdings: []sacco.Holding{holding("SACCO-000002", 4), holding("SACCO-000001", 4)},
			want:     map[string]int64{"SACCO-000001": 501, "SACCO-000002": 500},
		},
		{
			name:     "largest remainder first",
			pool:     10,
			holdings: []sacco.Holding{holding("SACCO-000001", 1), holding("SACCO-000002", 2), holding("SACCO-000003", 3)},
			want:     map[string]int64{"SACCO-000001": 2, "SACCO-000002": 3, "SACCO-000003": 5},
		},
		{
			name:     "members without shares are skipped",
			pool:     100,
			holdings: []sacco.Holding{holding("SACCO-000001", 1), holding("SACCO-000002", 0)},
			want:     map[string]int64{"SACCO-000001": 100},
		},
		{
			name:     "member numbers past six digits sort last",
			pool:     2,
			holdings: []sacco.Holding{holding("SACCO-1000000", 1), holding("SACCO-999999", 1), holding("SACCO-000001", 1)},
			want:     map[string]int64{"SACCO-000001": 1, "SACCO-999999": 1, "SACCO-1000000": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payouts := sacco.Apportion(tt.pool, tt.holdings)
			assert.Equal(t, tt.want, amounts(payouts))

			var total int64
			for _, p := range payouts {
				total += p.Amount
			}
			assert.Equal(t, tt.pool, total, "payouts add up to the pool")
		})
	}

	payouts := sacco.Apportion(10, []sacco.Holding{holding("SACCO-000003", 1), holding("SACCO-000001", 1)})
	if assert.Len(t, payouts, 2) {
		assert.Equal(t, "SACCO-000001", payouts[0].MemberNo, "ordered by member number")
	}

	assert.Nil(t, sacco.Apportion(0, []sacco.Holding{holding("SACCO-000001", 1)}))
	assert.Nil(t, sacco.Apportion(100, nil))
}
