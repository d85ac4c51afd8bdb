package sacco

import (
	"math/big"
	"sort"
)

// Apportion splits `pool` between holdings pro rata to their shares.
// Each holding gets floor(pool * shares / total); the units left over go one each to the
// largest fractional remainders (ties: lowest member number first), so the payouts add up to pool.
// Holdings without shares are skipped. Payouts are ordered by member number.
func Apportion(pool int64, holdings []Holding) []Payout {
	eligible := make([]Holding, 0, len(holdings))
	total := new(big.Int)
	for _, h := range holdings {
		if h.Shares > 0 {
			eligible = append(eligible, h)
			total.Add(total, big.NewInt(h.Shares))
		}
	}
	if len(eligible) == 0 || pool <= 0 {
		return nil
	}
	sort.Slice(eligible, func(i, j int) bool { return lessMemberNo(eligible[i].MemberNo, eligible[j].MemberNo) })

	var (
		payouts    = make([]Payout, len(eligible))
		remainders = make([]*big.Int, len(eligible))
		bigPool    = big.NewInt(pool)
		allocated  int64
	)
	for i, h := range eligible {
		num := new(big.Int).Mul(bigPool, big.NewInt(h.Shares))
		q, r := new(big.Int).QuoRem(num, total, new(big.Int))
		payouts[i] = Payout{MemberID: h.MemberID, MemberNo: h.MemberNo, Shares: h.Shares, Amount: q.Int64()}
		remainders[i] = r
		allocated += q.Int64()
	}

	order := make([]int, len(eligible))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		// eligible is sorted by member number; stability keeps that order on ties
		return remainders[order[a]].Cmp(remainders[order[b]]) > 0
	})
	for k := int64(0); k < pool-allocated; k++ {
		payouts[order[k]].Amount++
	}
	return payouts
}

// ratePerShare is informative only; payouts are computed with Apportion.
func ratePerShare(pool, totalShares int64) float64 {
	if totalShares == 0 {
		return 0
	}
	return float64(pool) / float64(totalShares)
}

// lessMemberNo compares zero padded member numbers, which grow past 6 digits.
func lessMemberNo(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
