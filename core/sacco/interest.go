package sacco

import (
	"math/big"
	"time"
)

type InterestMethod string

const (
	MethodFlat     InterestMethod = "flat"
	MethodReducing InterestMethod = "reducing"
)

// rates are annual basis points, applied monthly: 12 months * 10000 bps
const monthlyRateDivisor = 12 * 10000

type Installment struct {
	Number    int       `json:"number"`
	DueDate   time.Time `json:"due_date"`
	Principal int64     `json:"principal"`
	Interest  int64     `json:"interest"`
	Total     int64     `json:"total"`
	Balance   int64     `json:"balance"` // principal left after this installment
}

// FlatInterest returns principal * rate * months / 12 / 10000, rounded half-up to the minor unit.
func FlatInterest(principal, rateBps int64, months int) int64 {
	num := new(big.Int).Mul(big.NewInt(principal), big.NewInt(rateBps))
	num.Mul(num, big.NewInt(int64(months)))
	return divRoundHalfUp(num, big.NewInt(monthlyRateDivisor))
}

// TotalInterest returns the interest charged over the whole term.
func TotalInterest(principal, rateBps int64, months int, method InterestMethod) int64 {
	if method == MethodFlat {
		return FlatInterest(principal, rateBps, months)
	}
	var total int64
	for _, inst := range Schedule(principal, rateBps, months, method, time.Time{}) {
		total += inst.Interest
	}
	return total
}

// Schedule returns the monthly installment plan of a loan starting at `start`.
// The last installment absorbs rounding so that the principals add up to `principal`.
func Schedule(principal, rateBps int64, months int, method InterestMethod, start time.Time) []Installment {
	if months <= 0 || principal <= 0 {
		return nil
	}
	if method == MethodFlat {
		return flatSchedule(principal, rateBps, months, start)
	}
	return reducingSchedule(principal, rateBps, months, start)
}

func flatSchedule(principal, rateBps int64, months int, start time.Time) []Installment {
	interest := FlatInterest(principal, rateBps, months)
	n := int64(months)
	perPrincipal, perInterest := principal/n, interest/n

	plan := make([]Installment, months)
	balance := principal
	for i := range plan {
		p, in := perPrincipal, perInterest
		if i == months-1 {
			p = balance
			in = interest - perInterest*(n-1)
		}
		balance -= p
		plan[i] = Installment{
			Number:    i + 1,
			DueDate:   start.AddDate(0, i+1, 0),
			Principal: p,
			Interest:  in,
			Total:     p + in,
			Balance:   balance,
		}
	}
	return plan
}

func reducingSchedule(principal, rateBps int64, months int, start time.Time) []Installment {
	plan := make([]Installment, months)
	payment := reducingPayment(principal, rateBps, months)
	balance := principal
	for i := range plan {
		interest := divRoundHalfUp(new(big.Int).Mul(big.NewInt(balance), big.NewInt(rateBps)), big.NewInt(monthlyRateDivisor))
		p := payment - interest
		if i == months-1 || p > balance {
			p = balance
		}
		if p < 0 {
			p = 0
		}
		balance -= p
		plan[i] = Installment{
			Number:    i + 1,
			DueDate:   start.AddDate(0, i+1, 0),
			Principal: p,
			Interest:  interest,
			Total:     p + interest,
			Balance:   balance,
		}
	}
	return plan
}

// reducingPayment returns the equal monthly installment P·r·(1+r)^n / ((1+r)^n - 1), rounded half-up.
func reducingPayment(principal, rateBps int64, months int) int64 {
	if rateBps == 0 {
		return divRoundHalfUp(big.NewInt(principal), big.NewInt(int64(months)))
	}
	one := big.NewRat(1, 1)
	r := big.NewRat(rateBps, monthlyRateDivisor)
	base := new(big.Rat).Add(one, r)
	growth := new(big.Rat).Set(one)
	for i := 0; i < months; i++ {
		growth.Mul(growth, base)
	}

	num := new(big.Rat).Mul(new(big.Rat).SetInt64(principal), r)
	num.Mul(num, growth)
	num.Quo(num, new(big.Rat).Sub(growth, one))
	return divRoundHalfUp(num.Num(), num.Denom())
}

func divRoundHalfUp(num, den *big.Int) int64 {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Lsh(r, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}
