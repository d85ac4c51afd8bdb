package credit

import (
	"time"

	"github.com/sautiplus/backoffice/core"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// Activities
const (
	ActivityPurchase   = "purchase"
	ActivityAdminAward = "admin_award"
	ActivitySpend      = "spend"
	ActivityReward     = "reward"
	ActivityRefund     = "refund"
	ActivityReversal   = "reversal"
)

var AllActivities = []string{
	ActivityPurchase, ActivityAdminAward, ActivitySpend, ActivityReward, ActivityRefund, ActivityReversal,
}

// RawActivities may be recorded through Credit & Debit.
var RawActivities = []string{ActivityPurchase, ActivitySpend, ActivityRefund}

func IsRawActivity(activity string) bool {
	for _, a := range RawActivities {
		if a == activity {
			return true
		}
	}
	return false
}

func (d Direction) Opposite() Direction {
	if d == DirectionCredit {
		return DirectionDebit
	}
	return DirectionCredit
}

// Wallet holds the credits balance of a platform user.
type Wallet struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Direction      Direction `json:"direction"`
	Amount         int64     `json:"amount"`
	BalanceAfter   int64     `json:"balance_after"`
	Activity       string    `json:"activity"`
	Reference      string    `json:"reference"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Description    string    `json:"description"`
	CreatedBy      string    `json:"created_by,omitempty"` // staff ID
	ReversalOf     string    `json:"reversal_of,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Signed returns the amount with the sign of its direction.
func (t Transaction) Signed() int64 {
	if t.Direction == DirectionDebit {
		return -t.Amount
	}
	return t.Amount
}

// ActivityRule configures the credits given for a reward activity (eg. daily_login).
type ActivityRule struct {
	Code        string    `json:"code" validate:"required,min=2,max=64,alphanum_"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount" validate:"gt=0"`
	DailyCap    int       `json:"daily_cap" validate:"gte=0"` // 0: unlimited
	IsActive    bool      `json:"is_active"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Entry describes a ledger mutation.
type Entry struct {
	UserID         string `json:"user_id" validate:"required"`
	Amount         int64  `json:"amount" validate:"gt=0"`
	Activity       string `json:"activity" validate:"required,oneof=purchase admin_award spend reward refund reversal"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=128"`
	Description    string `json:"description"`
	CreatedBy      string `json:"-"`
}

func (e *Entry) clean() {
	e.UserID = core.CleanString(e.UserID)
	e.Activity = core.CleanString(e.Activity, true /* lower */)
	e.Reference = core.CleanString(e.Reference)
	e.IdempotencyKey = core.CleanString(e.IdempotencyKey)
	e.Description = core.CleanString(e.Description)
}

// matches reports whether txn was recorded from the same request as e.
func (e Entry) matches(dir Direction, txn Transaction) bool {
	return txn.UserID == e.UserID &&
		txn.Direction == dir &&
		txn.Amount == e.Amount &&
		txn.Activity == e.Activity &&
		txn.Reference == e.Reference
}

type HistoryFilter struct {
	UserID    string    `query:"user_id"`
	Direction Direction `query:"direction"`
	Activity  string    `query:"activity"`
	From      time.Time `query:"-"`
	To        time.Time `query:"-"` // exclusive
}

func (hf *HistoryFilter) Clean() {
	hf.UserID = core.CleanString(hf.UserID)
	hf.Activity = core.CleanString(hf.Activity, true /* lower */)
	if hf.Direction != DirectionCredit && hf.Direction != DirectionDebit {
		hf.Direction = ""
	}
}

// Reconciliation compares a wallet balance with its ledger.
type Reconciliation struct {
	UserID        string `json:"user_id"`
	WalletBalance int64  `json:"wallet_balance"`
	Credits       int64  `json:"credits"`
	Debits        int64  `json:"debits"`
	LedgerBalance int64  `json:"ledger_balance"`
	Consistent    bool   `json:"consistent"`
}
