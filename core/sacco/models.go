package sacco

import (
	"fmt"
	"time"

	"github.com/sautiplus/backoffice/core"
)

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
	MemberExited    MemberStatus = "exited"
)

type Member struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id,omitempty"` // platform user
	MemberNo string       `json:"member_no"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone"`
	Status   MemberStatus `json:"status"`
	JoinedAt time.Time    `json:"joined_at"`
	ExitedAt time.Time    `json:"exited_at"`
}

func (m Member) IsActive() bool { return m.Status == MemberActive }

func formatMemberNo(seq int64) string {
	return fmt.Sprintf("SACCO-%06d", seq)
}

type NewMember struct {
	UserID string `json:"user_id"`
	Name   string `json:"name" validate:"required,max=128"`
	Email  string `json:"email" validate:"omitempty,email"`
	Phone  string `json:"phone" validate:"omitempty,msisdn"`
}

func (nm *NewMember) clean() {
	nm.UserID = core.CleanString(nm.UserID)
	nm.Name = core.CleanString(nm.Name)
	nm.Email = core.CleanString(nm.Email, true /* lower */)
	nm.Phone = core.CleanString(nm.Phone)
}

type MemberFilter struct {
	Search string       `query:"search"` // name, member no, email or phone
	Status MemberStatus `query:"status"`
	UserID string       `query:"user_id"`
}

func (mf *MemberFilter) Clean() {
	mf.Search = core.CleanString(mf.Search)
	mf.UserID = core.CleanString(mf.UserID)
	switch mf.Status {
	case MemberActive, MemberSuspended, MemberExited:
	default:
		mf.Status = ""
	}
}

// Savings

type SavingsKind string

const (
	SavingsDeposit          SavingsKind = "deposit"
	SavingsWithdrawal       SavingsKind = "withdrawal"
	SavingsLoanDisbursement SavingsKind = "loan_disbursement"
	SavingsLoanRepayment    SavingsKind = "loan_repayment"
	SavingsDividend         SavingsKind = "dividend"
	SavingsSharePurchase    SavingsKind = "share_purchase"
)

// credits reports whether the kind adds to the savings balance.
func (k SavingsKind) credits() bool {
	switch k {
	case SavingsDeposit, SavingsLoanDisbursement, SavingsDividend:
		return true
	}
	return false
}

type SavingsAccount struct {
	MemberID  string    `json:"member_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SavingsTransaction struct {
	ID           string      `json:"id"`
	MemberID     string      `json:"member_id"`
	Kind         SavingsKind `json:"kind"`
	Amount       int64       `json:"amount"`
	BalanceAfter int64       `json:"balance_after"`
	Reference    string      `json:"reference"`
	CreatedBy    string      `json:"created_by,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Statement is a page of savings transactions, newest first.
type Statement struct {
	Member       Member               `json:"member"`
	Balance      int64                `json:"balance"`
	Transactions []SavingsTransaction `json:"transactions"`
}

// Shares

type ShareKind string

const (
	SharePurchase    ShareKind = "purchase"
	ShareTransferIn  ShareKind = "transfer_in"
	ShareTransferOut ShareKind = "transfer_out"
)

type ShareAccount struct {
	MemberID  string    `json:"member_id"`
	Shares    int64     `json:"shares"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ShareTransaction struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	Kind      ShareKind `json:"kind"`
	Shares    int64     `json:"shares"`
	UnitPrice int64     `json:"unit_price"`
	Reference string    `json:"reference"` // counterpart member ID for transfers
	CreatedAt time.Time `json:"created_at"`
}

// Holding is a member's shareholding, as used to apportion dividends.
type Holding struct {
	MemberID string `json:"member_id"`
	MemberNo string `json:"member_no"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Shares   int64  `json:"shares"`
}

// Loans

type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanDisbursed LoanStatus = "disbursed"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

// ActiveLoanStatuses are counted against sacco.maxActiveLoans and block a member exit.
var ActiveLoanStatuses = []LoanStatus{LoanPending, LoanApproved, LoanDisbursed}

type LoanProduct struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	RateBps       int64          `json:"rate_bps"` // annual
	Method        InterestMethod `json:"method"`
	MaxTermMonths int            `json:"max_term_months"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

type NewLoanProduct struct {
	Name          string         `json:"name" validate:"required,max=128"`
	RateBps       int64          `json:"rate_bps" validate:"gte=0,lte=10000"`
	Method        InterestMethod `json:"method" validate:"required,oneof=flat reducing"`
	MaxTermMonths int            `json:"max_term_months" validate:"gt=0,lte=360"`
}

type UpdateLoanProduct struct {
	Name          *string         `json:"name" validate:"omitempty,min=1,max=128"`
	RateBps       *int64          `json:"rate_bps" validate:"omitempty,gte=0,lte=10000"`
	Method        *InterestMethod `json:"method" validate:"omitempty,oneof=flat reducing"`
	MaxTermMonths *int            `json:"max_term_months" validate:"omitempty,gt=0,lte=360"`
	IsActive      *bool           `json:"is_active"`
}

type Loan struct {
	ID            string         `json:"id"`
	MemberID      string         `json:"member_id"`
	ProductID     string         `json:"product_id"`
	Principal     int64          `json:"principal"`
	RateBps       int64          `json:"rate_bps"`
	Method        InterestMethod `json:"method"`
	TermMonths    int            `json:"term_months"`
	Status        LoanStatus     `json:"status"`
	TotalInterest int64          `json:"total_interest"`
	TotalDue      int64          `json:"total_due"`
	AmountPaid    int64          `json:"amount_paid"`
	InterestPaid  int64          `json:"interest_paid"`
	PrincipalPaid int64          `json:"principal_paid"`
	Purpose       string         `json:"purpose"`
	ReviewedBy    string         `json:"reviewed_by,omitempty"`
	ReviewNote    string         `json:"review_note,omitempty"`
	AppliedAt     time.Time      `json:"applied_at"`
	ReviewedAt    time.Time      `json:"reviewed_at"`
	DisbursedAt   time.Time      `json:"disbursed_at"`
	DueDate       time.Time      `json:"due_date"`
	ClosedAt      time.Time      `json:"closed_at"` // repaid or defaulted
}

func (l Loan) Outstanding() int64 { return l.TotalDue - l.AmountPaid }

func (l Loan) OutstandingInterest() int64 { return l.TotalInterest - l.InterestPaid }

func (l Loan) OutstandingPrincipal() int64 { return l.Principal - l.PrincipalPaid }

type LoanApplication struct {
	MemberID   string `json:"member_id" validate:"required"`
	ProductID  string `json:"product_id" validate:"required"`
	Principal  int64  `json:"principal" validate:"gt=0"`
	TermMonths int    `json:"term_months" validate:"gt=0"`
	Purpose    string `json:"purpose" validate:"max=512"`
}

type RepaymentSource string

const (
	RepayFromCash    RepaymentSource = "cash"
	RepayFromSavings RepaymentSource = "savings"
)

type Repayment struct {
	ID            string          `json:"id"`
	LoanID        string          `json:"loan_id"`
	Amount        int64           `json:"amount"`
	InterestPart  int64           `json:"interest_part"`
	PrincipalPart int64           `json:"principal_part"`
	Source        RepaymentSource `json:"source"`
	Reference     string          `json:"reference"`
	CreatedBy     string          `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type NewRepayment struct {
	Amount    int64           `json:"amount" validate:"gt=0"`
	Source    RepaymentSource `json:"source" validate:"omitempty,oneof=cash savings"`
	Reference string          `json:"reference" validate:"max=128"`
}

type LoanFilter struct {
	MemberID  string    `query:"member_id"`
	ProductID string    `query:"product_id"`
	Statuses  []string  `query:"status"`
	DueBefore time.Time `query:"-"`
}

func (lf *LoanFilter) Clean() {
	lf.MemberID = core.CleanString(lf.MemberID)
	lf.ProductID = core.CleanString(lf.ProductID)
	statuses := lf.Statuses[:0]
	for _, s := range lf.Statuses {
		if s = core.CleanString(s, true /* lower */); s != "" {
			statuses = append(statuses, s)
		}
	}
	lf.Statuses = statuses
}

// Dividends

type Dividend struct {
	ID           string    `json:"id"`
	Period       string    `json:"period"` // eg. 2024
	Pool         int64     `json:"pool"`
	TotalShares  int64     `json:"total_shares"`
	RatePerShare float64   `json:"rate_per_share"` // minor units, informative
	DeclaredBy   string    `json:"declared_by"`
	DeclaredAt   time.Time `json:"declared_at"`
}

type Payout struct {
	ID         string `json:"id"`
	DividendID string `json:"dividend_id"`
	MemberID   string `json:"member_id"`
	MemberNo   string `json:"member_no"`
	Shares     int64  `json:"shares"`
	Amount     int64  `json:"amount"`
}

type DividendDeclaration struct {
	Period string `json:"period" validate:"required,max=32"`
	Pool   int64  `json:"pool" validate:"gt=0"`
}
