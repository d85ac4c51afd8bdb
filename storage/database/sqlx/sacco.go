package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/sacco"
)

const (
	memberTable         = "sacco_members"
	savingsTable        = "sacco_savings_accounts"
	savingsTxnTable     = "sacco_savings_transactions"
	sharesTable         = "sacco_share_accounts"
	shareTxnTable       = "sacco_share_transactions"
	loanProductTable    = "sacco_loan_products"
	loanTable           = "sacco_loans"
	repaymentTable      = "sacco_loan_repayments"
	dividendTable       = "sacco_dividends"
	dividendPayoutTable = "sacco_dividend_payouts"
)

var (
	memberColumns     = []string{"id", "user_id", "member_no", "name", "email", "phone", "status", "joined_at", "exited_at"}
	savingsTxnColumns = []string{"id", "member_id", "kind", "amount", "balance_after", "reference", "created_by", "created_at"}
	shareTxnColumns   = []string{"id", "member_id", "kind", "shares", "unit_price", "reference", "created_at"}
	productColumns    = []string{"id", "name", "rate_bps", "method", "max_term_months", "is_active", "created_at", "updated_at"}
	loanColumns       = []string{
		"id", "member_id", "product_id", "principal", "rate_bps", "method", "term_months", "status",
		"total_interest", "total_due", "amount_paid", "interest_paid", "principal_paid", "purpose",
		"reviewed_by", "review_note", "applied_at", "reviewed_at", "disbursed_at", "due_date", "closed_at",
	}
	repaymentColumns = []string{
		"id", "loan_id", "amount", "interest_part", "principal_part", "source", "reference", "created_by", "created_at",
	}
	dividendColumns = []string{"id", "period", "pool", "total_shares", "rate_per_share", "declared_by", "declared_at"}
	payoutColumns   = []string{"id", "dividend_id", "member_id", "member_no", "shares", "amount"}
)

type (
	memberRow struct {
		ID       string      `db:"id"`
		UserID   null.String `db:"user_id"`
		MemberNo string      `db:"member_no"`
		Name     string      `db:"name"`
		Email    string      `db:"email"`
		Phone    string      `db:"phone"`
		Status   string      `db:"status"`
		JoinedAt time.Time   `db:"joined_at"`
		ExitedAt null.Time   `db:"exited_at"`
	}

	accountRow struct {
		MemberID  string    `db:"member_id"`
		Balance   int64     `db:"balance"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	savingsTxnRow struct {
		ID           string      `db:"id"`
		MemberID     string      `db:"member_id"`
		Kind         string      `db:"kind"`
		Amount       int64       `db:"amount"`
		BalanceAfter int64       `db:"balance_after"`
		Reference    string      `db:"reference"`
		CreatedBy    null.String `db:"created_by"`
		CreatedAt    time.Time   `db:"created_at"`
	}

	shareTxnRow struct {
		ID        string    `db:"id"`
		MemberID  string    `db:"member_id"`
		Kind      string    `db:"kind"`
		Shares    int64     `db:"shares"`
		UnitPrice int64     `db:"unit_price"`
		Reference string    `db:"reference"`
		CreatedAt time.Time `db:"created_at"`
	}

	holdingRow struct {
		MemberID string `db:"member_id"`
		MemberNo string `db:"member_no"`
		Name     string `db:"name"`
		Email    string `db:"email"`
		Shares   int64  `db:"shares"`
	}

	productRow struct {
		ID            string    `db:"id"`
		Name          string    `db:"name"`
		RateBps       int64     `db:"rate_bps"`
		Method        string    `db:"method"`
		MaxTermMonths int       `db:"max_term_months"`
		IsActive      bool      `db:"is_active"`
		CreatedAt     time.Time `db:"created_at"`
		UpdatedAt     time.Time `db:"updated_at"`
	}

	loanRow struct {
		ID            string      `db:"id"`
		MemberID      string      `db:"member_id"`
		ProductID     string      `db:"product_id"`
		Principal     int64       `db:"principal"`
		RateBps       int64       `db:"rate_bps"`
		Method        string      `db:"method"`
		TermMonths    int         `db:"term_months"`
		Status        string      `db:"status"`
		TotalInterest int64       `db:"total_interest"`
		TotalDue      int64       `db:"total_due"`
		AmountPaid    int64       `db:"amount_paid"`
		InterestPaid  int64       `db:"interest_paid"`
		PrincipalPaid int64       `db:"principal_paid"`
		Purpose       string      `db:"purpose"`
		ReviewedBy    null.String `db:"reviewed_by"`
		ReviewNote    null.String `db:"review_note"`
		AppliedAt     time.Time   `db:"applied_at"`
		ReviewedAt    null.Time   `db:"reviewed_at"`
		DisbursedAt   null.Time   `db:"disbursed_at"`
		DueDate       null.Time   `db:"due_date"`
		ClosedAt      null.Time   `db:"closed_at"`
	}

	repaymentRow struct {
		ID            string      `db:"id"`
		LoanID        string      `db:"loan_id"`
		Amount        int64       `db:"amount"`
		InterestPart  int64       `db:"interest_part"`
		PrincipalPart int64       `db:"principal_part"`
		Source        string      `db:"source"`
		Reference     string      `db:"reference"`
		CreatedBy     null.String `db:"created_by"`
		CreatedAt     time.Time   `db:"created_at"`
	}

	dividendRow struct {
		ID           string    `db:"id"`
		Period       string    `db:"period"`
		Pool         int64     `db:"pool"`
		TotalShares  int64     `db:"total_shares"`
		RatePerShare float64   `db:"rate_per_share"`
		DeclaredBy   string    `db:"declared_by"`
		DeclaredAt   time.Time `db:"declared_at"`
	}

	payoutRow struct {
		ID         string `db:"id"`
		DividendID string `db:"dividend_id"`
		MemberID   string `db:"member_id"`
		MemberNo   string `db:"member_no"`
		Shares     int64  `db:"shares"`
		Amount     int64  `db:"amount"`
	}
)

func (r memberRow) unboil() sacco.Member {
	return sacco.Member{
		ID:       r.ID,
		UserID:   r.UserID.String,
		MemberNo: r.MemberNo,
		Name:     r.Name,
		Email:    r.Email,
		Phone:    r.Phone,
		Status:   sacco.MemberStatus(r.Status),
		JoinedAt: r.JoinedAt,
		ExitedAt: r.ExitedAt.Time,
	}
}

func (r savingsTxnRow) unboil() sacco.SavingsTransaction {
	return sacco.SavingsTransaction{
		ID:           r.ID,
		MemberID:     r.MemberID,
		Kind:         sacco.SavingsKind(r.Kind),
		Amount:       r.Amount,
		BalanceAfter: r.BalanceAfter,
		Reference:    r.Reference,
		CreatedBy:    r.CreatedBy.String,
		CreatedAt:    r.CreatedAt,
	}
}

func (r shareTxnRow) unboil() sacco.ShareTransaction {
	return sacco.ShareTransaction{
		ID:        r.ID,
		MemberID:  r.MemberID,
		Kind:      sacco.ShareKind(r.Kind),
		Shares:    r.Shares,
		UnitPrice: r.UnitPrice,
		Reference: r.Reference,
		CreatedAt: r.CreatedAt,
	}
}

func (r productRow) unboil() sacco.LoanProduct {
	return sacco.LoanProduct{
		ID:            r.ID,
		Name:          r.Name,
		RateBps:       r.RateBps,
		Method:        sacco.InterestMethod(r.Method),
		MaxTermMonths: r.MaxTermMonths,
		IsActive:      r.IsActive,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r loanRow) unboil() sacco.Loan {
	return sacco.Loan{
		ID:            r.ID,
		MemberID:      r.MemberID,
		ProductID:     r.ProductID,
		Principal:     r.Principal,
		RateBps:       r.RateBps,
		Method:        sacco.InterestMethod(r.Method),
		TermMonths:    r.TermMonths,
		Status:        sacco.LoanStatus(r.Status),
		TotalInterest: r.TotalInterest,
		TotalDue:      r.TotalDue,
		AmountPaid:    r.AmountPaid,
		InterestPaid:  r.InterestPaid,
		PrincipalPaid: r.PrincipalPaid,
		Purpose:       r.Purpose,
		ReviewedBy:    r.ReviewedBy.String,
		ReviewNote:    r.ReviewNote.String,
		AppliedAt:     r.AppliedAt,
		ReviewedAt:    r.ReviewedAt.Time,
		DisbursedAt:   r.DisbursedAt.Time,
		DueDate:       r.DueDate.Time,
		ClosedAt:      r.ClosedAt.Time,
	}
}

func (r repaymentRow) unboil() sacco.Repayment {
	return sacco.Repayment{
		ID:            r.ID,
		LoanID:        r.LoanID,
		Amount:        r.Amount,
		InterestPart:  r.InterestPart,
		PrincipalPart: r.PrincipalPart,
		Source:        sacco.RepaymentSource(r.Source),
		Reference:     r.Reference,
		CreatedBy:     r.CreatedBy.String,
		CreatedAt:     r.CreatedAt,
	}
}

type saccoRepository struct {
	db *sqlx.DB
}

var _ sacco.Repository = (*saccoRepository)(nil) // interface compliance check

func NewSaccoRepository(db *sqlx.DB) sacco.Repository {
	return &saccoRepository{db: db}
}

// Members

func (repo saccoRepository) NextMemberSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := getExec(ctx, repo.db).GetContext(ctx, &seq, "SELECT nextval('sacco_member_no_seq')"); err != nil {
		return 0, errors.Wrap(err, "selecting member sequence")
	}
	return seq, nil
}

func (repo saccoRepository) CreateMember(ctx context.Context, m sacco.Member) (sacco.Member, error) {
	err := insert(ctx, repo.db, memberTable, map[string]interface{}{
		"id":        m.ID,
		"user_id":   nullString(m.UserID),
		"member_no": m.MemberNo,
		"name":      m.Name,
		"email":     m.Email,
		"phone":     m.Phone,
		"status":    string(m.Status),
		"joined_at": m.JoinedAt.UTC(),
		"exited_at": nullTime(m.ExitedAt),
	}, "inserting member")
	if err != nil {
		return sacco.Member{}, err
	}

	for _, table := range []string{savingsTable, sharesTable} {
		col := "balance"
		if table == sharesTable {
			col = "shares"
		}
		err = insert(ctx, repo.db, table, map[string]interface{}{
			"member_id":  m.ID,
			col:          0,
			"updated_at": m.JoinedAt.UTC(),
		}, "opening member accounts")
		if err != nil {
			return sacco.Member{}, err
		}
	}
	return m, nil
}

func (repo saccoRepository) getMember(ctx context.Context, id string, lock bool) (sacco.Member, error) {
	if !validID(id) {
		return sacco.Member{}, sacco.ErrMemberNotFound
	}
	qb := psql.Select(memberColumns...).From(memberTable).Where(sq.Eq{"id": id})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	return getOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "selecting member", memberRow.unboil)
}

func (repo saccoRepository) GetMember(ctx context.Context, id string) (sacco.Member, error) {
	return repo.getMember(ctx, id, false)
}

func (repo saccoRepository) LockMember(ctx context.Context, id string) (sacco.Member, error) {
	return repo.getMember(ctx, id, true)
}

func (repo saccoRepository) UpdateMember(ctx context.Context, m sacco.Member) (sacco.Member, error) {
	qb := psql.Update(memberTable).SetMap(map[string]interface{}{
		"user_id":   nullString(m.UserID),
		"name":      m.Name,
		"email":     m.Email,
		"phone":     m.Phone,
		"status":    string(m.Status),
		"exited_at": nullTime(m.ExitedAt),
	}).Where(sq.Eq{"id": m.ID})
	if err := updateOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "updating member"); err != nil {
		return sacco.Member{}, err
	}
	return m, nil
}

func (repo saccoRepository) QueryMembers(
	ctx context.Context,
	filter sacco.MemberFilter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]sacco.Member, error) {
	qb := psql.Select(memberColumns...).From(memberTable)
	if filter.Search != "" {
		val := ilike(filter.Search)
		qb = qb.Where(sq.Or{
			sq.ILike{"name": val}, sq.ILike{"member_no": val}, sq.ILike{"email": val}, sq.ILike{"phone": val},
		})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting members", memberRow.unboil)
}

// Savings

func (repo saccoRepository) getSavings(ctx context.Context, memberID string, lock bool) (sacco.SavingsAccount, error) {
	if !validID(memberID) {
		return sacco.SavingsAccount{}, sacco.ErrMemberNotFound
	}
	qb := psql.Select("member_id", "balance", "updated_at").From(savingsTable).Where(sq.Eq{"member_id": memberID})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	return getOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "selecting savings account", func(r accountRow) sacco.SavingsAccount {
		return sacco.SavingsAccount(r)
	})
}

func (repo saccoRepository) GetSavings(ctx context.Context, memberID string) (sacco.SavingsAccount, error) {
	return repo.getSavings(ctx, memberID, false)
}

func (repo saccoRepository) LockSavings(ctx context.Context, memberID string) (sacco.SavingsAccount, error) {
	return repo.getSavings(ctx, memberID, true)
}

func (repo saccoRepository) UpdateSavings(ctx context.Context, acc sacco.SavingsAccount) error {
	qb := psql.Update(savingsTable).
		Set("balance", acc.Balance).
		Set("updated_at", acc.UpdatedAt.UTC()).
		Where(sq.Eq{"member_id": acc.MemberID})
	return updateOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "updating savings account")
}

func (repo saccoRepository) CreateSavingsTransaction(ctx context.Context, txn sacco.SavingsTransaction) (sacco.SavingsTransaction, error) {
	err := insert(ctx, repo.db, savingsTxnTable, map[string]interface{}{
		"id":            txn.ID,
		"member_id":     txn.MemberID,
		"kind":          string(txn.Kind),
		"amount":        txn.Amount,
		"balance_after": txn.BalanceAfter,
		"reference":     txn.Reference,
		"created_by":    nullString(txn.CreatedBy),
		"created_at":    txn.CreatedAt.UTC(),
	}, "inserting savings transaction")
	return txn, err
}

func (repo saccoRepository) QuerySavingsTransactions(ctx context.Context, memberID string, page core.Page) ([]sacco.SavingsTransaction, error) {
	if !validID(memberID) {
		return nil, nil
	}
	qb := psql.Select(savingsTxnColumns...).From(savingsTxnTable).
		Where(sq.Eq{"member_id": memberID}).
		OrderBy("created_at DESC", "id")
	return selectAll(ctx, repo.db, paginate(qb, page), "selecting savings transactions", savingsTxnRow.unboil)
}

// Shares

func (repo saccoRepository) getShares(ctx context.Context, memberID string, lock bool) (sacco.ShareAccount, error) {
	if !validID(memberID) {
		return sacco.ShareAccount{}, sacco.ErrMemberNotFound
	}
	qb := psql.Select("member_id", "shares AS balance", "updated_at").From(sharesTable).Where(sq.Eq{"member_id": memberID})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	return getOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "selecting share account", func(r accountRow) sacco.ShareAccount {
		return sacco.ShareAccount{MemberID: r.MemberID, Shares: r.Balance, UpdatedAt: r.UpdatedAt}
	})
}

func (repo saccoRepository) GetShares(ctx context.Context, memberID string) (sacco.ShareAccount, error) {
	return repo.getShares(ctx, memberID, false)
}

func (repo saccoRepository) LockShares(ctx context.Context, memberID string) (sacco.ShareAccount, error) {
	return repo.getShares(ctx, memberID, true)
}

func (repo saccoRepository) UpdateShares(ctx context.Context, acc sacco.ShareAccount) error {
	qb := psql.Update(sharesTable).
		Set("shares", acc.Shares).
		Set("updated_at", acc.UpdatedAt.UTC()).
		Where(sq.Eq{"member_id": acc.MemberID})
	return updateOne(ctx, repo.db, qb, sacco.ErrMemberNotFound, "updating share account")
}

func (repo saccoRepository) CreateShareTransaction(ctx context.Context, txn sacco.ShareTransaction) (sacco.ShareTransaction, error) {
	err := insert(ctx, repo.db, shareTxnTable, map[string]interface{}{
		"id":         txn.ID,
		"member_id":  txn.MemberID,
		"kind":       string(txn.Kind),
		"shares":     txn.Shares,
		"unit_price": txn.UnitPrice,
		"reference":  txn.Reference,
		"created_at": txn.CreatedAt.UTC(),
	}, "inserting share transaction")
	return txn, err
}

func (repo saccoRepository) QueryShareTransactions(ctx context.Context, memberID string, page core.Page) ([]sacco.ShareTransaction, error) {
	if !validID(memberID) {
		return nil, nil
	}
	qb := psql.Select(shareTxnColumns...).From(shareTxnTable).
		Where(sq.Eq{"member_id": memberID}).
		OrderBy("created_at DESC", "id")
	return selectAll(ctx, repo.db, paginate(qb, page), "selecting share transactions", shareTxnRow.unboil)
}

func (repo saccoRepository) LockHoldings(ctx context.Context) ([]sacco.Holding, error) {
	qb := psql.Select("a.member_id", "m.member_no", "m.name", "m.email", "a.shares").
		From(sharesTable + " a").
		Join(memberTable + " m ON m.id = a.member_id").
		Where(sq.Gt{"a.shares": 0}).
		OrderBy("m.member_no").
		Suffix("FOR UPDATE OF a")
	return selectAll(ctx, repo.db, qb, "locking holdings", func(r holdingRow) sacco.Holding {
		return sacco.Holding(r)
	})
}

// Loan products

func (repo saccoRepository) CreateProduct(ctx context.Context, p sacco.LoanProduct) (sacco.LoanProduct, error) {
	err := insert(ctx, repo.db, loanProductTable, map[string]interface{}{
		"id":              p.ID,
		"name":            p.Name,
		"rate_bps":        p.RateBps,
		"method":          string(p.Method),
		"max_term_months": p.MaxTermMonths,
		"is_active":       p.IsActive,
		"created_at":      p.CreatedAt.UTC(),
		"updated_at":      p.UpdatedAt.UTC(),
	}, "inserting loan product")
	return p, err
}

func (repo saccoRepository) GetProduct(ctx context.Context, id string) (sacco.LoanProduct, error) {
	if !validID(id) {
		return sacco.LoanProduct{}, sacco.ErrProductNotFound
	}
	qb := psql.Select(productColumns...).From(loanProductTable).Where(sq.Eq{"id": id})
	return getOne(ctx, repo.db, qb, sacco.ErrProductNotFound, "selecting loan product", productRow.unboil)
}

func (repo saccoRepository) UpdateProduct(ctx context.Context, p sacco.LoanProduct) (sacco.LoanProduct, error) {
	qb := psql.Update(loanProductTable).SetMap(map[string]interface{}{
		"name":            p.Name,
		"rate_bps":        p.RateBps,
		"method":          string(p.Method),
		"max_term_months": p.MaxTermMonths,
		"is_active":       p.IsActive,
		"updated_at":      p.UpdatedAt.UTC(),
	}).Where(sq.Eq{"id": p.ID})
	if err := updateOne(ctx, repo.db, qb, sacco.ErrProductNotFound, "updating loan product"); err != nil {
		return sacco.LoanProduct{}, err
	}
	return p, nil
}

func (repo saccoRepository) QueryProducts(ctx context.Context, activeOnly bool) ([]sacco.LoanProduct, error) {
	qb := psql.Select(productColumns...).From(loanProductTable).OrderBy("name", "id")
	if activeOnly {
		qb = qb.Where(sq.Eq{"is_active": true})
	}
	return selectAll(ctx, repo.db, qb, "selecting loan products", productRow.unboil)
}

// Loans

func (repo saccoRepository) loanValues(l sacco.Loan) map[string]interface{} {
	return map[string]interface{}{
		"member_id":      l.MemberID,
		"product_id":     l.ProductID,
		"principal":      l.Principal,
		"rate_bps":       l.RateBps,
		"method":         string(l.Method),
		"term_months":    l.TermMonths,
		"status":         string(l.Status),
		"total_interest": l.TotalInterest,
		"total_due":      l.TotalDue,
		"amount_paid":    l.AmountPaid,
		"interest_paid":  l.InterestPaid,
		"principal_paid": l.PrincipalPaid,
		"purpose":        l.Purpose,
		"reviewed_by":    nullString(l.ReviewedBy),
		"review_note":    nullString(l.ReviewNote),
		"applied_at":     l.AppliedAt.UTC(),
		"reviewed_at":    nullTime(l.ReviewedAt),
		"disbursed_at":   nullTime(l.DisbursedAt),
		"due_date":       nullTime(l.DueDate),
		"closed_at":      nullTime(l.ClosedAt),
	}
}

func (repo saccoRepository) CreateLoan(ctx context.Context, l sacco.Loan) (sacco.Loan, error) {
	values := repo.loanValues(l)
	values["id"] = l.ID
	return l, insert(ctx, repo.db, loanTable, values, "inserting loan")
}

func (repo saccoRepository) getLoan(ctx context.Context, id string, lock bool) (sacco.Loan, error) {
	if !validID(id) {
		return sacco.Loan{}, sacco.ErrLoanNotFound
	}
	qb := psql.Select(loanColumns...).From(loanTable).Where(sq.Eq{"id": id})
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	return getOne(ctx, repo.db, qb, sacco.ErrLoanNotFound, "selecting loan", loanRow.unboil)
}

func (repo saccoRepository) GetLoan(ctx context.Context, id string) (sacco.Loan, error) {
	return repo.getLoan(ctx, id, false)
}

func (repo saccoRepository) LockLoan(ctx context.Context, id string) (sacco.Loan, error) {
	return repo.getLoan(ctx, id, true)
}

func (repo saccoRepository) UpdateLoan(ctx context.Context, l sacco.Loan) (sacco.Loan, error) {
	qb := psql.Update(loanTable).SetMap(repo.loanValues(l)).Where(sq.Eq{"id": l.ID})
	if err := updateOne(ctx, repo.db, qb, sacco.ErrLoanNotFound, "updating loan"); err != nil {
		return sacco.Loan{}, err
	}
	return l, nil
}

func (repo saccoRepository) QueryLoans(
	ctx context.Context,
	filter sacco.LoanFilter,
	ordering []core.DBOrdering,
	page core.Page,
) ([]sacco.Loan, error) {
	qb := psql.Select(loanColumns...).From(loanTable)
	if filter.MemberID != "" {
		if !validID(filter.MemberID) {
			return nil, nil
		}
		qb = qb.Where(sq.Eq{"member_id": filter.MemberID})
	}
	if filter.ProductID != "" {
		if !validID(filter.ProductID) {
			return nil, nil
		}
		qb = qb.Where(sq.Eq{"product_id": filter.ProductID})
	}
	if len(filter.Statuses) > 0 {
		qb = qb.Where(sq.Eq{"status": filter.Statuses})
	}
	if !filter.DueBefore.IsZero() {
		qb = qb.Where(sq.Lt{"due_date": filter.DueBefore.UTC()})
	}
	qb = paginate(orderBy(qb, ordering, "id"), page)
	return selectAll(ctx, repo.db, qb, "selecting loans", loanRow.unboil)
}

func (repo saccoRepository) CountLoans(ctx context.Context, memberID string, statuses ...sacco.LoanStatus) (int, error) {
	if !validID(memberID) || len(statuses) == 0 {
		return 0, nil
	}
	sts := make([]string, len(statuses))
	for i, s := range statuses {
		sts[i] = string(s)
	}

	var n int
	qb := psql.Select("COUNT(*)").From(loanTable).Where(sq.Eq{"member_id": memberID, "status": sts})
	if err := get(ctx, repo.db, &n, qb); err != nil {
		return 0, errors.Wrap(err, "counting loans")
	}
	return n, nil
}

func (repo saccoRepository) CreateRepayment(ctx context.Context, r sacco.Repayment) (sacco.Repayment, error) {
	err := insert(ctx, repo.db, repaymentTable, map[string]interface{}{
		"id":             r.ID,
		"loan_id":        r.LoanID,
		"amount":         r.Amount,
		"interest_part":  r.InterestPart,
		"principal_part": r.PrincipalPart,
		"source":         string(r.Source),
		"reference":      r.Reference,
		"created_by":     nullString(r.CreatedBy),
		"created_at":     r.CreatedAt.UTC(),
	}, "inserting repayment")
	return r, err
}

func (repo saccoRepository) QueryRepayments(ctx context.Context, loanID string) ([]sacco.Repayment, error) {
	if !validID(loanID) {
		return nil, nil
	}
	qb := psql.Select(repaymentColumns...).From(repaymentTable).
		Where(sq.Eq{"loan_id": loanID}).
		OrderBy("created_at", "id")
	return selectAll(ctx, repo.db, qb, "selecting repayments", repaymentRow.unboil)
}

// Dividends

func unboilDividend(r dividendRow) sacco.Dividend { return sacco.Dividend(r) }

func (repo saccoRepository) GetDividend(ctx context.Context, id string) (sacco.Dividend, error) {
	if !validID(id) {
		return sacco.Dividend{}, sacco.ErrDividendNotFound
	}
	qb := psql.Select(dividendColumns...).From(dividendTable).Where(sq.Eq{"id": id})
	return getOne(ctx, repo.db, qb, sacco.ErrDividendNotFound, "selecting dividend", unboilDividend)
}

func (repo saccoRepository) GetDividendByPeriod(ctx context.Context, period string) (sacco.Dividend, error) {
	qb := psql.Select(dividendColumns...).From(dividendTable).Where(sq.Eq{"period": period})
	return getOne(ctx, repo.db, qb, sacco.ErrDividendNotFound, "selecting dividend", unboilDividend)
}

func (repo saccoRepository) CreateDividend(ctx context.Context, d sacco.Dividend) (sacco.Dividend, error) {
	err := insert(ctx, repo.db, dividendTable, map[string]interface{}{
		"id":             d.ID,
		"period":         d.Period,
		"pool":           d.Pool,
		"total_shares":   d.TotalShares,
		"rate_per_share": d.RatePerShare,
		"declared_by":    d.DeclaredBy,
		"declared_at":    d.DeclaredAt.UTC(),
	}, "inserting dividend")
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "sacco_dividends_period_key" {
			return sacco.Dividend{}, sacco.ErrDividendDeclared
		}
		return sacco.Dividend{}, err
	}
	return d, nil
}

func (repo saccoRepository) CreatePayouts(ctx context.Context, payouts []sacco.Payout) error {
	if len(payouts) == 0 {
		return nil
	}
	qb := psql.Insert(dividendPayoutTable).Columns(payoutColumns...)
	for _, p := range payouts {
		qb = qb.Values(p.ID, p.DividendID, p.MemberID, p.MemberNo, p.Shares, p.Amount)
	}
	if _, err := exec(ctx, repo.db, qb); err != nil {
		return errors.Wrap(err, "inserting payouts")
	}
	return nil
}

func (repo saccoRepository) QueryDividends(ctx context.Context) ([]sacco.Dividend, error) {
	qb := psql.Select(dividendColumns...).From(dividendTable).OrderBy("declared_at DESC", "id")
	return selectAll(ctx, repo.db, qb, "selecting dividends", unboilDividend)
}

func (repo saccoRepository) QueryPayouts(ctx context.Context, dividendID string) ([]sacco.Payout, error) {
	if !validID(dividendID) {
		return nil, nil
	}
	qb := psql.Select(payoutColumns...).From(dividendPayoutTable).
		Where(sq.Eq{"dividend_id": dividendID}).
		OrderBy("member_no", "id")
	return selectAll(ctx, repo.db, qb, "selecting payouts", func(r payoutRow) sacco.Payout { return sacco.Payout(r) })
}
