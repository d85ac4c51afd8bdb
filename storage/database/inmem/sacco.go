package inmemdb

import (
	"context"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/sacco"
)

type saccoRepository struct {
	db *DB
}

var _ sacco.Repository = (*saccoRepository)(nil)

func NewSaccoRepository(db *DB) sacco.Repository {
	return &saccoRepository{db: db}
}

func membersTable(st *state) map[string]sacco.Member                 { return st.members }
func savingsTable(st *state) map[string]sacco.SavingsAccount         { return st.savings }
func sharesTable(st *state) map[string]sacco.ShareAccount            { return st.shares }
func productsTable(st *state) map[string]sacco.LoanProduct           { return st.products }
func loansTable(st *state) map[string]sacco.Loan                     { return st.loans }
func dividendsTable(st *state) map[string]sacco.Dividend             { return st.dividends }
func savingsTxnsTable(st *state) map[string]sacco.SavingsTransaction { return st.savingsTxns }
func shareTxnsTable(st *state) map[string]sacco.ShareTransaction     { return st.shareTxns }
func repaymentsTable(st *state) map[string]sacco.Repayment           { return st.repayments }

// Members

func (repo *saccoRepository) NextMemberSeq(ctx context.Context) (seq int64, err error) {
	err = repo.db.write(ctx, func(st *state) error {
		st.memberSeq++
		seq = st.memberSeq
		return nil
	})
	return seq, err
}

func (repo *saccoRepository) CreateMember(ctx context.Context, m sacco.Member) (sacco.Member, error) {
	err := repo.db.write(ctx, func(st *state) error {
		st.members[m.ID] = m
		st.savings[m.ID] = sacco.SavingsAccount{MemberID: m.ID, UpdatedAt: m.JoinedAt}
		st.shares[m.ID] = sacco.ShareAccount{MemberID: m.ID, UpdatedAt: m.JoinedAt}
		return nil
	})
	return m, err
}

func (repo *saccoRepository) GetMember(_ context.Context, id string) (sacco.Member, error) {
	return get(repo.db, membersTable, id, sacco.ErrMemberNotFound)
}

func (repo *saccoRepository) LockMember(ctx context.Context, id string) (sacco.Member, error) {
	return repo.GetMember(ctx, id)
}

func (repo *saccoRepository) UpdateMember(ctx context.Context, m sacco.Member) (sacco.Member, error) {
	return put(ctx, repo.db, membersTable, m.ID, m, true, sacco.ErrMemberNotFound)
}

func (repo *saccoRepository) QueryMembers(
	_ context.Context,
	filter sacco.MemberFilter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []sacco.Member, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.members, func(m sacco.Member) bool {
			if filter.Search != "" &&
				!containsFold(m.Name, filter.Search) &&
				!containsFold(m.MemberNo, filter.Search) &&
				!containsFold(m.Email, filter.Search) &&
				!containsFold(m.Phone, filter.Search) {
				return false
			}
			return (filter.Status == "" || m.Status == filter.Status) &&
				(filter.UserID == "" || m.UserID == filter.UserID)
		})
	})
	orderBy(res, ordering, func(m sacco.Member, field string) interface{} {
		switch field {
		case "name":
			return m.Name
		case "joined_at":
			return m.JoinedAt
		}
		return memberSeqOf(m.MemberNo)
	}, func(m sacco.Member) string { return m.ID })
	return paginate(res, page), nil
}

// memberSeqOf orders member numbers numerically.
func memberSeqOf(memberNo string) int64 {
	var n int64
	for _, c := range memberNo {
		if c >= '0' && c <= '9' {
			n = n*10 + int64(c-'0')
		}
	}
	return n
}

// Savings

func (repo *saccoRepository) GetSavings(_ context.Context, memberID string) (sacco.SavingsAccount, error) {
	return get(repo.db, savingsTable, memberID, sacco.ErrMemberNotFound)
}

func (repo *saccoRepository) LockSavings(ctx context.Context, memberID string) (sacco.SavingsAccount, error) {
	return repo.GetSavings(ctx, memberID)
}

func (repo *saccoRepository) UpdateSavings(ctx context.Context, acc sacco.SavingsAccount) error {
	_, err := put(ctx, repo.db, savingsTable, acc.MemberID, acc, true, sacco.ErrMemberNotFound)
	return err
}

func (repo *saccoRepository) CreateSavingsTransaction(ctx context.Context, txn sacco.SavingsTransaction) (sacco.SavingsTransaction, error) {
	return put(ctx, repo.db, savingsTxnsTable, txn.ID, txn, false, nil)
}

func (repo *saccoRepository) QuerySavingsTransactions(_ context.Context, memberID string, page core.Page) (res []sacco.SavingsTransaction, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.savingsTxns, func(t sacco.SavingsTransaction) bool { return t.MemberID == memberID })
	})
	orderBy(res, newestFirst, func(t sacco.SavingsTransaction, _ string) interface{} { return t.CreatedAt },
		func(t sacco.SavingsTransaction) string { return t.ID })
	return paginate(res, page), nil
}

var newestFirst = []core.DBOrdering{{Field: "created_at"}}

// Shares

func (repo *saccoRepository) GetShares(_ context.Context, memberID string) (sacco.ShareAccount, error) {
	return get(repo.db, sharesTable, memberID, sacco.ErrMemberNotFound)
}

func (repo *saccoRepository) LockShares(ctx context.Context, memberID string) (sacco.ShareAccount, error) {
	return repo.GetShares(ctx, memberID)
}

func (repo *saccoRepository) UpdateShares(ctx context.Context, acc sacco.ShareAccount) error {
	_, err := put(ctx, repo.db, sharesTable, acc.MemberID, acc, true, sacco.ErrMemberNotFound)
	return err
}

func (repo *saccoRepository) CreateShareTransaction(ctx context.Context, txn sacco.ShareTransaction) (sacco.ShareTransaction, error) {
	return put(ctx, repo.db, shareTxnsTable, txn.ID, txn, false, nil)
}

func (repo *saccoRepository) QueryShareTransactions(_ context.Context, memberID string, page core.Page) (res []sacco.ShareTransaction, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.shareTxns, func(t sacco.ShareTransaction) bool { return t.MemberID == memberID })
	})
	orderBy(res, newestFirst, func(t sacco.ShareTransaction, _ string) interface{} { return t.CreatedAt },
		func(t sacco.ShareTransaction) string { return t.ID })
	return paginate(res, page), nil
}

func (repo *saccoRepository) LockHoldings(context.Context) (res []sacco.Holding, _ error) {
	repo.db.read(func(st *state) {
		for _, acc := range st.shares {
			if acc.Shares <= 0 {
				continue
			}
			m := st.members[acc.MemberID]
			res = append(res, sacco.Holding{
				MemberID: m.ID,
				MemberNo: m.MemberNo,
				Name:     m.Name,
				Email:    m.Email,
				Shares:   acc.Shares,
			})
		}
	})
	return res, nil
}

// Loan products

func (repo *saccoRepository) CreateProduct(ctx context.Context, p sacco.LoanProduct) (sacco.LoanProduct, error) {
	return put(ctx, repo.db, productsTable, p.ID, p, false, nil)
}

func (repo *saccoRepository) GetProduct(_ context.Context, id string) (sacco.LoanProduct, error) {
	return get(repo.db, productsTable, id, sacco.ErrProductNotFound)
}

func (repo *saccoRepository) UpdateProduct(ctx context.Context, p sacco.LoanProduct) (sacco.LoanProduct, error) {
	return put(ctx, repo.db, productsTable, p.ID, p, true, sacco.ErrProductNotFound)
}

func (repo *saccoRepository) QueryProducts(_ context.Context, activeOnly bool) (res []sacco.LoanProduct, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.products, func(p sacco.LoanProduct) bool { return !activeOnly || p.IsActive })
	})
	orderBy(res, []core.DBOrdering{{Field: "name", Ascending: true}},
		func(p sacco.LoanProduct, _ string) interface{} { return p.Name },
		func(p sacco.LoanProduct) string { return p.ID })
	return res, nil
}

// Loans

func (repo *saccoRepository) CreateLoan(ctx context.Context, l sacco.Loan) (sacco.Loan, error) {
	return put(ctx, repo.db, loansTable, l.ID, l, false, nil)
}

func (repo *saccoRepository) GetLoan(_ context.Context, id string) (sacco.Loan, error) {
	return get(repo.db, loansTable, id, sacco.ErrLoanNotFound)
}

func (repo *saccoRepository) LockLoan(ctx context.Context, id string) (sacco.Loan, error) {
	return repo.GetLoan(ctx, id)
}

func (repo *saccoRepository) UpdateLoan(ctx context.Context, l sacco.Loan) (sacco.Loan, error) {
	return put(ctx, repo.db, loansTable, l.ID, l, true, sacco.ErrLoanNotFound)
}

func (repo *saccoRepository) QueryLoans(
	_ context.Context,
	filter sacco.LoanFilter,
	ordering []core.DBOrdering,
	page core.Page,
) (res []sacco.Loan, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.loans, func(l sacco.Loan) bool {
			if len(filter.Statuses) > 0 && !hasAnyOf([]string{string(l.Status)}, filter.Statuses) {
				return false
			}
			return (filter.MemberID == "" || l.MemberID == filter.MemberID) &&
				(filter.ProductID == "" || l.ProductID == filter.ProductID) &&
				(filter.DueBefore.IsZero() || (!l.DueDate.IsZero() && l.DueDate.Before(filter.DueBefore)))
		})
	})
	orderBy(res, ordering, func(l sacco.Loan, field string) interface{} {
		switch field {
		case "principal":
			return l.Principal
		case "due_date":
			return l.DueDate
		case "status":
			return string(l.Status)
		}
		return l.AppliedAt
	}, func(l sacco.Loan) string { return l.ID })
	return paginate(res, page), nil
}

func (repo *saccoRepository) CountLoans(_ context.Context, memberID string, statuses ...sacco.LoanStatus) (n int, _ error) {
	repo.db.read(func(st *state) {
		for _, l := range st.loans {
			if l.MemberID != memberID {
				continue
			}
			for _, s := range statuses {
				if l.Status == s {
					n++
					break
				}
			}
		}
	})
	return n, nil
}

func (repo *saccoRepository) CreateRepayment(ctx context.Context, r sacco.Repayment) (sacco.Repayment, error) {
	return put(ctx, repo.db, repaymentsTable, r.ID, r, false, nil)
}

func (repo *saccoRepository) QueryRepayments(_ context.Context, loanID string) (res []sacco.Repayment, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.repayments, func(r sacco.Repayment) bool { return r.LoanID == loanID })
	})
	orderBy(res, []core.DBOrdering{{Field: "created_at", Ascending: true}},
		func(r sacco.Repayment, _ string) interface{} { return r.CreatedAt },
		func(r sacco.Repayment) string { return r.ID })
	return res, nil
}

// Dividends

func (repo *saccoRepository) GetDividend(_ context.Context, id string) (sacco.Dividend, error) {
	return get(repo.db, dividendsTable, id, sacco.ErrDividendNotFound)
}

func (repo *saccoRepository) GetDividendByPeriod(_ context.Context, period string) (d sacco.Dividend, err error) {
	err = sacco.ErrDividendNotFound
	repo.db.read(func(st *state) {
		for _, div := range st.dividends {
			if div.Period == period {
				d, err = div, nil
				return
			}
		}
	})
	return d, err
}

func (repo *saccoRepository) CreateDividend(ctx context.Context, d sacco.Dividend) (sacco.Dividend, error) {
	err := repo.db.write(ctx, func(st *state) error {
		for _, div := range st.dividends {
			if div.Period == d.Period {
				return sacco.ErrDividendDeclared
			}
		}
		st.dividends[d.ID] = d
		return nil
	})
	return d, err
}

func (repo *saccoRepository) CreatePayouts(ctx context.Context, payouts []sacco.Payout) error {
	return repo.db.write(ctx, func(st *state) error {
		for _, p := range payouts {
			st.payouts[p.ID] = p
		}
		return nil
	})
}

func (repo *saccoRepository) QueryDividends(context.Context) (res []sacco.Dividend, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.dividends, nil)
	})
	orderBy(res, []core.DBOrdering{{Field: "declared_at"}},
		func(d sacco.Dividend, _ string) interface{} { return d.DeclaredAt },
		func(d sacco.Dividend) string { return d.ID })
	return res, nil
}

func (repo *saccoRepository) QueryPayouts(_ context.Context, dividendID string) (res []sacco.Payout, _ error) {
	repo.db.read(func(st *state) {
		res = rows(st.payouts, func(p sacco.Payout) bool { return p.DividendID == dividendID })
	})
	orderBy(res, []core.DBOrdering{{Field: "member_no", Ascending: true}},
		func(p sacco.Payout, _ string) interface{} { return memberSeqOf(p.MemberNo) },
		func(p sacco.Payout) string { return p.ID })
	return res, nil
}
