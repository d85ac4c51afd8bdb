package sacco

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrProductInactive   = core.NewStateError("loan product is not active")
	ErrTermTooLong       = errors.New("term exceeds the product's maximum")
	ErrPrincipalTooHigh  = errors.New("principal exceeds the member's loan limit")
	ErrTooManyLoans      = core.NewStateError("member has reached the maximum number of active loans")
	ErrLoanNotPending    = core.NewStateError("loan is not pending")
	ErrLoanNotApproved   = core.NewStateError("loan is not approved")
	ErrLoanNotDisbursed  = core.NewStateError("loan is not disbursed")
	ErrOverpayment       = core.NewStateError("amount exceeds the outstanding balance")
	ErrReviewNoteMissing = errors.New("a note is required to reject a loan")
)

// Loan events
const (
	EventLoanApplied   = "sacco.loan.applied"
	EventLoanApproved  = "sacco.loan.approved"
	EventLoanRejected  = "sacco.loan.rejected"
	EventLoanDisbursed = "sacco.loan.disbursed"
	EventLoanRepaid    = "sacco.loan.repaid"
	EventLoanRepayment = "sacco.loan.repayment"
	EventLoanDefaulted = "sacco.loan.defaulted"
)

// Loan products

func (svc *Service) CreateProduct(ctx context.Context, np NewLoanProduct) (LoanProduct, error) {
	np.Name = core.CleanString(np.Name)
	if err := svc.validate.Struct(np); err != nil {
		return LoanProduct{}, err
	}
	now := svc.NowFunc()
	return svc.repo.CreateProduct(ctx, LoanProduct{
		ID:            uuid.NewString(),
		Name:          np.Name,
		RateBps:       np.RateBps,
		Method:        np.Method,
		MaxTermMonths: np.MaxTermMonths,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

// UpdateProduct changes a product. Existing loans keep the terms they were applied with.
func (svc *Service) UpdateProduct(ctx context.Context, id string, up UpdateLoanProduct) (LoanProduct, error) {
	if up.Name != nil {
		*up.Name = core.CleanString(*up.Name)
	}
	if err := svc.validate.Struct(up); err != nil {
		return LoanProduct{}, err
	}

	p, err := svc.repo.GetProduct(ctx, id)
	if err != nil {
		return LoanProduct{}, err
	}
	if up.Name != nil {
		p.Name = *up.Name
	}
	if up.RateBps != nil {
		p.RateBps = *up.RateBps
	}
	if up.Method != nil {
		p.Method = *up.Method
	}
	if up.MaxTermMonths != nil {
		p.MaxTermMonths = *up.MaxTermMonths
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}
	p.UpdatedAt = svc.NowFunc()
	return svc.repo.UpdateProduct(ctx, p)
}

func (svc *Service) GetProduct(ctx context.Context, id string) (LoanProduct, error) {
	return svc.repo.GetProduct(ctx, id)
}

func (svc *Service) ListProducts(ctx context.Context, activeOnly bool) ([]LoanProduct, error) {
	return svc.repo.QueryProducts(ctx, activeOnly)
}

// Loans

// LoanLimit returns the maximum principal a member may borrow: savings * sacco.loanMultiplier.
func (svc *Service) LoanLimit(ctx context.Context, memberID string) (int64, error) {
	acc, err := svc.repo.GetSavings(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if svc.conf.LoanMultiplier > 0 && acc.Balance > math.MaxInt64/svc.conf.LoanMultiplier {
		return math.MaxInt64, nil
	}
	return acc.Balance * svc.conf.LoanMultiplier, nil
}

// Apply records a pending loan application. Interest is fixed from the product at application time.
func (svc *Service) Apply(ctx context.Context, la LoanApplication) (Loan, error) {
	la.MemberID = core.CleanString(la.MemberID)
	la.ProductID = core.CleanString(la.ProductID)
	la.Purpose = core.CleanString(la.Purpose)
	if err := svc.validate.Struct(la); err != nil {
		return Loan{}, err
	}

	var loan Loan
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := svc.repo.LockMember(ctx, la.MemberID)
		if err != nil {
			return err
		}
		if !m.IsActive() {
			return ErrMemberNotActive
		}
		p, err := svc.repo.GetProduct(ctx, la.ProductID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return ErrProductInactive
		}
		if la.TermMonths > p.MaxTermMonths {
			return core.NewFieldError("term_months", errors.Wrapf(ErrTermTooLong, "max %d", p.MaxTermMonths))
		}

		limit, err := svc.LoanLimit(ctx, m.ID)
		if err != nil {
			return errors.Wrap(err, "getting loan limit")
		}
		if la.Principal > limit {
			return core.NewFieldError("principal", errors.Wrapf(ErrPrincipalTooHigh, "limit %s", core.FormatAmount(limit)))
		}
		n, err := svc.repo.CountLoans(ctx, m.ID, ActiveLoanStatuses...)
		if err != nil {
			return errors.Wrap(err, "counting loans")
		}
		if n >= svc.conf.MaxActiveLoans {
			return ErrTooManyLoans
		}

		interest := TotalInterest(la.Principal, p.RateBps, la.TermMonths, p.Method)
		loan, err = svc.repo.CreateLoan(ctx, Loan{
			ID:            uuid.NewString(),
			MemberID:      m.ID,
			ProductID:     p.ID,
			Principal:     la.Principal,
			RateBps:       p.RateBps,
			Method:        p.Method,
			TermMonths:    la.TermMonths,
			Status:        LoanPending,
			TotalInterest: interest,
			TotalDue:      la.Principal + interest,
			Purpose:       la.Purpose,
			AppliedAt:     svc.NowFunc(),
		})
		return errors.Wrap(err, "creating loan")
	})
	if err != nil {
		return Loan{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventLoanApplied, loan.MemberID, loan))
	return loan, nil
}

func (svc *Service) GetLoan(ctx context.Context, id string) (Loan, error) {
	return svc.repo.GetLoan(ctx, id)
}

func (svc *Service) ListLoans(ctx context.Context, filter LoanFilter, page core.Page, ordering ...core.DBOrdering) ([]Loan, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, LoanOrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "applied_at"}}
	}
	return svc.repo.QueryLoans(ctx, filter, ordering, page)
}

func (svc *Service) Approve(ctx context.Context, id, staffID, note string) (Loan, error) {
	return svc.review(ctx, id, staffID, note, LoanApproved)
}

// Reject declines a pending loan; `note` is required.
func (svc *Service) Reject(ctx context.Context, id, staffID, note string) (Loan, error) {
	if core.CleanString(note) == "" {
		return Loan{}, core.NewFieldError("note", ErrReviewNoteMissing)
	}
	return svc.review(ctx, id, staffID, note, LoanRejected)
}

func (svc *Service) review(ctx context.Context, id, staffID, note string, status LoanStatus) (Loan, error) {
	var loan Loan
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if loan, err = svc.repo.LockLoan(ctx, id); err != nil {
			return err
		}
		if loan.Status != LoanPending {
			return ErrLoanNotPending
		}
		loan.Status = status
		loan.ReviewedBy = staffID
		loan.ReviewNote = core.CleanString(note)
		loan.ReviewedAt = svc.NowFunc()
		loan, err = svc.repo.UpdateLoan(ctx, loan)
		return errors.Wrap(err, "updating loan")
	})
	if err != nil {
		return Loan{}, err
	}

	evt, verb := EventLoanApproved, "approved"
	if status == LoanRejected {
		evt, verb = EventLoanRejected, "rejected"
	}
	svc.events.Publish(ctx, core.NewEvent(evt, loan.MemberID, loan))
	lines := []string{fmt.Sprintf("Your loan application of %s was %s.", core.FormatAmount(loan.Principal), verb)}
	if loan.ReviewNote != "" {
		lines = append(lines, "Note: "+loan.ReviewNote)
	}
	svc.notifyMember(ctx, loan.MemberID, "Loan "+verb, lines...)
	return loan, nil
}

// Disburse pays an approved loan into the member's savings and starts the repayment term.
func (svc *Service) Disburse(ctx context.Context, id, staffID string) (Loan, error) {
	var loan Loan
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if loan, err = svc.repo.LockLoan(ctx, id); err != nil {
			return err
		}
		if loan.Status != LoanApproved {
			return ErrLoanNotApproved
		}
		if _, err = svc.postSavings(ctx, loan.MemberID, SavingsLoanDisbursement, loan.Principal, loan.ID, staffID); err != nil {
			return err
		}
		now := svc.NowFunc()
		loan.Status = LoanDisbursed
		loan.DisbursedAt = now
		loan.DueDate = now.AddDate(0, loan.TermMonths, 0)
		loan, err = svc.repo.UpdateLoan(ctx, loan)
		return errors.Wrap(err, "updating loan")
	})
	if err != nil {
		return Loan{}, err
	}

	svc.events.Publish(ctx, core.NewEvent(EventLoanDisbursed, loan.MemberID, loan))
	svc.notifyMember(ctx, loan.MemberID, "Loan disbursed",
		fmt.Sprintf("Your loan of %s was credited to your savings.", core.FormatAmount(loan.Principal)),
		fmt.Sprintf("Total due: %s by %s.", core.FormatAmount(loan.TotalDue), loan.DueDate.Format("2006-01-02")),
	)
	return loan, nil
}

// Repay records a repayment on a disbursed loan; outstanding interest is paid first, then principal.
func (svc *Service) Repay(ctx context.Context, id string, nr NewRepayment, staffID string) (Loan, Repayment, error) {
	nr.Reference = core.CleanString(nr.Reference)
	if nr.Source == "" {
		nr.Source = RepayFromCash
	}
	if err := svc.validate.Struct(nr); err != nil {
		return Loan{}, Repayment{}, err
	}

	var (
		loan Loan
		rep  Repayment
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if loan, err = svc.repo.LockLoan(ctx, id); err != nil {
			return err
		}
		if loan.Status != LoanDisbursed {
			return ErrLoanNotDisbursed
		}
		if nr.Amount > loan.Outstanding() {
			return ErrOverpayment
		}

		interestPart := nr.Amount
		if outstanding := loan.OutstandingInterest(); interestPart > outstanding {
			interestPart = outstanding
		}
		rep = Repayment{
			ID:            uuid.NewString(),
			LoanID:        loan.ID,
			Amount:        nr.Amount,
			InterestPart:  interestPart,
			PrincipalPart: nr.Amount - interestPart,
			Source:        nr.Source,
			Reference:     nr.Reference,
			CreatedBy:     staffID,
			CreatedAt:     svc.NowFunc(),
		}
		if nr.Source == RepayFromSavings {
			if _, err = svc.postSavings(ctx, loan.MemberID, SavingsLoanRepayment, nr.Amount, loan.ID, staffID); err != nil {
				return err
			}
		}
		if rep, err = svc.repo.CreateRepayment(ctx, rep); err != nil {
			return errors.Wrap(err, "creating repayment")
		}

		loan.AmountPaid += rep.Amount
		loan.InterestPaid += rep.InterestPart
		loan.PrincipalPaid += rep.PrincipalPart
		if loan.Outstanding() == 0 {
			loan.Status = LoanRepaid
			loan.ClosedAt = rep.CreatedAt
		}
		loan, err = svc.repo.UpdateLoan(ctx, loan)
		return errors.Wrap(err, "updating loan")
	})
	if err != nil {
		return Loan{}, Repayment{}, err
	}

	svc.events.Publish(ctx, core.NewEvent(EventLoanRepayment, loan.MemberID, rep))
	if loan.Status == LoanRepaid {
		svc.events.Publish(ctx, core.NewEvent(EventLoanRepaid, loan.MemberID, loan))
		svc.notifyMember(ctx, loan.MemberID, "Loan repaid",
			fmt.Sprintf("Your loan of %s is fully repaid.", core.FormatAmount(loan.Principal)),
		)
	}
	return loan, rep, nil
}

func (svc *Service) Repayments(ctx context.Context, loanID string) ([]Repayment, error) {
	if _, err := svc.repo.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return svc.repo.QueryRepayments(ctx, loanID)
}

// Schedule returns the installment plan of a loan. Loans that are not disbursed yet are planned from today.
func (svc *Service) Schedule(ctx context.Context, id string) ([]Installment, error) {
	loan, err := svc.repo.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	start := loan.DisbursedAt
	if start.IsZero() {
		start = core.StartOfDay(svc.NowFunc())
	}
	return Schedule(loan.Principal, loan.RateBps, loan.TermMonths, loan.Method, start), nil
}

// MarkOverdue defaults the disbursed loans still outstanding sacco.loanGraceDays after their due date.
// Returns the defaulted loans.
func (svc *Service) MarkOverdue(ctx context.Context, now time.Time) ([]Loan, error) {
	cutoff := now.AddDate(0, 0, -svc.conf.LoanGraceDays)
	candidates, err := svc.overdueLoans(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	var defaulted []Loan
	for _, c := range candidates {
		var (
			loan    Loan
			changed bool
		)
		err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
			var err error
			if loan, err = svc.repo.LockLoan(ctx, c.ID); err != nil {
				return err
			}
			// re-check under lock: a repayment may have closed it
			if loan.Status != LoanDisbursed || loan.Outstanding() <= 0 || !loan.DueDate.Before(cutoff) {
				return nil
			}
			loan.Status = LoanDefaulted
			loan.ClosedAt = now
			changed = true
			loan, err = svc.repo.UpdateLoan(ctx, loan)
			return errors.Wrap(err, "updating loan")
		})
		if err != nil {
			return defaulted, errors.Wrapf(err, "defaulting loan %s", c.ID)
		}
		if changed {
			defaulted = append(defaulted, loan)
			svc.events.Publish(ctx, core.NewEvent(EventLoanDefaulted, loan.MemberID, loan))
		}
	}
	if len(defaulted) > 0 {
		svc.log.Info("defaulted overdue loans", "count", len(defaulted))
	}
	return defaulted, nil
}

// overdueLoans reads every disbursed loan due before cutoff, page by page, before any is defaulted.
func (svc *Service) overdueLoans(ctx context.Context, cutoff time.Time) ([]Loan, error) {
	var (
		loans []Loan
		page  = core.Page{Limit: core.MaxPageLimit}
	)
	for {
		batch, err := svc.repo.QueryLoans(ctx, LoanFilter{
			Statuses:  []string{string(LoanDisbursed)},
			DueBefore: cutoff,
		}, []core.DBOrdering{{Field: "due_date", Ascending: true}}, page)
		if err != nil {
			return nil, errors.Wrap(err, "querying overdue loans")
		}
		loans = append(loans, batch...)
		if len(batch) < page.Limit {
			return loans, nil
		}
		page.Offset += page.Limit
	}
}

func (svc *Service) notifyMember(ctx context.Context, memberID, subject string, lines ...string) {
	m, err := svc.repo.GetMember(ctx, memberID)
	if err != nil {
		svc.log.Error("getting member to notify", "member", memberID, "err", err)
		return
	}
	svc.notify(m, subject, append([]string{fmt.Sprintf("Hello %s,", m.Name)}, lines...)...)
}
