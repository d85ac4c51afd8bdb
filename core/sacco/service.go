package sacco

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sautiplus/backoffice/core"
)

var (
	// errors
	ErrMemberNotFound      = core.NewNotFoundError("member not found")
	ErrProductNotFound     = core.NewNotFoundError("loan product not found")
	ErrLoanNotFound        = core.NewNotFoundError("loan not found")
	ErrDividendNotFound    = core.NewNotFoundError("dividend not found")
	ErrMemberNotActive     = core.NewStateError("member is not active")
	ErrMemberExited        = core.NewStateError("member has exited the sacco")
	ErrOutstandingLoan     = core.NewStateError("member has an outstanding loan")
	ErrInsufficientSavings = core.NewStateError("insufficient savings balance")
	ErrMinimumBalance      = core.NewStateError("withdrawal would leave less than the minimum savings balance")
	ErrInsufficientShares  = core.NewStateError("insufficient shares")
	ErrSameMember          = core.NewStateError("cannot transfer shares to the same member")
	ErrDividendDeclared    = core.NewConflictError("a dividend was already declared for this period")
	ErrNoShareholders      = core.NewStateError("no member holds shares")
	ErrInvalidAmount       = errors.New("amount must be greater than 0")
	ErrAmountTooLarge      = errors.New("amount would overflow the savings balance")
	ErrTooManyShares       = errors.New("share count is too large")
)

// Events
const (
	EventMemberRegistered = "sacco.member.registered"
	EventMemberStatus     = "sacco.member.status_changed"
	EventSavingsPosted    = "sacco.savings.posted"
	EventSharesPurchased  = "sacco.shares.purchased"
	EventSharesTransfered = "sacco.shares.transferred"
	EventDividendDeclared = "sacco.dividend.declared"
)

type (
	Repository interface {
		NextMemberSeq(ctx context.Context) (int64, error)
		// CreateMember also opens the member's savings & share accounts.
		CreateMember(ctx context.Context, m Member) (Member, error)
		GetMember(ctx context.Context, id string) (Member, error)
		LockMember(ctx context.Context, id string) (Member, error)
		UpdateMember(ctx context.Context, m Member) (Member, error)
		QueryMembers(ctx context.Context, filter MemberFilter, ordering []core.DBOrdering, page core.Page) ([]Member, error)

		GetSavings(ctx context.Context, memberID string) (SavingsAccount, error)
		LockSavings(ctx context.Context, memberID string) (SavingsAccount, error)
		UpdateSavings(ctx context.Context, acc SavingsAccount) error
		CreateSavingsTransaction(ctx context.Context, txn SavingsTransaction) (SavingsTransaction, error)
		// QuerySavingsTransactions returns the newest transactions first.
		QuerySavingsTransactions(ctx context.Context, memberID string, page core.Page) ([]SavingsTransaction, error)

		GetShares(ctx context.Context, memberID string) (ShareAccount, error)
		LockShares(ctx context.Context, memberID string) (ShareAccount, error)
		UpdateShares(ctx context.Context, acc ShareAccount) error
		CreateShareTransaction(ctx context.Context, txn ShareTransaction) (ShareTransaction, error)
		QueryShareTransactions(ctx context.Context, memberID string, page core.Page) ([]ShareTransaction, error)
		// LockHoldings locks & returns every share account with shares > 0.
		LockHoldings(ctx context.Context) ([]Holding, error)

		CreateProduct(ctx context.Context, p LoanProduct) (LoanProduct, error)
		GetProduct(ctx context.Context, id string) (LoanProduct, error)
		UpdateProduct(ctx context.Context, p LoanProduct) (LoanProduct, error)
		QueryProducts(ctx context.Context, activeOnly bool) ([]LoanProduct, error)

		CreateLoan(ctx context.Context, l Loan) (Loan, error)
		GetLoan(ctx context.Context, id string) (Loan, error)
		LockLoan(ctx context.Context, id string) (Loan, error)
		UpdateLoan(ctx context.Context, l Loan) (Loan, error)
		QueryLoans(ctx context.Context, filter LoanFilter, ordering []core.DBOrdering, page core.Page) ([]Loan, error)
		CountLoans(ctx context.Context, memberID string, statuses ...LoanStatus) (int, error)
		CreateRepayment(ctx context.Context, r Repayment) (Repayment, error)
		QueryRepayments(ctx context.Context, loanID string) ([]Repayment, error)

		GetDividend(ctx context.Context, id string) (Dividend, error)
		GetDividendByPeriod(ctx context.Context, period string) (Dividend, error)
		CreateDividend(ctx context.Context, d Dividend) (Dividend, error)
		CreatePayouts(ctx context.Context, payouts []Payout) error
		QueryDividends(ctx context.Context) ([]Dividend, error)
		QueryPayouts(ctx context.Context, dividendID string) ([]Payout, error)
	}

	Service struct {
		repo     Repository
		tx       core.Transactor
		events   core.EventPublisher
		mail     core.EmailService
		log      core.Logger
		validate *validator.Validate
		conf     core.SaccoConfig
		appName  string
		NowFunc  func() time.Time // mockable
	}
)

var (
	MemberOrderingFields = []string{"member_no", "name", "joined_at"}
	LoanOrderingFields   = []string{"applied_at", "principal", "due_date", "status"}
)

func NewService(
	repo Repository,
	tx core.Transactor,
	events core.EventPublisher,
	mailSvc core.EmailService,
	logger core.Logger,
	validate *validator.Validate,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(tx, "tx"),
		vala.IsNotNil(events, "events"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		tx:       tx,
		events:   events,
		mail:     mailSvc,
		log:      logger,
		validate: validate,
		conf:     conf.Sacco,
		appName:  conf.AppName,
		NowFunc:  core.Now,
	}
}

// Members

func (svc *Service) Register(ctx context.Context, nm NewMember) (Member, error) {
	nm.clean()
	if err := svc.validate.Struct(nm); err != nil {
		return Member{}, err
	}

	var m Member
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		seq, err := svc.repo.NextMemberSeq(ctx)
		if err != nil {
			return errors.Wrap(err, "getting member number")
		}
		m, err = svc.repo.CreateMember(ctx, Member{
			ID:       uuid.NewString(),
			UserID:   nm.UserID,
			MemberNo: formatMemberNo(seq),
			Name:     nm.Name,
			Email:    nm.Email,
			Phone:    nm.Phone,
			Status:   MemberActive,
			JoinedAt: svc.NowFunc(),
		})
		return errors.Wrap(err, "creating member")
	})
	if err != nil {
		return Member{}, err
	}

	svc.events.Publish(ctx, core.NewEvent(EventMemberRegistered, m.ID, m))
	svc.notify(m, "Welcome to the SACCO",
		fmt.Sprintf("Hello %s,", m.Name),
		fmt.Sprintf("Your membership number is %s.", m.MemberNo),
	)
	return m, nil
}

func (svc *Service) GetMember(ctx context.Context, id string) (Member, error) {
	return svc.repo.GetMember(ctx, id)
}

func (svc *Service) ListMembers(ctx context.Context, filter MemberFilter, page core.Page, ordering ...core.DBOrdering) ([]Member, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, MemberOrderingFields...)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "member_no", Ascending: true}}
	}
	return svc.repo.QueryMembers(ctx, filter, ordering, page)
}

// SetStatus suspends, re-activates or exits a member. Exiting is final and requires no active loan.
func (svc *Service) SetStatus(ctx context.Context, id string, status MemberStatus) (Member, error) {
	switch status {
	case MemberActive, MemberSuspended, MemberExited:
	default:
		return Member{}, core.NewFieldError("status", errors.Errorf("invalid status %q", status))
	}

	var (
		m       Member
		changed bool
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if m, err = svc.repo.LockMember(ctx, id); err != nil {
			return err
		}
		if m.Status == status {
			return nil
		}
		if m.Status == MemberExited {
			return ErrMemberExited
		}
		if status == MemberExited {
			n, err := svc.repo.CountLoans(ctx, m.ID, ActiveLoanStatuses...)
			if err != nil {
				return errors.Wrap(err, "counting loans")
			}
			if n > 0 {
				return ErrOutstandingLoan
			}
			m.ExitedAt = svc.NowFunc()
		}
		m.Status = status
		changed = true
		m, err = svc.repo.UpdateMember(ctx, m)
		return errors.Wrap(err, "updating member")
	})
	if err != nil {
		return Member{}, err
	}
	if changed {
		svc.events.Publish(ctx, core.NewEvent(EventMemberStatus, m.ID, m))
	}
	return m, nil
}

// Savings

func (svc *Service) Deposit(ctx context.Context, memberID string, amount int64, reference, staffID string) (SavingsTransaction, error) {
	return svc.postSavingsOp(ctx, memberID, SavingsDeposit, amount, reference, staffID)
}

// Withdraw debits savings, leaving at least sacco.minSavingsBalance.
func (svc *Service) Withdraw(ctx context.Context, memberID string, amount int64, reference, staffID string) (SavingsTransaction, error) {
	return svc.postSavingsOp(ctx, memberID, SavingsWithdrawal, amount, reference, staffID)
}

func (svc *Service) postSavingsOp(ctx context.Context, memberID string, kind SavingsKind, amount int64, reference, staffID string) (SavingsTransaction, error) {
	if amount <= 0 {
		return SavingsTransaction{}, core.NewFieldError("amount", ErrInvalidAmount)
	}

	var txn SavingsTransaction
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := svc.repo.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if !m.IsActive() {
			return ErrMemberNotActive
		}
		if kind == SavingsWithdrawal {
			acc, err := svc.repo.LockSavings(ctx, m.ID)
			if err != nil {
				return errors.Wrap(err, "locking savings")
			}
			if acc.Balance-amount < svc.conf.MinSavingsBalance {
				if acc.Balance < amount {
					return ErrInsufficientSavings
				}
				return ErrMinimumBalance
			}
		}
		txn, err = svc.postSavings(ctx, m.ID, kind, amount, core.CleanString(reference), staffID)
		return err
	})
	if err != nil {
		return SavingsTransaction{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventSavingsPosted, txn.MemberID, txn))
	return txn, nil
}

// postSavings writes a savings transaction; it must run inside a transaction.
func (svc *Service) postSavings(ctx context.Context, memberID string, kind SavingsKind, amount int64, reference, staffID string) (SavingsTransaction, error) {
	acc, err := svc.repo.LockSavings(ctx, memberID)
	if err != nil {
		return SavingsTransaction{}, errors.Wrap(err, "locking savings")
	}
	if kind.credits() {
		if amount > math.MaxInt64-acc.Balance {
			return SavingsTransaction{}, core.NewFieldError("amount", ErrAmountTooLarge)
		}
		acc.Balance += amount
	} else {
		if acc.Balance < amount {
			return SavingsTransaction{}, ErrInsufficientSavings
		}
		acc.Balance -= amount
	}

	now := svc.NowFunc()
	txn, err := svc.repo.CreateSavingsTransaction(ctx, SavingsTransaction{
		ID:           uuid.NewString(),
		MemberID:     memberID,
		Kind:         kind,
		Amount:       amount,
		BalanceAfter: acc.Balance,
		Reference:    reference,
		CreatedBy:    staffID,
		CreatedAt:    now,
	})
	if err != nil {
		return SavingsTransaction{}, errors.Wrap(err, "creating savings transaction")
	}
	acc.UpdatedAt = now
	if err = svc.repo.UpdateSavings(ctx, acc); err != nil {
		return SavingsTransaction{}, errors.Wrap(err, "updating savings")
	}
	return txn, nil
}

func (svc *Service) Statement(ctx context.Context, memberID string, page core.Page) (Statement, error) {
	page.Clean()
	m, err := svc.repo.GetMember(ctx, memberID)
	if err != nil {
		return Statement{}, err
	}
	acc, err := svc.repo.GetSavings(ctx, m.ID)
	if err != nil {
		return Statement{}, errors.Wrap(err, "getting savings")
	}
	txns, err := svc.repo.QuerySavingsTransactions(ctx, m.ID, page)
	if err != nil {
		return Statement{}, errors.Wrap(err, "querying savings transactions")
	}
	return Statement{Member: m, Balance: acc.Balance, Transactions: txns}, nil
}

// Shares

func (svc *Service) GetShares(ctx context.Context, memberID string) (ShareAccount, error) {
	if _, err := svc.repo.GetMember(ctx, memberID); err != nil {
		return ShareAccount{}, err
	}
	return svc.repo.GetShares(ctx, memberID)
}

func (svc *Service) ShareHistory(ctx context.Context, memberID string, page core.Page) ([]ShareTransaction, error) {
	page.Clean()
	return svc.repo.QueryShareTransactions(ctx, memberID, page)
}

// BuyShares pays `count` shares at sacco.sharePrice from the member's savings.
func (svc *Service) BuyShares(ctx context.Context, memberID string, count int64, staffID string) (ShareTransaction, error) {
	if count <= 0 {
		return ShareTransaction{}, core.NewFieldError("shares", errors.New("shares must be greater than 0"))
	}
	if svc.conf.SharePrice > 0 && count > math.MaxInt64/svc.conf.SharePrice {
		return ShareTransaction{}, core.NewFieldError("shares", ErrTooManyShares)
	}
	cost := count * svc.conf.SharePrice

	var txn ShareTransaction
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		m, err := svc.repo.LockMember(ctx, memberID)
		if err != nil {
			return err
		}
		if !m.IsActive() {
			return ErrMemberNotActive
		}

		shareTxnID := uuid.NewString()
		if _, err = svc.postSavings(ctx, m.ID, SavingsSharePurchase, cost, shareTxnID, staffID); err != nil {
			return err
		}
		acc, err := svc.repo.LockShares(ctx, m.ID)
		if err != nil {
			return errors.Wrap(err, "locking shares")
		}
		acc.Shares += count
		acc.UpdatedAt = svc.NowFunc()
		if err = svc.repo.UpdateShares(ctx, acc); err != nil {
			return errors.Wrap(err, "updating shares")
		}
		txn, err = svc.repo.CreateShareTransaction(ctx, ShareTransaction{
			ID:        shareTxnID,
			MemberID:  m.ID,
			Kind:      SharePurchase,
			Shares:    count,
			UnitPrice: svc.conf.SharePrice,
			CreatedAt: acc.UpdatedAt,
		})
		return errors.Wrap(err, "creating share transaction")
	})
	if err != nil {
		return ShareTransaction{}, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventSharesPurchased, txn.MemberID, txn))
	return txn, nil
}

// TransferShares moves `count` shares between two active members.
func (svc *Service) TransferShares(ctx context.Context, fromID, toID string, count int64) ([]ShareTransaction, error) {
	if count <= 0 {
		return nil, core.NewFieldError("shares", errors.New("shares must be greater than 0"))
	}
	if fromID == toID {
		return nil, ErrSameMember
	}

	var txns []ShareTransaction
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		// lock in a stable order
		first, second := fromID, toID
		if second < first {
			first, second = second, first
		}
		for _, id := range []string{first, second} {
			m, err := svc.repo.LockMember(ctx, id)
			if err != nil {
				return err
			}
			if !m.IsActive() {
				return errors.Wrap(ErrMemberNotActive, m.MemberNo)
			}
		}
		accs := make(map[string]ShareAccount, 2)
		for _, id := range []string{first, second} {
			acc, err := svc.repo.LockShares(ctx, id)
			if err != nil {
				return errors.Wrap(err, "locking shares")
			}
			accs[id] = acc
		}

		from, to := accs[fromID], accs[toID]
		if from.Shares < count {
			return ErrInsufficientShares
		}
		now := svc.NowFunc()
		from.Shares -= count
		to.Shares += count
		from.UpdatedAt, to.UpdatedAt = now, now
		for _, acc := range []ShareAccount{from, to} {
			if err := svc.repo.UpdateShares(ctx, acc); err != nil {
				return errors.Wrap(err, "updating shares")
			}
		}

		for _, st := range []ShareTransaction{
			{MemberID: fromID, Kind: ShareTransferOut, Reference: toID},
			{MemberID: toID, Kind: ShareTransferIn, Reference: fromID},
		} {
			st.ID = uuid.NewString()
			st.Shares = count
			st.UnitPrice = svc.conf.SharePrice
			st.CreatedAt = now
			created, err := svc.repo.CreateShareTransaction(ctx, st)
			if err != nil {
				return errors.Wrap(err, "creating share transaction")
			}
			txns = append(txns, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.events.Publish(ctx, core.NewEvent(EventSharesTransfered, fromID, txns))
	return txns, nil
}

// Dividends

// DeclareDividend apportions `pool` between shareholders and credits the payouts to their savings.
// A period can only be declared once.
func (svc *Service) DeclareDividend(ctx context.Context, dd DividendDeclaration, staffID string) (Dividend, []Payout, error) {
	dd.Period = core.CleanString(dd.Period)
	if err := svc.validate.Struct(dd); err != nil {
		return Dividend{}, nil, err
	}

	var (
		div      Dividend
		payouts  []Payout
		holdings []Holding
	)
	err := svc.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetDividendByPeriod(ctx, dd.Period); err == nil {
			return ErrDividendDeclared
		} else if !core.IsNotFound(err) {
			return errors.Wrap(err, "getting dividend")
		}

		var err error
		if holdings, err = svc.repo.LockHoldings(ctx); err != nil {
			return errors.Wrap(err, "locking holdings")
		}
		var totalShares int64
		for _, h := range holdings {
			totalShares += h.Shares
		}
		if totalShares == 0 {
			return ErrNoShareholders
		}

		div, err = svc.repo.CreateDividend(ctx, Dividend{
			ID:           uuid.NewString(),
			Period:       dd.Period,
			Pool:         dd.Pool,
			TotalShares:  totalShares,
			RatePerShare: ratePerShare(dd.Pool, totalShares),
			DeclaredBy:   staffID,
			DeclaredAt:   svc.NowFunc(),
		})
		if err != nil {
			return errors.Wrap(err, "creating dividend")
		}

		payouts = Apportion(dd.Pool, holdings)
		for i := range payouts {
			payouts[i].ID = uuid.NewString()
			payouts[i].DividendID = div.ID
			if payouts[i].Amount == 0 {
				continue
			}
			if _, err = svc.postSavings(ctx, payouts[i].MemberID, SavingsDividend, payouts[i].Amount, div.ID, staffID); err != nil {
				return err
			}
		}
		return errors.Wrap(svc.repo.CreatePayouts(ctx, payouts), "creating payouts")
	})
	if err != nil {
		return Dividend{}, nil, err
	}

	svc.events.Publish(ctx, core.NewEvent(EventDividendDeclared, div.ID, div))
	byMember := make(map[string]Holding, len(holdings))
	for _, h := range holdings {
		byMember[h.MemberID] = h
	}
	for _, p := range payouts {
		h := byMember[p.MemberID]
		svc.notify(Member{Name: h.Name, Email: h.Email}, fmt.Sprintf("Dividend for %s", div.Period),
			fmt.Sprintf("Hello %s,", h.Name),
			fmt.Sprintf("A dividend of %s for your %d shares was credited to your savings.", core.FormatAmount(p.Amount), p.Shares),
		)
	}
	return div, payouts, nil
}

func (svc *Service) GetDividend(ctx context.Context, id string) (Dividend, []Payout, error) {
	div, err := svc.repo.GetDividend(ctx, id)
	if err != nil {
		return Dividend{}, nil, err
	}
	payouts, err := svc.repo.QueryPayouts(ctx, div.ID)
	if err != nil {
		return Dividend{}, nil, errors.Wrap(err, "querying payouts")
	}
	return div, payouts, nil
}

func (svc *Service) ListDividends(ctx context.Context) ([]Dividend, error) {
	return svc.repo.QueryDividends(ctx)
}

// notify emails a member, when they have an email address.
func (svc *Service) notify(m Member, subject string, lines ...string) {
	msg := core.NewEmailMessage(m.Name, m.Email, svc.appName+" - "+subject, lines...)
	if msg.HasRecipients() {
		svc.mail.SendMessages(msg)
	}
}
