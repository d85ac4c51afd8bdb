// Package testutil wires the services on top of the in-memory storage for tests.
package testutil

import (
	"context"
	"io"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/award"
	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/credit"
	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
	"github.com/sautiplus/backoffice/core/ticket"
	cachesvc "github.com/sautiplus/backoffice/services/cache"
	emailsvc "github.com/sautiplus/backoffice/services/email"
	eventsvc "github.com/sautiplus/backoffice/services/events"
	logsvc "github.com/sautiplus/backoffice/services/logger"
	inmemdb "github.com/sautiplus/backoffice/storage/database/inmem"
)

// Env holds every service, backed by a fresh in-memory database.
type Env struct {
	Conf       *core.Config
	Logger     *logsvc.RollbarLogger
	Validate   *validator.Validate
	Translator ut.Translator
	DB         *inmemdb.DB
	Events     *eventsvc.Recorder
	Mail       *emailsvc.ConsoleServiceMock
	Balances   *cachesvc.MemoryBalanceCache
	Tally      *cachesvc.MemoryTallyCache

	StaffRepo  staff.Repository
	CreditRepo credit.Repository
	SaccoRepo  sacco.Repository
	TicketRepo ticket.Repository
	ClaimRepo  claim.Repository
	AwardRepo  award.Repository

	StaffSvc  *staff.Service
	CreditSvc *credit.Service
	SaccoSvc  *sacco.Service
	TicketSvc *ticket.Service
	ClaimSvc  *claim.Service
	AwardSvc  *award.Service
}

func NewLogger(conf *core.Config) *logsvc.RollbarLogger {
	std := logsvc.NewStdLogger(conf)
	std.SetOutput(io.Discard)
	return logsvc.NewRollbarLogger(std, conf).With("TEST")
}

// NewValidator returns a validator with every custom validation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	staff.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)
	return validate, translator
}

// NewEnv returns an Env whose services share `now` as their clock when given.
func NewEnv(t *testing.T, now ...time.Time) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	env := &Env{
		Conf:     conf,
		Logger:   NewLogger(conf),
		DB:       inmemdb.Open(),
		Events:   eventsvc.NewRecorder(),
		Mail:     emailsvc.NewConsoleServiceMock(conf),
		Balances: cachesvc.NewMemoryBalanceCache(),
		Tally:    cachesvc.NewMemoryTallyCache(),
	}
	env.Validate, env.Translator = NewValidator()

	env.StaffRepo = inmemdb.NewStaffRepository(env.DB)
	env.CreditRepo = inmemdb.NewCreditRepository(env.DB)
	env.SaccoRepo = inmemdb.NewSaccoRepository(env.DB)
	env.TicketRepo = inmemdb.NewTicketRepository(env.DB)
	env.ClaimRepo = inmemdb.NewClaimRepository(env.DB)
	env.AwardRepo = inmemdb.NewAwardRepository(env.DB)

	env.StaffSvc = staff.NewService(env.StaffRepo, env.Mail, env.Validate, conf)
	env.CreditSvc = credit.NewService(env.CreditRepo, env.DB, env.Balances, env.Events, env.Logger, env.Validate, conf)
	env.SaccoSvc = sacco.NewService(env.SaccoRepo, env.DB, env.Events, env.Mail, env.Logger, env.Validate, conf)
	env.TicketSvc = ticket.NewService(env.TicketRepo, env.DB, env.Events, env.Logger, env.Validate)
	env.ClaimSvc = claim.NewService(env.ClaimRepo, env.DB, env.Events, env.Mail, env.Validate, conf)
	env.AwardSvc = award.NewService(env.AwardRepo, env.Tally, env.Events, env.Logger, env.Validate)

	if len(now) > 0 {
		env.SetNow(now[0])
	}
	return env
}

// SetNow freezes the clock of every service.
func (env *Env) SetNow(now time.Time) {
	nowFunc := func() time.Time { return now }
	env.StaffSvc.NowFunc = nowFunc
	env.CreditSvc.NowFunc = nowFunc
	env.SaccoSvc.NowFunc = nowFunc
	env.TicketSvc.NowFunc = nowFunc
	env.ClaimSvc.NowFunc = nowFunc
	env.AwardSvc.NowFunc = nowFunc
}

// CreateStaff stores a staff member straight in the repository, skipping the password policy.
func CreateStaff(t *testing.T, repo staff.Repository, name, uname, email, pwd string, roles []string, isActive bool) staff.Staff {
	t.Helper()

	now := core.Now()
	s := staff.Staff{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pwd != "" {
		if err := s.SetPassword(pwd); err != nil {
			t.Fatalf("CreateStaff() failed: %v", err)
		}
	}
	s, err := repo.CreateStaff(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateStaff() failed: %v", err)
	}
	return s
}

// RegisterMember registers an active SACCO member holding `savings` on deposit.
func RegisterMember(t *testing.T, svc *sacco.Service, name string, savings int64) sacco.Member {
	t.Helper()

	ctx := context.Background()
	m, err := svc.Register(ctx, sacco.NewMember{Name: name})
	if err != nil {
		t.Fatalf("RegisterMember() failed: %v", err)
	}
	if savings > 0 {
		if _, err = svc.Deposit(ctx, m.ID, savings, "opening", ""); err != nil {
			t.Fatalf("RegisterMember() deposit failed: %v", err)
		}
	}
	return m
}
