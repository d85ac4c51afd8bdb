package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"

	echoapi "github.com/sautiplus/backoffice/apps/api/echo"
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
	"github.com/sautiplus/backoffice/storage/database"
	inmemdb "github.com/sautiplus/backoffice/storage/database/inmem"
	sqlxrepos "github.com/sautiplus/backoffice/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage is every repository, backed by the configured database engine.
	Storage struct {
		dig.Out
		Pinger     core.Pinger
		Transactor core.Transactor
		Closer     Closer `name:"dbCloser"`

		StaffRepo  staff.Repository
		CreditRepo credit.Repository
		SaccoRepo  sacco.Repository
		TicketRepo ticket.Repository
		ClaimRepo  claim.Repository
		AwardRepo  award.Repository
	}

	CloserParam struct {
		dig.In
		DB     Closer `name:"dbCloser"`
		Events Closer `name:"eventsCloser"`
	}

	Caches struct {
		dig.Out
		Balances credit.BalanceCache
		Tally    award.TallyCache
	}

	EventsOut struct {
		dig.Out
		Publisher core.EventPublisher
		Closer    Closer `name:"eventsCloser"`
	}

	Closer func() error

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Translator ut.Translator
		DB         core.Pinger

		StaffSvc  *staff.Service
		CreditSvc *credit.Service
		SaccoSvc  *sacco.Service
		TicketSvc *ticket.Service
		ClaimSvc  *claim.Service
		AwardSvc  *award.Service
	}
)

func newLogger(std *logrus.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(std, conf).With("API")
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(std *logrus.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(std, conf).With("DB")
	logger.Enable(!conf.Debug)
	return logger
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := core.NewValidator(translator)
	staff.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)
	return validate
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == "inmem" {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on exit")
		db := inmemdb.Open()
		return Storage{
			Pinger:     db,
			Transactor: db,
			Closer:     func() error { return nil },
			StaffRepo:  inmemdb.NewStaffRepository(db),
			CreditRepo: inmemdb.NewCreditRepository(db),
			SaccoRepo:  inmemdb.NewSaccoRepository(db),
			TicketRepo: inmemdb.NewTicketRepository(db),
			ClaimRepo:  inmemdb.NewClaimRepository(db),
			AwardRepo:  inmemdb.NewAwardRepository(db),
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	if err = database.Migrate(db, "up"); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		Pinger:     db,
		Transactor: sqlxrepos.NewTransactor(db),
		Closer:     db.Close,
		StaffRepo:  sqlxrepos.NewStaffRepository(db),
		CreditRepo: sqlxrepos.NewCreditRepository(db),
		SaccoRepo:  sqlxrepos.NewSaccoRepository(db),
		TicketRepo: sqlxrepos.NewTicketRepository(db),
		ClaimRepo:  sqlxrepos.NewClaimRepository(db),
		AwardRepo:  sqlxrepos.NewAwardRepository(db),
	}
}

func newCaches(conf *core.Config, logger core.Logger) Caches {
	if conf.Redis.URL == "" {
		return Caches{Balances: cachesvc.NewMemoryBalanceCache(), Tally: cachesvc.NewMemoryTallyCache()}
	}
	client, err := cachesvc.Connect(context.Background(), conf.Redis.URL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
	}
	return Caches{Balances: cachesvc.NewRedisBalanceCache(client), Tally: cachesvc.NewRedisTallyCache(client)}
}

func newEvents(conf *core.Config, logger core.Logger) (EventsOut, error) {
	pub, closeFn, err := eventsvc.New(logger, conf)
	if err != nil {
		return EventsOut{}, errors.Wrap(err, "setting up event publisher")
	}
	return EventsOut{Publisher: pub, Closer: closeFn}, nil
}

func newEmailService(conf *core.Config, logger core.Logger, std *logrus.Logger) core.EmailService {
	return emailsvc.New(logger, std, conf)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Translator: p.Translator,
		DB:         p.DB,
		StaffSvc:   p.StaffSvc,
		CreditSvc:  p.CreditSvc,
		SaccoSvc:   p.SaccoSvc,
		TicketSvc:  p.TicketSvc,
		ClaimSvc:   p.ClaimSvc,
		AwardSvc:   p.AwardSvc,
	})
}

// New returns a new dependency injection dig.Container
func New(visualize bool) *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewStdLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newStorage))
	must(c.Provide(newCaches))
	must(c.Provide(newEvents))
	must(c.Provide(newEmailService))
	must(c.Provide(staff.NewService))
	must(c.Provide(credit.NewService))
	must(c.Provide(sacco.NewService))
	must(c.Provide(ticket.NewService))
	must(c.Provide(claim.NewService))
	must(c.Provide(award.NewService))
	must(c.Provide(newServer))

	if visualize {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
