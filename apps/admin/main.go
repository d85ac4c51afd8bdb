package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/claim"
	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
	emailsvc "github.com/sautiplus/backoffice/services/email"
	eventsvc "github.com/sautiplus/backoffice/services/events"
	logsvc "github.com/sautiplus/backoffice/services/logger"
	"github.com/sautiplus/backoffice/storage/database"
	inmemdb "github.com/sautiplus/backoffice/storage/database/inmem"
	sqlxrepos "github.com/sautiplus/backoffice/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	std := logsvc.NewStdLogger(conf)
	logger := logsvc.NewRollbarLogger(std, conf).With("ADMIN")
	logger.Enable(!conf.Debug)

	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	staff.InitValidators(validate, translator)
	claim.InitValidators(validate, translator)

	events, closeEvents, err := eventsvc.New(logger, conf)
	errAndDie(logger, err)
	defer func() { _ = closeEvents() }()
	mailSvc := emailsvc.New(logger, std, conf)

	cli := commandLine{conf: conf}
	if conf.Database.Engine == "inmem" {
		db := inmemdb.Open()
		cli.staffSvc = staff.NewService(inmemdb.NewStaffRepository(db), mailSvc, validate, conf)
		cli.saccoSvc = sacco.NewService(inmemdb.NewSaccoRepository(db), db, events, mailSvc, logger, validate, conf)
	} else {
		var db *sqlx.DB
		db, err = database.Open(conf)
		errAndDie(logger, err)
		defer func() { _ = db.Close() }()

		cli.db = db
		cli.staffSvc = staff.NewService(sqlxrepos.NewStaffRepository(db), mailSvc, validate, conf)
		cli.saccoSvc = sacco.NewService(sqlxrepos.NewSaccoRepository(db), sqlxrepos.NewTransactor(db), events, mailSvc, logger, validate, conf)
	}

	if err := cli.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		_ = closeEvents()
		os.Exit(1)
	}
}

func errAndDie(logger core.Logger, err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
