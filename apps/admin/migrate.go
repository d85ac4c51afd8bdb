package main

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sautiplus/backoffice/storage/database"
)

var migrateFunc = database.Migrate // mockable

var errNoSQLDatabase = errors.New("migrations need the postgres engine")

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command",
		Long: `Run a goose migration command against the embedded migrations.

Commands: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, reset, status, version`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cli.db, args[0], args[1:]...)
		},
	}
}

func (cli *commandLine) migrate(db *sqlx.DB, command string, args ...string) error {
	if cli.conf.Database.Engine == "inmem" {
		return errNoSQLDatabase
	}
	return migrateFunc(db, command, args...)
}
