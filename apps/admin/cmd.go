package main

import (
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/sacco"
	"github.com/sautiplus/backoffice/core/staff"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	conf     *core.Config
	db       *sqlx.DB // nil with the inmem engine
	staffSvc *staff.Service
	saccoSvc *sacco.Service
	out      io.Writer // stdout when nil
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Back-office administration commands",
		Version:       cli.conf.Build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		cli.migrateCmd(),
		cli.addUserCmd(),
		cli.resetPasswordCmd(),
		cli.loansCmd(),
		cli.dividendsCmd(),
	)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	if cli.out != nil {
		root.SetOut(cli.out)
	}
	return root.Execute()
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}
