package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/sacco"
)

func (cli *commandLine) loansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loans",
		Short: "SACCO loan maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "mark-overdue",
		Short: "Flag disbursed loans past their due date and grace period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loans, err := cli.saccoSvc.MarkOverdue(cmd.Context(), cli.saccoSvc.NowFunc())
			if err != nil {
				return err
			}
			for _, l := range loans {
				fmt.Fprintf(cmd.OutOrStdout(), "loan %s of member %s is overdue\n", l.ID, l.MemberID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d loan(s) marked overdue\n", len(loans))
			return nil
		},
	})
	return cmd
}

func (cli *commandLine) dividendsCmd() *cobra.Command {
	var (
		by string
		dd sacco.DividendDeclaration
	)

	declare := &cobra.Command{
		Use:   "declare",
		Short: "Declare a dividend and credit the payouts to the members' savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := cli.staffSvc.GetByUsernameOrEmail(ctx, by)
			if err != nil {
				return err
			}
			div, payouts, err := cli.saccoSvc.DeclareDividend(ctx, dd, s.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dividend %s: %s over %d shares\n", div.Period, core.FormatAmount(div.Pool), div.TotalShares)
			for _, p := range payouts {
				fmt.Fprintf(out, "  %s\t%d shares\t%s\n", p.MemberNo, p.Shares, core.FormatAmount(p.Amount))
			}
			return nil
		},
	}
	declare.Flags().StringVar(&dd.Period, "period", "", "dividend period, eg. 2024")
	declare.Flags().Int64Var(&dd.Pool, "pool", 0, "amount to distribute, in minor units")
	declare.Flags().StringVar(&by, "by", "", "username or email of the declaring staff member")
	_ = declare.MarkFlagRequired("period")
	_ = declare.MarkFlagRequired("pool")
	_ = declare.MarkFlagRequired("by")

	cmd := &cobra.Command{
		Use:   "dividends",
		Short: "SACCO dividends",
	}
	cmd.AddCommand(declare)
	return cmd
}
