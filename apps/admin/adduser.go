package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sautiplus/backoffice/core"
	"github.com/sautiplus/backoffice/core/staff"
)

func (cli *commandLine) addUserCmd() *cobra.Command {
	var name, uname, email string
	var roles []string

	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a staff member, or reactivate an existing one with a new password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd, "Enter password:")
			if err != nil {
				return err
			}
			s, err := cli.addUser(cmd.Context(), name, uname, email, pwd, roles)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "staff %s (%s) saved\n", s.Username, s.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&uname, "username", "", "username (derived from the email when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringSliceVar(&roles, "role", []string{staff.RoleSuper}, "granted roles")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// addUser updates or creates a staff.Staff
func (cli *commandLine) addUser(ctx context.Context, name, uname, email, pwd string, roles []string) (staff.Staff, error) {
	email = core.CleanString(email, true /* lower */)

	s, err := cli.staffSvc.GetByUsernameOrEmail(ctx, email)
	if err != nil {
		if !core.IsNotFound(err) {
			return staff.Staff{}, err
		}
		if name == "" {
			name = email
		}
		return cli.staffSvc.Create(ctx, staff.NewStaff{
			Name:            name,
			Username:        uname,
			Email:           email,
			Password:        pwd,
			PasswordConfirm: pwd,
			Roles:           roles,
		})
	}

	s.Roles = roles
	s.IsActive = true
	return cli.staffSvc.ResetPassword(ctx, s, pwd)
}
