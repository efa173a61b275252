package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type accountView struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

func newSignupCommand(opts *RootOptions) *cobra.Command {
	var name, email, dob, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			u, err := e.auth.Signup(cmd.Context(), name, email, dob, password)
			if err != nil {
				return refuse("signup", err)
			}
			v := accountView{ID: u.ID, FullName: u.FullName, Email: u.Email}
			return e.out.Print(v, func(w io.Writer) {
				fmt.Fprintf(w, "Account created for %s.\n", v.Email)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&dob, "dob", "", "date of birth (YYYY-MM-DD)")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(opts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check credentials against the local account store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			u, err := e.auth.Login(cmd.Context(), email, password)
			if err != nil {
				return refuse("login", err)
			}
			v := accountView{ID: u.ID, FullName: u.FullName, Email: u.Email}
			return e.out.Print(v, func(w io.Writer) {
				fmt.Fprintf(w, "Welcome, %s.\n", v.FullName)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newResetPasswordCommand(opts *RootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Replace the password of a local account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, opts, false)
			if err != nil {
				return err
			}
			defer e.close(cmd.Context())

			if err := e.auth.ResetPassword(cmd.Context(), email, password); err != nil {
				return refuse("reset password", err)
			}
			return e.out.Print(map[string]string{"email": email}, func(w io.Writer) {
				fmt.Fprintln(w, "Password updated.")
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
