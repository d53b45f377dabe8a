package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/primebank/primebank-web/internal/session"
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(cmd, in, "Password: "); err != nil {
					return err
				}
			}
			if email == "" || password == "" {
				return fmt.Errorf("email and password are required")
			}

			coord, _, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			user, err := coord.Login(cmd.Context(), email, password)
			if errors.Is(err, session.ErrInvalidCredentials) {
				return fmt.Errorf("invalid email or password")
			}
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, "Signed in as ")
			printUser(out, user)
			printExpiry(out, coord.Snapshot())
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted if omitted)")
	return cmd
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}
