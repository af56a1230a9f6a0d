package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cateringhub/backoffice/internal/common"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword prompts on the terminal without echo. Replaced in tests.
var readPassword = func(out io.Writer) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal, use --password-stdin")
	}
	fmt.Fprint(out, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	return pw, err
}

func passwordFrom(streams IO, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(streams.In).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	pw, err := readPassword(streams.ErrOut)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

func createUserCommand(streams IO) *cobra.Command {
	var (
		email     string
		roles     []string
		pwByStdin bool
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a back-office account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := passwordFrom(streams, pwByStdin)
			if err != nil {
				return err
			}

			_, _, b, err := session(cmd, streams.ErrOut, "text")
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.Migrate(cmd.Context()); err != nil {
				return err
			}
			u, err := b.CreateUser(cmd.Context(), email, password, roles)
			if err != nil {
				return err
			}
			fmt.Fprintf(streams.Out, "created user %s (%s) roles=%s\n", u.Email, u.ID, strings.Join(u.Roles(), ","))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "additional role, repeatable (ROLE_USER is implied)")
	cmd.Flags().BoolVar(&pwByStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func disableUserCommand(streams IO) *cobra.Command {
	var (
		email  string
		enable bool
	)

	cmd := &cobra.Command{
		Use:   "disable-user",
		Short: "Disable an account and revoke its refresh tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _, b, err := session(cmd, streams.ErrOut, "text")
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.SetUserDisabled(cmd.Context(), email, !enable); err != nil {
				return err
			}
			state := "disabled"
			if enable {
				state = "enabled"
			}
			fmt.Fprintf(streams.Out, "user %s %s\n", email, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&enable, "enable", false, "re-enable the account instead")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
