package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		reader := bufio.NewReader(os.Stdin)
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			fmt.Print("Email: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}
		password, err := readPassword(reader)
		if err != nil {
			return err
		}

		s, err := rt.desk.Login(cmd.Context(), email, password)
		printNotices()
		if err != nil && !s.Authenticated {
			return err
		}
		fmt.Printf("Signed in as %s (%s)\n", s.User.Name, s.User.Role)
		return err
	},
}

// readPassword reads without echo, falling back to a plain line when stdin
// is not a terminal.
func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, err := rt.desk.Restore(cmd.Context()); err != nil {
			rt.log.WithError(err).Debug("restore before logout failed")
		}
		if err := rt.desk.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s := rt.desk.Session()
		if !s.Authenticated {
			var err error
			if s, err = rt.desk.Restore(cmd.Context()); err != nil && !s.Authenticated {
				return err
			}
		}
		if !s.Authenticated {
			fmt.Println("Not signed in")
			return nil
		}
		fmt.Printf("%s <%s> role=%s id=%s\n", s.User.Name, s.User.Email, s.User.Role, s.User.ID)
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
