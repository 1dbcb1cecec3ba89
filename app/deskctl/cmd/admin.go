package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yoockh/helpdesk/internal/models"
)

var userInput struct {
	name     string
	email    string
	role     string
	password string
}

func adminView(cmd *cobra.Command) error {
	viewFlag = string(models.RoleAdmin)
	_, err := restore(cmd.Context())
	return err
}

var serverStatsCmd = &cobra.Command{
	Use:   "server-stats",
	Short: "Show the server-wide dashboard counters (admin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		st, err := rt.backend.Admin.GetStats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(os.Stdout, *st)
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts (admin)",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		snap, err := rt.desk.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tROLE\tLAST SIGN-IN")
		for _, u := range snap.Users {
			last := "-"
			if !u.LastSignInAt.IsZero() {
				last = u.LastSignInAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, u.Role, last)
		}
		return tw.Flush()
	},
}

func input() models.UserInput {
	return models.UserInput{
		Name:     userInput.name,
		Email:    userInput.email,
		Role:     models.UserRole(userInput.role),
		Password: userInput.password,
	}
}

var usersAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		a, err := rt.desk.AddUser(cmd.Context(), input())
		if err != nil {
			return err
		}
		if err := settle(cmd.Context(), a); err != nil {
			return err
		}
		fmt.Println(a.Target())
		return nil
	},
}

var usersUpdateCmd = &cobra.Command{
	Use:   "update <user-id>",
	Short: "Update a user's name, email, role or password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		a, err := rt.desk.UpdateUser(cmd.Context(), args[0], input())
		if err != nil {
			return err
		}
		return settle(cmd.Context(), a)
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		a, err := rt.desk.DeleteUser(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return settle(cmd.Context(), a)
	},
}

func init() {
	for _, c := range []*cobra.Command{usersAddCmd, usersUpdateCmd} {
		c.Flags().StringVar(&userInput.name, "name", "", "display name")
		c.Flags().StringVar(&userInput.email, "email", "", "email address")
		c.Flags().StringVar(&userInput.role, "role", "", "user or admin")
		c.Flags().StringVar(&userInput.password, "password", "", "password")
	}
	usersAddCmd.MarkFlagRequired("name")
	usersAddCmd.MarkFlagRequired("email")
	usersAddCmd.MarkFlagRequired("password")

	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersUpdateCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd, serverStatsCmd)
}
