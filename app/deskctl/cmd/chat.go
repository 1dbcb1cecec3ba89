package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yoockh/helpdesk/internal/desk"
	"github.com/yoockh/helpdesk/internal/models"
)

var (
	searchTerm      string
	resolveNotes    string
	feedbackRating  int
	feedbackComment string
)

func printConversations(w io.Writer, snap desk.Snapshot, convs []models.Conversation) {
	selected := snap.CurrentConversationID
	if snap.Role == models.RoleAdmin {
		selected = snap.AdminSelectionID
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTOPIC\tUSER\tPRIORITY\tSTATUS\tMESSAGES")
	for _, c := range convs {
		mark := ""
		if c.ID == selected {
			mark = "*"
		}
		status := "open"
		if c.IsResolved {
			status = "resolved"
		}
		if snap.IsBusy(c.ID) {
			status += " (busy)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n", mark, c.ID, c.Topic, c.User, c.Priority, status, len(c.Messages))
	}
	tw.Flush()
}

func printTranscript(w io.Writer, c models.Conversation) {
	fmt.Fprintf(w, "%s  %s  [%s/%s]\n", c.ID, c.Topic, c.Category, c.Priority)
	for _, m := range c.Messages {
		line := fmt.Sprintf("%-9s %s", m.Sender+":", m.Text)
		if m.IsError {
			line += "  (error)"
		}
		if m.Confidence != nil {
			line += fmt.Sprintf("  (confidence %.2f)", *m.Confidence)
		}
		fmt.Fprintln(w, line)
		for _, s := range m.Sources {
			fmt.Fprintf(w, "          - %s (%.2f)\n", s.Title, s.Score)
		}
	}
	if c.IsResolved {
		fmt.Fprintf(w, "resolved: %s\n", c.ResolutionNotes)
	}
}

func findConversation(snap desk.Snapshot, id string) (models.Conversation, error) {
	for _, c := range snap.Conversations {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Conversation{}, fmt.Errorf("conversation %s not found", id)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations visible in the current view",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		snap, err := rt.desk.Snapshot(ctx)
		if err != nil {
			return err
		}
		printConversations(os.Stdout, snap, desk.Filter(snap.Conversations, searchTerm))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		snap, err := rt.desk.Snapshot(ctx)
		if err != nil {
			return err
		}
		c, err := findConversation(snap, args[0])
		if err != nil {
			return err
		}
		printTranscript(os.Stdout, c)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new [topic]",
	Short: "Start a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		a, err := rt.desk.CreateConversation(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if err := settle(ctx, a); err != nil {
			return err
		}
		fmt.Println(a.Target())
		return nil
	},
}

// sendAndPrint sends text and prints the reply that was appended for it.
func sendAndPrint(ctx context.Context, w io.Writer, conversationID, text string) error {
	a, err := rt.desk.SendMessage(ctx, conversationID, text)
	if err != nil {
		return err
	}
	settleErr := settle(ctx, a)
	snap, err := rt.desk.Snapshot(ctx)
	if err != nil {
		return err
	}
	if c, err := findConversation(snap, conversationID); err == nil && len(c.Messages) > 0 {
		last := c.Messages[len(c.Messages)-1]
		fmt.Fprintln(w, last.Text)
		if last.Confidence != nil {
			fmt.Fprintf(w, "(confidence %.2f)\n", *last.Confidence)
		}
	}
	return settleErr
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation-id> <message...>",
	Short: "Send a message and print the assistant's reply",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		return sendAndPrint(ctx, os.Stdout, args[0], strings.Join(args[1:], " "))
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <conversation-id>",
	Short: "Mark a conversation as resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		a, err := rt.desk.Resolve(ctx, args[0], resolveNotes)
		if err != nil {
			return err
		}
		if err := settle(ctx, a); err != nil {
			return err
		}
		fmt.Printf("%s resolved\n", args[0])
		return nil
	},
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback <conversation-id>",
	Short: "Rate a resolved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		a, err := rt.desk.SubmitFeedback(ctx, args[0], feedbackRating, feedbackComment)
		if err != nil {
			return err
		}
		return settle(ctx, a)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conversation statistics for the current view",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if _, err := restore(ctx); err != nil {
			return err
		}
		snap, err := rt.desk.Snapshot(ctx)
		if err != nil {
			return err
		}
		printStats(os.Stdout, snap.Stats)
		return nil
	},
}

func printStats(w io.Writer, st models.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "open\t%d\n", st.Open)
	fmt.Fprintf(tw, "resolved\t%d\n", st.Resolved)
	fmt.Fprintf(tw, "total\t%d\n", st.Total)
	fmt.Fprintf(tw, "ai assisted\t%d\n", st.AIAssisted)
	fmt.Fprintf(tw, "ai cost\t$%.3f\n", st.AICost)
	if st.TotalUsers > 0 || st.TotalDocuments > 0 {
		fmt.Fprintf(tw, "users\t%d\n", st.TotalUsers)
		fmt.Fprintf(tw, "documents\t%d\n", st.TotalDocuments)
	}
	tw.Flush()
}

func init() {
	listCmd.Flags().StringVarP(&searchTerm, "search", "s", "", "filter by id, topic, user or category")
	resolveCmd.Flags().StringVarP(&resolveNotes, "notes", "n", "", "resolution notes")
	feedbackCmd.Flags().IntVarP(&feedbackRating, "rating", "r", 5, "rating from 1 to 5")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "optional comment")
	rootCmd.AddCommand(listCmd, showCmd, newCmd, sendCmd, resolveCmd, feedbackCmd, statsCmd)
}
