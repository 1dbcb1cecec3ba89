package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoockh/helpdesk/internal/desk"
	"github.com/yoockh/helpdesk/internal/models"
	"github.com/yoockh/helpdesk/internal/utils"
)

const shellHelp = `Type a message to send it to the current conversation.
Commands:
  /list [search]        list conversations
  /show                 print the current conversation
  /select <id>          select a conversation
  /new [topic]          start a conversation
  /resolve [notes]      resolve the selected conversation
  /feedback <1-5> [txt] rate the selected, resolved conversation
  /switch <user|admin>  change view
  /stats                show statistics
  /reload               fetch conversations again
  /logout               sign out
  /quit                 leave the shell`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive chat session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		in := bufio.NewReader(os.Stdin)

		s, err := rt.desk.Restore(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[error] %v\n", err)
		}
		if !s.Authenticated {
			if s, err = shellLogin(ctx, in); err != nil {
				return err
			}
		}
		if viewFlag != "" {
			if err := rt.desk.SwitchRole(ctx, models.UserRole(viewFlag)); err != nil {
				fmt.Fprintf(os.Stderr, "[error] %v\n", err)
			}
		}

		fmt.Println(shellHelp)
		for {
			snap, err := rt.desk.Snapshot(ctx)
			if err != nil {
				return err
			}
			fmt.Print(prompt(snap))
			line, err := in.ReadString('\n')
			if errors.Is(err, io.EOF) && line == "" {
				fmt.Println()
				return nil
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			quit, err := shellExec(ctx, in, snap, line)
			printNotices()
			if err != nil {
				rt.log.WithError(err).Debug("shell command failed")
				fmt.Fprintf(os.Stderr, "[error] %s\n", utils.MessageOf(err))
			}
			if quit {
				return nil
			}
		}
	},
}

func prompt(snap desk.Snapshot) string {
	if !snap.Session.Authenticated {
		return "(signed out)> "
	}
	sel := snap.CurrentConversationID
	if snap.Role == models.RoleAdmin {
		sel = snap.AdminSelectionID
	}
	if sel == "" {
		sel = "-"
	}
	return fmt.Sprintf("%s@%s [%s]> ", snap.Session.User.Name, snap.Role, sel)
}

func shellLogin(ctx context.Context, in *bufio.Reader) (desk.Session, error) {
	fmt.Print("Email: ")
	email, err := in.ReadString('\n')
	if err != nil {
		return desk.Session{}, fmt.Errorf("read email: %w", err)
	}
	password, err := readPassword(in)
	if err != nil {
		return desk.Session{}, err
	}
	s, err := rt.desk.Login(ctx, strings.TrimSpace(email), password)
	printNotices()
	if !s.Authenticated {
		return s, err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "[error] %v\n", err)
	}
	return s, nil
}

func selected(snap desk.Snapshot) (string, error) {
	id := snap.CurrentConversationID
	if snap.Role == models.RoleAdmin {
		id = snap.AdminSelectionID
	}
	if id == "" {
		return "", errors.New("no conversation selected")
	}
	return id, nil
}

func shellExec(ctx context.Context, in *bufio.Reader, snap desk.Snapshot, line string) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		if snap.Role != models.RoleUser {
			return false, errors.New("switch to the user view to chat")
		}
		id, err := selected(snap)
		if err != nil {
			return false, err
		}
		return false, sendAndPrint(ctx, os.Stdout, id, line)
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Println(shellHelp)
	case "list":
		printConversations(os.Stdout, snap, desk.Filter(snap.Conversations, rest))
	case "show":
		id, err := selected(snap)
		if err != nil {
			return false, err
		}
		c, err := findConversation(snap, id)
		if err != nil {
			return false, err
		}
		printTranscript(os.Stdout, c)
	case "select":
		if snap.Role == models.RoleAdmin {
			return false, rt.desk.SelectForAdmin(ctx, rest)
		}
		return false, rt.desk.Select(ctx, rest)
	case "new":
		a, err := rt.desk.CreateConversation(ctx, rest)
		if err != nil {
			return false, err
		}
		return false, settle(ctx, a)
	case "resolve":
		id, err := selected(snap)
		if err != nil {
			return false, err
		}
		a, err := rt.desk.Resolve(ctx, id, rest)
		if err != nil {
			return false, err
		}
		return false, settle(ctx, a)
	case "feedback":
		id, err := selected(snap)
		if err != nil {
			return false, err
		}
		ratingArg, comment, _ := strings.Cut(rest, " ")
		rating, err := strconv.Atoi(ratingArg)
		if err != nil {
			return false, fmt.Errorf("rating must be a number from 1 to 5")
		}
		a, err := rt.desk.SubmitFeedback(ctx, id, rating, strings.TrimSpace(comment))
		if err != nil {
			return false, err
		}
		return false, settle(ctx, a)
	case "switch":
		return false, rt.desk.SwitchRole(ctx, models.UserRole(rest))
	case "stats":
		printStats(os.Stdout, snap.Stats)
	case "reload":
		return false, rt.desk.Load(ctx)
	case "logout":
		if err := rt.desk.Logout(ctx); err != nil {
			return false, err
		}
		_, err := shellLogin(ctx, in)
		return err != nil, err
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}
	return false, nil
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
