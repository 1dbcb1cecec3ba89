package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yoockh/helpdesk/internal/collab"
	"github.com/yoockh/helpdesk/internal/collab/memory"
	"github.com/yoockh/helpdesk/internal/collab/rest"
	"github.com/yoockh/helpdesk/internal/desk"
	"github.com/yoockh/helpdesk/internal/deskconfig"
	"github.com/yoockh/helpdesk/internal/logger"
	"github.com/yoockh/helpdesk/internal/models"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath string
	modeFlag   string
	viewFlag   string
	verbose    bool
)

// rt is the runtime shared by the subcommands of one invocation.
var rt *runtime

type runtime struct {
	cfg     *deskconfig.Config
	log     *logrus.Logger
	backend collab.Backend
	desk    *desk.Controller
	stop    context.CancelFunc
	closers []func() error
}

var rootCmd = &cobra.Command{
	Use:   "deskctl",
	Short: "Terminal client for the support desk",
	Long: `deskctl signs in to the support API and works with conversations,
the user roster and the knowledge base from the terminal.

With mode "memory" it runs against a built-in demo backend
(user@company.com / password123, admin@company.com / admin123).
Memory sessions do not outlive the process, so use "deskctl shell" there.`,
	Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { teardown() },
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		teardown()
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default is $HOME/.helpdesk/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "backend mode: rest or memory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&viewFlag, "as", "", "view to work in: user or admin (default is the account's role)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

func setup(cmd *cobra.Command, _ []string) error {
	cfg, _, err := deskconfig.Load(configPath)
	if err != nil {
		return err
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.NewWith(os.Stderr, level, false)
	entry := logger.Component(log, "deskctl")

	r := &runtime{cfg: cfg, log: log}
	var sessions *desk.SessionManager
	switch cfg.Mode {
	case deskconfig.ModeMemory:
		mb, err := memory.New(memory.Options{})
		if err != nil {
			return err
		}
		r.backend = mb.Backend()
		sessions = desk.NewSessionManager(r.backend.Auth, &desk.MemoryTokenStore{}, entry)
	case deskconfig.ModeREST:
		tokens, err := desk.OpenBoltTokenStore(cfg.SessionFile)
		if err != nil {
			return fmt.Errorf("open session file: %w", err)
		}
		r.closers = append(r.closers, tokens.Close)
		client := rest.New(cfg.API.URL, rest.TokenFunc(func() string { return sessions.Token() }), &http.Client{Timeout: cfg.API.Timeout})
		r.backend = client.Backend()
		sessions = desk.NewSessionManager(r.backend.Auth, tokens, entry)
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}

	r.desk = desk.New(desk.Deps{Backend: r.backend, Sessions: sessions, Logger: entry})
	ctx, stop := context.WithCancel(context.Background())
	r.stop = stop
	go r.desk.Run(ctx)
	rt = r
	return nil
}

func teardown() {
	if rt == nil {
		return
	}
	rt.stop()
	for _, c := range rt.closers {
		_ = c()
	}
	rt = nil
}

// restore resumes the stored session and switches to the requested view.
func restore(ctx context.Context) (desk.Session, error) {
	s, err := rt.desk.Restore(ctx)
	if err != nil {
		return s, err
	}
	if !s.Authenticated {
		return s, fmt.Errorf("not signed in, run \"deskctl login\" first")
	}
	if viewFlag != "" {
		if err := rt.desk.SwitchRole(ctx, models.UserRole(viewFlag)); err != nil {
			return s, err
		}
	}
	return s, nil
}

// settle waits for an action and prints the notices it produced.
func settle(ctx context.Context, a *desk.Action) error {
	select {
	case <-a.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	printNotices()
	return a.Err()
}

func printNotices() {
	for {
		select {
		case n := <-rt.desk.Notices():
			if n.Level == desk.LevelSuccess && !verbose {
				continue
			}
			fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Text)
		default:
			return
		}
	}
}
