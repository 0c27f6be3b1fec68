package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/gameserver/internal/protocol"
)

var (
	cfg    *Config
	client *Client
	out    *Output
)

var (
	errNotSignedIn    = errors.New("not signed in: run guest or login first")
	errSessionExpired = errors.New("saved session is no longer valid: sign in again")
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cfg = DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "gsctl",
		Short: "CLI tool for the game server",
		Long: `gsctl talks to a game server over its websocket protocol.

Each invocation opens a new connection. After guest or login the session
token is saved to the token file, and later commands resume that session
(including the room it was in) before doing their work.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load token from file if not provided via flag/env
			if err := cfg.LoadToken(); err != nil {
				return err
			}

			client = NewClient(cfg.ServerURL, cfg.Timeout)
			out = NewOutput(cfg.Output, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Server URL (env: GSCTL_SERVER)")
	rootCmd.PersistentFlags().StringVar(&cfg.Token, "token", cfg.Token, "Session token (env: GSCTL_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&cfg.TokenFile, "token-file", cfg.TokenFile, "Token file path (env: GSCTL_TOKEN_FILE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.Output, "output", "o", cfg.Output, "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Time to wait for each response")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "Verbose output")

	// Add subcommands
	rootCmd.AddCommand(newGuestCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newSignOutCmd())
	rootCmd.AddCommand(newCreateCmd())
	rootCmd.AddCommand(newEnterCmd())
	rootCmd.AddCommand(newLeaveCmd())
	rootCmd.AddCommand(newValueCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// connect dials the server. With resume set, the saved session is restored
// first and a missing or stale token is an error.
func connect(cmd *cobra.Command, resume bool) (*Session, error) {
	ctx := cmd.Context()

	s, err := Dial(ctx, cfg.ServerURL, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", s.ServerName())
	}
	if !resume {
		return s, nil
	}

	if cfg.Token == "" {
		_ = s.Close()
		return nil, errNotSignedIn
	}

	resp, err := s.Request(ctx, &protocol.Envelope{
		Type:      protocol.TypeAuthenticate,
		Action:    protocol.ActionSessionAuth,
		SessionID: cfg.Token,
	})
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if resp.Success == nil || !*resp.Success {
		_ = s.Close()
		return nil, errSessionExpired
	}
	if cfg.Verbose {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "session resumed")
	}
	return s, nil
}

// roundTrip connects, sends one request, prints the response and returns it
func roundTrip(cmd *cobra.Command, resume bool, env *protocol.Envelope) (*protocol.Envelope, error) {
	s, err := connect(cmd, resume)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	resp, err := s.Request(cmd.Context(), env)
	if err != nil {
		return nil, err
	}

	out.Print(resp)
	return resp, nil
}
