// Package cli wires the session and feed components behind a thin command
// surface. Commands dispatch to the controllers and print snapshots; they
// never own state themselves.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felnan/snapfeed/internal/feed"
	"github.com/felnan/snapfeed/internal/gateway"
	"github.com/felnan/snapfeed/internal/infra/config"
	"github.com/felnan/snapfeed/internal/infra/logging"
	"github.com/felnan/snapfeed/internal/repo/credential"
	"github.com/felnan/snapfeed/internal/session"
	"github.com/felnan/snapfeed/internal/upload"
)

const (
	appName      = "snapfeed"
	configPrefix = "SNAPFEED"
)

// Config is the full CLI configuration, populated from the environment.
type Config struct {
	config.EnvConfig

	Log         logging.LoggerConfig         `envPrefix:"LOG_"`
	API         gateway.Config               `envPrefix:"API_"`
	Credentials credential.SQLiteStoreConfig `envPrefix:"CREDENTIALS_"`
	Upload      upload.Config                `envPrefix:"UPLOAD_"`
}

// app holds the wired component graph for one command invocation.
type app struct {
	cfg     Config
	creds   credential.Store
	session *session.Controller
	feed    *feed.Store
}

func newApp(ctx context.Context) (*app, error) {
	var cfg Config
	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	logging.Configure(ctx, cfg.Log, appName)

	creds, err := credential.NewSQLiteStore(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}

	gw := gateway.New(cfg.API, creds, nil)

	return &app{
		cfg:     cfg,
		creds:   creds,
		session: session.NewController(gw, creds),
		feed:    feed.NewStore(gw),
	}, nil
}

func (a *app) Close() error {
	if err := a.creds.Close(); err != nil {
		return fmt.Errorf("close credential store: %w", err)
	}

	return nil
}

// requireSession restores the stored session and fails the command when no
// usable session comes out of it.
func (a *app) requireSession(ctx context.Context) error {
	if err := a.session.Restore(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}

	if snap := a.session.State().Get(); snap.Status != session.StatusAuthenticated {
		return fmt.Errorf("not logged in (run %q first)", "feedctl login")
	}

	return nil
}

// NewRootCommand creates the root command for the feedctl CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "feedctl",
		Short:         "Command-line client for the snapfeed service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.AddCommand(newLoginCommand())
	cmd.AddCommand(newSignupCommand())
	cmd.AddCommand(newLogoutCommand())
	cmd.AddCommand(newWhoamiCommand())
	cmd.AddCommand(newProfileCommand())
	cmd.AddCommand(newFeedCommand())
	cmd.AddCommand(newPostCommand())
	cmd.AddCommand(newLikeCommand())
	cmd.AddCommand(newCommentCommand())

	return cmd
}
