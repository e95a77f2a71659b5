// Package cli defines the cobra commands of the dajam client.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"dajam-backend/internal/client"
	"dajam-backend/internal/participation"
)

var version = "dev" // set via ldflags at build time

const defaultServer = "http://localhost:8080"

// options holds the persistent flags shared by every subcommand.
type options struct {
	server string
	home   string
}

// NewRootCmd builds the command tree. Flags fall back to DAJAM_SERVER and
// DAJAM_HOME.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "dajam",
		Short: "Host and join live audience sessions",
		Long: `dajam creates and joins live sessions (polls, rankings, tournaments,
word clouds) and follows their results as participants submit.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.server, "server", envOr("DAJAM_SERVER", defaultServer), "API server base URL")
	root.PersistentFlags().StringVar(&opts.home, "home", envOr("DAJAM_HOME", defaultHome()), "Directory for the local participation cache")

	root.AddCommand(newCreateCmd(opts))
	root.AddCommand(newJoinCmd(opts))
	root.AddCommand(newVoteCmd(opts))
	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newResultsCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	return root
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorText(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultHome() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".dajam"
	}
	return filepath.Join(dir, ".dajam")
}

// env is what a command needs to talk to the server as this device.
type env struct {
	api   *client.Client
	cache *participation.Cache
	store *participation.SQLiteStore
}

func (e *env) Close() error {
	return e.store.Close()
}

func (o *options) open(ctx context.Context) (*env, error) {
	if err := os.MkdirAll(o.home, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", o.home, err)
	}
	store, err := participation.OpenSQLite(filepath.Join(o.home, "participation.db"))
	if err != nil {
		return nil, err
	}
	cache := participation.NewCache(store, participation.DefaultTTL)

	deviceID, err := cache.DeviceID(ctx)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load device id: %w", err)
	}
	return &env{api: client.New(o.server, deviceID), cache: cache, store: store}, nil
}
