// Package cli implements trackctl, an offline tool that works directly on
// the local cache file while the daemon is stopped.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/dalemusser/stratatrack/internal/app/store/localcache"
	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// DefaultCachePath matches the daemon's default local_cache_path.
const DefaultCachePath = "./data/stratatrack.db"

// RootOptions holds the global flags.
type RootOptions struct {
	CachePath string
	Format    string // "text" | "json" | "yaml"
	Verbose   bool
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the trackctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "trackctl",
		Short: "Inspect and edit the stratatrack local cache",
		Long: `trackctl reads and writes the metrics kept in the stratatrack local
cache file. Changes are saved to the cache only; the daemon syncs them to
the remote document the next time a user signs in.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitUsage, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.CachePath, "cache", DefaultCachePath, "path to the local cache file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")

	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newPointCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newImportCommand(opts))

	return cmd
}

// session is an open cache plus the anonymous tracking store over it.
type session struct {
	cache *localcache.Store
	store *tracking.Store
}

func (o *RootOptions) logger() *zap.Logger {
	if !o.Verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// open opens the cache file, creating it and its directory when missing.
func (o *RootOptions) open(ctx context.Context) (*session, error) {
	if o.CachePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(o.CachePath), 0o755); err != nil {
			return nil, WrapExitError(ExitUsage, "create cache directory", err)
		}
	}
	cache, err := localcache.Open(o.CachePath)
	if err != nil {
		return nil, WrapExitError(ExitUsage, "open cache", err)
	}
	store, err := tracking.New(ctx, tracking.Deps{
		Cache:    cache,
		Identity: identity.Anonymous{},
		Logger:   o.logger(),
	}, tracking.Config{})
	if err != nil {
		_ = cache.Close()
		return nil, WrapExitError(ExitFailure, "load cache", err)
	}
	return &session{cache: cache, store: store}, nil
}

// saved reports a failed write of the collection to the cache file.
func (s *session) saved() error {
	if err := s.store.LocalSaveErr(); err != nil {
		return WrapExitError(ExitFailure, "save cache", err)
	}
	return nil
}

func (s *session) Close() error {
	return s.cache.Close()
}
