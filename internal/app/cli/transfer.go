package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/csvtransfer"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/spf13/cobra"
)

// ImportSummary is the output of `trackctl import`.
type ImportSummary struct {
	Metrics        int      `json:"metrics" yaml:"metrics"`
	Others         int      `json:"others" yaml:"others"`
	SkippedColumns []string `json:"skippedColumns,omitempty" yaml:"skippedColumns,omitempty"`
}

func newExportCommand(opts *RootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the cache as a CSV backup",
		Long: `Write the metrics and every other cached key as a CSV backup. With
--output - the CSV goes to stdout; with --output DIR/ a dated file name is
used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			others, err := csvtransfer.CollectOthers(cmd.Context(), s.cache)
			if err != nil {
				return WrapExitError(ExitFailure, "read cache", err)
			}
			text := csvtransfer.Export(s.store.Collection(), others)

			if output == "" || output == "-" {
				_, err := io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			path := output
			if info, err := os.Stat(path); err == nil && info.IsDir() {
				path = filepath.Join(path, csvtransfer.ExportFilename(time.Now().Format(models.DateLayout)))
			}
			if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
				return WrapExitError(ExitUsage, "write export", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "file or directory to write, - for stdout")
	return cmd
}

func newImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Replace the cache contents with a CSV backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitUsage, "read import file", err)
			}
			res, err := csvtransfer.Import(string(raw))
			if err != nil {
				if errors.Is(err, csvtransfer.ErrImportFormat) {
					return WrapExitError(ExitUsage, "malformed backup", err)
				}
				return WrapExitError(ExitFailure, "import", err)
			}

			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if err := csvtransfer.RestoreOthers(cmd.Context(), s.cache, res.Others); err != nil {
				return WrapExitError(ExitFailure, "restore cached keys", err)
			}
			s.store.ReplaceAll(res.Collection)
			if err := s.saved(); err != nil {
				return err
			}

			sum := ImportSummary{Metrics: len(res.Collection), Others: len(res.Others), SkippedColumns: res.SkippedColumns}
			return render(cmd.OutOrStdout(), opts.Format, sum, func(w io.Writer) error {
				fmt.Fprintf(w, "imported %d metrics and %d other keys\n", sum.Metrics, sum.Others)
				for _, c := range sum.SkippedColumns {
					fmt.Fprintf(w, "skipped column %q: no matching metric\n", c)
				}
				return nil
			})
		},
	}
}
