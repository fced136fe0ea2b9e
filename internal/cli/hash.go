package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/contentid"
	"github.com/rescale/rescale-intake/internal/localfs"
	"github.com/rescale/rescale-intake/internal/logging"
	"github.com/rescale/rescale-intake/internal/traverse"
	"github.com/rescale/rescale-intake/internal/validation"
)

func newHashCmd() *cobra.Command {
	var includeHidden bool
	var filters filterFlags

	cmd := &cobra.Command{
		Use:   "hash <path> [path...]",
		Short: "Print content ids without uploading",
		Long: `Compute the content id of every file under the given paths.

Columns: content id, size, whether the configured validator accepts the
file, display name and path. Nothing is sent to the store.

Examples:
  rescale-intake hash report.pdf
  rescale-intake hash ./scans --include-hidden`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts := localfs.ListOptions{IncludeHidden: includeHidden || cfg.IncludeHidden, PageSize: cfg.PageSize}
			entries, err := localfs.FromPaths(args, opts)
			if err != nil {
				return err
			}
			entries = applyFilter(entries, filters.config())
			rules := validation.NewRules(cfg.MaxFileSize, cfg.AllowedExtensions)
			_, err = hashEntries(GetContext(), entries, rules, cmd.OutOrStdout(), GetLogger())
			return err
		},
	}

	cmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "Include hidden files and directories")
	filters.register(cmd)
	return cmd
}

// hashEntries walks entries and writes one line per file. It returns the
// number of files hashed.
func hashEntries(ctx context.Context, entries []traverse.Entry, rules *validation.Rules, out io.Writer, logger *logging.Logger) (int, error) {
	logger = logging.OrNop(logger)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	hashed := 0
	walker := traverse.NewWalker(logger)
	_, err := walker.Walk(ctx, entries, false, func(f traverse.File) {
		data, err := f.ReadAll()
		if err != nil {
			logger.Warn().Err(err).Str("file", f.Path).Msg("Skipping unreadable file")
			return
		}
		status := "ok"
		if err := rules.Check(int64(len(data)), contentid.Extension(f.Name)); err != nil {
			status = "rejected (" + err.Error() + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			contentid.Of(data, f.Name),
			humanize.Bytes(uint64(len(data))),
			status,
			contentid.DisplayName(f.Name),
			f.Path)
		hashed++
	})
	if flushErr := tw.Flush(); err == nil {
		err = flushErr
	}
	return hashed, err
}
