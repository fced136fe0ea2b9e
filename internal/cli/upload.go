package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/localfs"
	"github.com/rescale/rescale-intake/internal/traverse"
	intstrings "github.com/rescale/rescale-intake/internal/util/strings"
)

func newUploadCmd() *cobra.Command {
	flags := &intakeFlags{}

	cmd := &cobra.Command{
		Use:   "upload <path> [path...]",
		Short: "Upload files and directories",
		Long: `Upload files and directories to the store.

Each file is named by the MD5 of its content plus its extension. Files
already attached (see --existing) or repeated in the same run are skipped.
Directories are walked recursively; hidden entries are skipped unless
--include-hidden is set.

Without --multiple only the first path is taken. If it is a directory it
is walked and each accepted file replaces the previous one, so one file
remains; replaced files created by this run are deleted from the store.

Examples:
  rescale-intake upload report.pdf
  rescale-intake upload -m ./scans --ui aggregate -o json
  rescale-intake upload -m photo.jpg --existing attached.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			flags.apply(cfg)

			log := GetLogger()
			s, err := newSession(GetContext(), cfg, flags, log)
			if err != nil {
				return err
			}

			entries, err := localfs.FromPaths(args, s.listOpts)
			if err != nil {
				s.finish()
				return err
			}

			if err := dispatch(s, applyFilter(entries, s.filter)); err != nil {
				s.finish()
				return err
			}

			value := s.finish()
			if GetContext().Err() != nil {
				log.Warn().Msg("Interrupted, in-flight uploads were cancelled")
			}
			log.Info().Msgf("%d %s attached", len(value), intstrings.Pluralize("file", int64(len(value))))
			return printValue(cmd.OutOrStdout(), value, flags.output)
		},
	}

	flags.register(cmd)
	return cmd
}

// dispatch hands plain files to Select and anything containing a directory
// to Drop.
func dispatch(s *session, entries []traverse.Entry) error {
	if len(entries) == 0 {
		return fmt.Errorf("nothing to upload (all paths hidden or filtered out)")
	}
	for _, e := range entries {
		if e.IsDir() {
			return s.widget.Drop(entries)
		}
	}

	files := make([]traverse.File, 0, len(entries))
	for _, e := range entries {
		f, err := e.File(GetContext())
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", e.Name(), err)
		}
		files = append(files, f)
	}
	return s.widget.Select(files)
}
