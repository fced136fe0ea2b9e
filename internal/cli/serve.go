package cli

import (
	"github.com/spf13/cobra"

	"github.com/rescale/rescale-intake/internal/devstore"
)

func newServeCmd() *cobra.Command {
	var listen, dir string
	var maxSize int64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a reference upload store",
		Long: `Run a local store that speaks the upload protocol.

  POST /upload        multipart "file" part, X-Name header = content id
                      201 when stored, 200 when already present
  GET  /upload/{id}   the stored bytes
  POST /delete        {"ids": [...]}

Useful for trying the client end to end without a real backend.

Examples:
  rescale-intake serve --dir ./store
  rescale-intake serve --listen :9090 & rescale-intake upload --base-url http://localhost:9090 a.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen == "" {
				listen = cfg.ListenAddr
			}
			if dir == "" {
				dir = cfg.StoreDir
			}
			if maxSize <= 0 {
				maxSize = cfg.MaxFileSize
			}

			log := GetLogger()
			store, err := devstore.New(dir, maxSize, log)
			if err != nil {
				return err
			}
			log.Info().Str("addr", listen).Str("dir", store.Dir()).Msg("Store listening")
			return store.Serve(GetContext(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&dir, "dir", "", "Storage directory (default from config)")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "Largest accepted upload in bytes (default from config)")
	return cmd
}
