// rescale-intake - content-addressed file intake client.
//
// Files are named by the MD5 of their bytes plus their extension, deduplicated
// locally, uploaded with progress feedback and reconciled with the store's
// answer. See `rescale-intake --help`.
package main

import (
	"os"

	"github.com/rescale/rescale-intake/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
