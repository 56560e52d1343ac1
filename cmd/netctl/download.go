package main

import (
	"crypto/sha256"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/netlayer/client"
)

var (
	downloadSHA256 string
	downloadSkip   bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <endpoint> <destination>",
	Short: "Stream a response body to a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer closeClient(c)

		var dlOpts []client.DownloadOption
		if downloadSHA256 != "" {
			dlOpts = append(dlOpts, client.WithChecksum(sha256.New(), downloadSHA256))
		}
		if downloadSkip {
			dlOpts = append(dlOpts, client.WithSkipExisting())
		}

		d := client.Descriptor{Kind: client.KindDownload, Endpoint: args[0], Destination: args[1]}

		// Report every tenth of the way.
		next := 0.1
		progress := client.WithProgress(func(f float64) {
			if f >= next || f == 1 {
				log.Info("download progress", "percent", int(f*100))
				for next <= f {
					next += 0.1
				}
			}
		})

		for resp, err := range c.Fetch(cmd.Context(), d, progress, client.WithDownload(dlOpts...)) {
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Path)
		}

		return nil
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadSHA256, "sha256", "", "expected hex SHA-256 of the file")
	downloadCmd.Flags().BoolVar(&downloadSkip, "skip-existing", false, "succeed without downloading when the destination exists")
}
