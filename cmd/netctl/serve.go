package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/netlayer/internal/fixture"
)

var (
	serveAddr string
	serveTick time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local server with one endpoint per task kind",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := fixture.New(fixture.WithLogger(log), fixture.WithTick(serveTick))
		return srv.Run(cmd.Context(), serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "localhost:8080", "listen address")
	serveCmd.Flags().DurationVar(&serveTick, "tick", time.Second, "interval between websocket ticks, 0 disables them")
}
