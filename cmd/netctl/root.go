package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/netlayer"
	"github.com/adamwoolhether/netlayer/client"
)

type globalFlags struct {
	baseURL   string
	timeout   time.Duration
	userAgent string
	rps       int
	burst     int
	keepAlive time.Duration
	verbose   bool
}

var (
	flags globalFlags
	log   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "netctl",
	Short:         "Exercise HTTP and websocket endpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if flags.verbose {
			level = slog.LevelDebug
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.baseURL, "base-url", "", "resolve relative endpoints against this URL")
	pf.DurationVar(&flags.timeout, "timeout", 30*time.Second, "overall timeout of plain and download requests")
	pf.StringVar(&flags.userAgent, "user-agent", "netctl/1.0", "User-Agent header sent with every request")
	pf.IntVar(&flags.rps, "rps", 0, "requests per second, 0 disables throttling")
	pf.IntVar(&flags.burst, "burst", 1, "throttle burst size")
	pf.DurationVar(&flags.keepAlive, "keep-alive", 30*time.Second, "socket keep-alive ping interval")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(getCmd, downloadCmd, streamCmd, serveCmd)
}

// newClient builds a client from the global flags.
func newClient() (*client.Client, error) {
	opts := []client.Option{
		client.WithLogger(log),
		client.WithTimeout(flags.timeout),
		client.WithUserAgent(flags.userAgent),
		client.WithKeepAlive(flags.keepAlive),
	}
	if flags.baseURL != "" {
		opts = append(opts, client.WithBaseURL(flags.baseURL))
	}
	if flags.rps > 0 {
		opts = append(opts, client.WithThrottle(flags.rps, flags.burst))
	}

	c, err := netlayer.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("building client: %w", err)
	}
	return c, nil
}

func closeClient(c *client.Client) {
	if err := c.Close(); err != nil {
		log.Error("closing client", "error", err)
	}
}
