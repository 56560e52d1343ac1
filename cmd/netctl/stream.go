package main

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/netlayer/client"
)

var (
	streamCount  int
	streamBinary bool
)

var streamCmd = &cobra.Command{
	Use:   "stream <endpoint>",
	Short: "Print messages received on a websocket",
	Long: `Subscribe to a websocket endpoint and print each message as it arrives.
Text messages are printed as is. Binary messages are printed as is when they
are valid UTF-8 and hex encoded otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer closeClient(c)

		d := client.Descriptor{Kind: client.KindSocket, Endpoint: args[0]}
		out := cmd.OutOrStdout()

		var n int
		if streamBinary {
			for data, err := range c.OpenDataStream(cmd.Context(), d) {
				if err != nil {
					return err
				}
				if utf8.Valid(data) {
					fmt.Fprintln(out, string(data))
				} else {
					fmt.Fprintln(out, hex.EncodeToString(data))
				}
				if n++; streamCount > 0 && n == streamCount {
					break
				}
			}
			return nil
		}

		for msg, err := range c.OpenMessageStream(cmd.Context(), d) {
			if err != nil {
				return err
			}
			fmt.Fprintln(out, msg)
			if n++; streamCount > 0 && n == streamCount {
				break
			}
		}

		return nil
	},
}

func init() {
	streamCmd.Flags().IntVarP(&streamCount, "count", "n", 0, "stop after n messages, 0 streams until closed")
	streamCmd.Flags().BoolVar(&streamBinary, "binary", false, "subscribe to binary messages instead of text")
}
