package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/netlayer/client"
)

var (
	getMethod  string
	getBody    string
	getHeaders []string
	getExpect  int
)

var getCmd = &cobra.Command{
	Use:   "get <endpoint>",
	Short: "Send a plain request and print the response body",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		defer closeClient(c)

		headers, err := parseHeaders(getHeaders)
		if err != nil {
			return err
		}

		d := client.Descriptor{
			Kind:         client.KindPlain,
			Method:       strings.ToUpper(getMethod),
			Endpoint:     args[0],
			Headers:      headers,
			ExpectStatus: getExpect,
		}
		if getBody != "" {
			d.RawBody = []byte(getBody)
		}

		for resp, err := range c.Fetch(cmd.Context(), d) {
			if err != nil {
				return err
			}
			log.Debug("response", "status", resp.StatusCode, "bytes", len(resp.Body))
			fmt.Fprintln(cmd.OutOrStdout(), string(resp.Body))
		}

		return nil
	},
}

func init() {
	getCmd.Flags().StringVarP(&getMethod, "method", "X", http.MethodGet, "HTTP method")
	getCmd.Flags().StringVarP(&getBody, "data", "d", "", "raw request body")
	getCmd.Flags().StringArrayVarP(&getHeaders, "header", "H", nil, "header as 'Name: value', repeatable")
	getCmd.Flags().IntVar(&getExpect, "expect", http.StatusOK, "expected status code")
}

func parseHeaders(raw []string) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make(map[string][]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed header %q", h)
		}
		name = strings.TrimSpace(name)
		headers[name] = append(headers[name], strings.TrimSpace(value))
	}
	return headers, nil
}
