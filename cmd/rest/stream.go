package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/rest/client/sse"
)

func newStreamCmd(a *app) *cobra.Command {
	var (
		method   string
		data     string
		asJSON   bool
		comments bool
	)

	cmd := &cobra.Command{
		Use:   "stream <url>",
		Short: "Follows a server-sent event stream and prints every event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			onEvent := func(ctx context.Context, ev sse.Event) error {
				if ev.Kind == sse.KindComment && !comments {
					return nil
				}

				if asJSON {
					_, err := fmt.Fprintln(out, ev.String())
					return err
				}

				line := ev.Kind.String() + ": " + ev.Text()
				if ev.Data != nil {
					line += "\n" + strings.TrimRight(ev.DataText(), "\n")
				}
				_, err := fmt.Fprintln(out, line)
				return err
			}

			var payload any
			if data != "" {
				payload = data
			}

			resp, err := a.client.Stream(cmd.Context(), strings.ToUpper(method), a.cfg.Resolve(args[0]), payload, onEvent, a.params(false)...)
			if err != nil {
				return err
			}

			return a.client.Validate(resp, a.cfg.Debug)
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", "GET", "request method")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print events as JSON lines")
	cmd.Flags().BoolVar(&comments, "comments", false, "print comment lines")

	return cmd
}
