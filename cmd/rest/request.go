package main

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/rest/client"
)

func newRequestCmd(a *app, method string) *cobra.Command {
	var (
		data     string
		dataFile string
		include  bool
	)

	withBody := method != http.MethodGet && method != http.MethodDelete

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <url>",
		Short: fmt.Sprintf("Sends a %s request and prints the response body", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			target := a.cfg.Resolve(args[0])
			opts := a.params(true)

			var (
				resp *client.Response
				err  error
			)
			switch method {
			case http.MethodGet:
				resp, err = a.client.Get(ctx, target, opts...)
			case http.MethodDelete:
				resp, err = a.client.Delete(ctx, target, opts...)
			default:
				payload, perr := readPayload(cmd, data, dataFile)
				if perr != nil {
					return perr
				}
				switch method {
				case http.MethodPost:
					resp, err = a.client.Post(ctx, target, payload, opts...)
				case http.MethodPut:
					resp, err = a.client.Put(ctx, target, payload, opts...)
				case http.MethodPatch:
					resp, err = a.client.Patch(ctx, target, payload, opts...)
				}
			}
			if err != nil {
				return err
			}

			printResponse(cmd.OutOrStdout(), resp, include)

			return a.client.Validate(resp, a.cfg.Debug)
		},
	}

	if withBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
		cmd.Flags().StringVar(&dataFile, "data-file", "", `file holding the request body, "-" for stdin`)
		cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	}
	cmd.Flags().BoolVarP(&include, "include", "i", false, "print the status and headers")

	return cmd
}

// readPayload returns the body given with --data or --data-file, nil
// when there is none.
func readPayload(cmd *cobra.Command, data, dataFile string) (any, error) {
	switch {
	case dataFile == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return b, nil
	case dataFile != "":
		b, err := os.ReadFile(dataFile)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return b, nil
	case data != "":
		return data, nil
	default:
		return nil, nil
	}
}

func printResponse(w io.Writer, resp *client.Response, include bool) {
	if include {
		fmt.Fprintf(w, "%d %s\n", resp.Code, http.StatusText(resp.Code))
		for _, k := range slices.Sorted(maps.Keys(resp.Headers)) {
			fmt.Fprintf(w, "%s: %s\n", k, resp.Headers[k])
		}
		fmt.Fprintln(w)
	}

	if resp.Body == "" {
		return
	}

	fmt.Fprint(w, resp.Body)
	if !strings.HasSuffix(resp.Body, "\n") {
		fmt.Fprintln(w)
	}
}
