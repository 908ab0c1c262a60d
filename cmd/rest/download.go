package main

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/adamwoolhether/rest/client"
	"github.com/adamwoolhether/rest/client/progress"
)

func newDownloadCmd(a *app) *cobra.Command {
	var (
		output   string
		dir      string
		checksum string
		noCache  bool
		showProg bool
	)

	cmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Downloads files, through the download cache",
		Long: `Download one file to --output, or several files into --dir.
Without a destination the files stay in the download cache.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			opts := a.params(true, client.WithCache(!noCache))
			if showProg {
				opts = append(opts, client.WithProgress(printProgress(errOut)))
			}

			if len(args) == 1 {
				if checksum != "" {
					opts = append(opts, client.WithFileOptions(client.WithChecksum(sha256.New(), checksum)))
				}

				path, err := a.client.DownloadFile(ctx, a.cfg.Resolve(args[0]), output, opts...)
				if showProg {
					fmt.Fprintln(errOut)
				}
				if err != nil {
					return err
				}

				fmt.Fprintln(out, path)
				return nil
			}

			if output != "" || checksum != "" {
				return errors.New("--output and --checksum take a single url, use --dir for several")
			}

			urls := make([]string, len(args))
			for i, u := range args {
				urls[i] = a.cfg.Resolve(u)
			}

			results, err := a.client.DownloadAsync(ctx, dir, urls, opts...)
			if err != nil {
				return err
			}

			var errs []error
			for i, r := range results {
				if err := r.Err(); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", urls[i], err))
					continue
				}
				fmt.Fprintln(out, r.Path())
			}

			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file")
	cmd.Flags().StringVar(&dir, "dir", "", "destination directory for several files")
	cmd.Flags().StringVar(&checksum, "checksum", "", "expected hex SHA-256 of the file")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the download cache")
	cmd.Flags().BoolVar(&showProg, "progress", false, "print transfer progress")

	return cmd
}

func printProgress(w io.Writer) progress.Sink {
	return func(p progress.Progress) {
		fmt.Fprintf(w, "\r%-48s", p)
	}
}
