package main

import (
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adamwoolhether/rest/client"
	"github.com/adamwoolhether/rest/client/cache"
	"github.com/adamwoolhether/rest/internal/config"
)

// app is the state shared by all commands once the root command has
// loaded the configuration.
type app struct {
	cfgPath string
	headers []string

	cfg    config.Config
	logger *slog.Logger
	store  *cache.Store
	client *client.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "rest",
		Short: "Command line REST client",
		Long: `Send requests, follow server-sent event streams and download files.

Settings are read from $HOME/.rest/config.yaml and REST_* environment
variables; flags take precedence:
	rest get https://api.example.com/v1/items -H "Authorization: Bearer TOKEN"
	rest stream https://api.example.com/v1/events
	rest download https://example.com/logo.png -o logo.png`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default $HOME/.rest/config.yaml)")
	flags.String("base-url", "", "base URL prepended to relative request paths")
	flags.Duration("timeout", 0, "request timeout")
	flags.String("user-agent", "", "User-Agent header")
	flags.String("cache-dir", "", "download cache directory")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("debug", false, "log every response in full")
	flags.StringArrayVarP(&a.headers, "header", "H", nil, `request header as "Key: Value", repeatable`)

	cmd.AddCommand(
		newRequestCmd(a, "GET"),
		newRequestCmd(a, "POST"),
		newRequestCmd(a, "PUT"),
		newRequestCmd(a, "PATCH"),
		newRequestCmd(a, "DELETE"),
		newStreamCmd(a),
		newDownloadCmd(a),
		newCacheCmd(a),
	)

	return cmd
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"base-url":   "base_url",
	"timeout":    "timeout",
	"user-agent": "user_agent",
	"cache-dir":  "cache_dir",
	"log-level":  "log_level",
	"debug":      "debug",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

func (a *app) setup(cmd *cobra.Command) error {
	v := config.New(a.cfgPath)
	if err := bindFlags(v, cmd.Root().PersistentFlags()); err != nil {
		return err
	}
	if err := config.Read(v); err != nil {
		return err
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}

	headers, err := parseHeaders(a.headers)
	if err != nil {
		return err
	}
	if len(headers) > 0 {
		cfg.Headers = maps.Clone(cfg.Headers)
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, len(headers))
		}
		maps.Copy(cfg.Headers, headers)
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.Level()}))

	a.store, err = cache.New(cfg.CacheDir, cache.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("opening download cache: %w", err)
	}

	opts := []client.Option{
		client.WithLogger(a.logger),
		client.WithCacheStore(a.store),
		client.WithPollInterval(cfg.PollInterval),
		client.WithBatchLimit(cfg.BatchLimit),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, client.WithUserAgent(cfg.UserAgent))
	}
	if cfg.Throttle.Enabled() {
		opts = append(opts, client.WithThrottleConfig(cfg.Throttle))
	}

	a.client, err = client.Build(opts...)
	if err != nil {
		return fmt.Errorf("building client: %w", err)
	}

	return nil
}

// params returns the per-request options derived from the settings.
// Streams are not bounded by the configured timeout.
func (a *app) params(timeout bool, extra ...client.ParamOption) []client.ParamOption {
	opts := []client.ParamOption{client.WithRequestHeaders(a.cfg.Headers)}
	if timeout && a.cfg.Timeout > 0 {
		opts = append(opts, client.WithRequestTimeout(a.cfg.Timeout))
	}
	if a.cfg.Debug {
		opts = append(opts, client.WithDebug())
	}
	return append(opts, extra...)
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		k, v, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Key: Value\"", h)
		}
		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return headers, nil
}
