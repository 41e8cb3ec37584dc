// Command fhir-server runs the demo FHIR REST server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesagnew/continua-demo-fhir-server/config"
	"github.com/jamesagnew/continua-demo-fhir-server/internal/logctx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:   "fhir-server",
		Short: "Demo FHIR REST server",
		Long: `A FHIR REST server backed by in-memory demo providers.

Configuration is read from built-in defaults, then the YAML file given with
--config, then environment variables.

Example:
  fhir-server serve --config fhir-server.yaml --watch`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (YAML)")
	root.PersistentFlags().StringVarP(&f.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error); overrides the configuration")
	root.PersistentFlags().StringVar(&f.logFormat, "log-format", "", "Log format (json, text); overrides the configuration")

	root.AddCommand(newServeCmd(f), newCapabilitiesCmd(f), newSchemaCmd())
	return root
}

// load resolves the configuration and applies the logging flags.
func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}

func newLogger(w io.Writer, lc config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", lc.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(lc.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q", lc.Format)
	}
	return slog.New(logctx.Handler{Handler: h}), nil
}

func newCapabilitiesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Print the capability statement for the configuration without serving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.load()
			if err != nil {
				return err
			}
			log, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}
			app, err := compose(cmd.Context(), cfg, log, nil)
			if err != nil {
				return err
			}
			defer app.close()
			return writeJSON(cmd.OutOrStdout(), app.srv.CapabilityStatement())
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeJSON(cmd.OutOrStdout(), config.Schema())
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
