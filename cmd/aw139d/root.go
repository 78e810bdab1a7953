package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/hangarlabs/aw139-certainty/internal/application"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "aw139d",
		Short:         "AW139 maintenance diagnosis service",
		Long:          "Retrieves AW139 manual excerpts, drafts a diagnosis and grades it with a certainty score.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to the service config file")
	flags.StringVar(&opts.envFile, "env-file", "", "Additional .env file to load")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error or disabled")
	flags.BoolVar(&opts.logJSON, "log-json", false, "Log as JSON")

	root.AddCommand(
		newServeCmd(opts),
		newDiagnoseCmd(opts),
		newScoreCmd(opts),
	)
	return root
}

// loadConfig reads .env files, the config file and the environment, then
// applies the logging flags and installs the process logger.
func (o *rootOptions) loadConfig() (*application.ServiceConfig, logger.Logger, error) {
	if err := application.LoadEnvFiles(".env", o.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := application.LoadServiceConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logJSON {
		cfg.Logging.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger.Init(cfg.Logging.Logger()), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
