// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/logging"
	"github.com/holomush/sessionauth/internal/xdg"
)

// serviceName tags every log line.
const serviceName = "sessionauth"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the sessionauth CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessionauth",
		Short: "sessionauth - session-cookie authentication service",
		Long: `sessionauth serves signup, login, logout, and profile routes backed by
PostgreSQL principals and server-side or signed-cookie sessions.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML, default: $XDG_CONFIG_HOME/sessionauth/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneSessionsCmd())
	cmd.AddCommand(NewKeygenCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewGenCertCmd())

	return cmd
}

// loadConfig merges the config file, the environment, and the command's flags.
// Without --config the XDG config file is used when it exists.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path, cmd.Flags())
}

func configPath() (string, error) {
	if configFile != "" {
		return configFile, nil
	}
	path, err := xdg.ConfigFile()
	if err != nil {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Code() == "XDG_NO_HOME" {
			return "", nil
		}
		return "", err
	}
	return path, nil
}

// commandLogger installs the default logger for a command run.
func commandLogger(cfg *config.Config) *slog.Logger {
	return logging.SetDefault(serviceName, version, cfg.Log.Format, cfg.Log.Level)
}

// databaseCommandFlags registers the flags shared by commands that only
// need a database connection.
func databaseCommandFlags(fs *pflag.FlagSet) {
	config.RegisterDatabaseFlags(fs)
	config.RegisterLogFlags(fs)
}
