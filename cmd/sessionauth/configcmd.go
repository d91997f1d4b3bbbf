// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/holomush/sessionauth/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Print the configuration serve would run with after merging the config
file, the environment, and flags. Secrets are redacted.`,
		Args: cobra.NoArgs,
		RunE: runConfigShow,
	}
	config.RegisterServeFlags(show.Flags())
	config.RegisterDatabaseFlags(show.Flags())
	cmd.AddCommand(show)

	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return oops.Code("CONFIG_ENCODE_FAILED").Wrap(err)
	}
	cmd.Print(string(out))

	if err := cfg.Validate(); err != nil {
		cmd.PrintErrln("warning: " + err.Error())
	}
	return nil
}
