// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/config"
	certs "github.com/holomush/sessionauth/internal/tls"
	"github.com/holomush/sessionauth/internal/xdg"
)

// NewGenCertCmd creates the gen-cert subcommand.
func NewGenCertCmd() *cobra.Command {
	var (
		dir   string
		hosts []string
	)

	cmd := &cobra.Command{
		Use:   "gen-cert",
		Short: "Generate a development CA and HTTPS server certificate",
		Long: `Generate a server certificate for local HTTPS, signed by a development CA.
An existing CA in the output directory is reused so browsers that already
trust it keep doing so. Not intended for production certificates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenCert(cmd, dir, hosts)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: $XDG_CONFIG_HOME/sessionauth/certs)")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "extra DNS name or IP for the server certificate (repeatable)")

	return cmd
}

func runGenCert(cmd *cobra.Command, dir string, hosts []string) error {
	if dir == "" {
		var err error
		if dir, err = xdg.CertsDir(); err != nil {
			return err
		}
	}
	if err := xdg.EnsureDir(dir); err != nil {
		return err
	}

	ca, created, err := certs.LoadOrCreateCA(dir)
	if err != nil {
		return err
	}
	server, err := certs.GenerateServerCert(ca, hosts)
	if err != nil {
		return err
	}
	if err := certs.Save(dir, ca, server); err != nil {
		return err
	}

	if created {
		cmd.Println("Generated development CA " + filepath.Join(dir, certs.CACertFile))
	} else {
		cmd.Println("Reused development CA " + filepath.Join(dir, certs.CACertFile))
	}
	cmd.Println(config.EnvPrefix + "HTTP__TLS_CERT=" + filepath.Join(dir, certs.ServerCertFile))
	cmd.Println(config.EnvPrefix + "HTTP__TLS_KEY=" + filepath.Join(dir, certs.ServerKeyFile))
	return nil
}
