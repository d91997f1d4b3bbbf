// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/hex"

	"github.com/gorilla/securecookie"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/sessionauth/internal/config"
)

// Random bytes per key. Keys are hex encoded, so the block key becomes the
// 32 characters AES-256 expects.
const (
	hashKeyBytes  = 32
	blockKeyBytes = 16
)

// NewKeygenCmd creates the keygen subcommand.
func NewKeygenCmd() *cobra.Command {
	var withBlockKey bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate random cookie signing and encryption keys",
		Long: `Print a fresh session.hash_key (and, with --block-key, session.block_key)
as environment assignments. The cookie session store needs the hash key;
the block key additionally encrypts cookie contents.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hashKey, err := generateKey(hashKeyBytes)
			if err != nil {
				return err
			}
			cmd.Printf("%sSESSION__HASH_KEY=%s\n", config.EnvPrefix, hashKey)

			if withBlockKey {
				blockKey, err := generateKey(blockKeyBytes)
				if err != nil {
					return err
				}
				cmd.Printf("%sSESSION__BLOCK_KEY=%s\n", config.EnvPrefix, blockKey)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withBlockKey, "block-key", false, "also generate an encryption key")
	return cmd
}

// generateKey returns n random bytes, hex encoded.
func generateKey(n int) (string, error) {
	key := securecookie.GenerateRandomKey(n)
	if key == nil {
		return "", oops.Code("KEYGEN_FAILED").With("bytes", n).Errorf("random source unavailable")
	}
	return hex.EncodeToString(key), nil
}
