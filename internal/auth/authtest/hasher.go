// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package authtest

import (
	"github.com/holomush/sessionauth/internal/auth"
)

// CheapArgon2Params keeps argon2id fast enough for unit tests.
var CheapArgon2Params = auth.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}

// Hasher returns a real MultiHasher with a minimal work factor.
// It panics on misconfiguration, which only a broken test setup can cause.
func Hasher() *auth.MultiHasher {
	h, err := auth.NewPasswordHasher(auth.HasherConfig{
		Algorithm:  auth.AlgorithmArgon2id,
		Argon2:     CheapArgon2Params,
		BcryptCost: 4,
	})
	if err != nil {
		panic(err)
	}
	return h
}
