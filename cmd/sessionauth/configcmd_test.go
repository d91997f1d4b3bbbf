// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runConfigShowCmd(t *testing.T, args ...string) (map[string]map[string]any, string) {
	t.Helper()
	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(append([]string{"config", "show"}, args...))
	require.NoError(t, cmd.Execute())

	var doc map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc), out.String())
	return doc, errOut.String()
}

func TestConfigShow_MergesLayersAndRedacts(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sessionauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: "0.0.0.0:8443"
session:
  store: cookie
  hash_key: "0123456789abcdef0123456789abcdef"
`), 0o600))
	t.Setenv("SESSIONAUTH_SESSION__MAX_AGE", "30m")

	doc, warnings := runConfigShowCmd(t,
		"--config", path,
		"--database-url", "postgres://app:hunter2@db/auth",
		"--session-reject", "status",
	)

	assert.Empty(t, warnings)
	assert.Equal(t, "0.0.0.0:8443", doc["http"]["addr"])
	assert.Equal(t, "30m0s", doc["session"]["max_age"])
	assert.Equal(t, "status", doc["session"]["reject"])
	assert.Equal(t, "[redacted]", doc["session"]["hash_key"])
	assert.NotContains(t, doc["database"]["url"], "hunter2")
}

func TestConfigShow_WarnsOnInvalidConfig(t *testing.T) {
	clearEnv(t)

	doc, warnings := runConfigShowCmd(t, "--session-store", "redis")

	assert.Equal(t, "redis", doc["session"]["store"])
	assert.Contains(t, warnings, "session.store")
}

func TestConfigShow_LoadsXDGConfigFile(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "sessionauth")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
http:
  tls_cert: /certs/server.crt
  tls_key: /certs/server.key
`), 0o600))

	doc, warnings := runConfigShowCmd(t)

	assert.Empty(t, warnings)
	assert.Equal(t, "/certs/server.crt", doc["http"]["tls_cert"])
	assert.Equal(t, "/certs/server.key", doc["http"]["tls_key"])
}
