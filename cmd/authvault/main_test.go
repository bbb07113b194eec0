// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authvault/authvault/pkg/errutil"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "migrate", "config"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig string
		wantEnv    string
	}{
		{
			name:       "config flag",
			args:       []string{"--config", "/path/to/config.yaml", "--help"},
			wantConfig: "/path/to/config.yaml",
		},
		{
			name:       "flags with equals",
			args:       []string{"--config=/etc/authvault.yaml", "--env-file=/etc/authvault.env", "--help"},
			wantConfig: "/etc/authvault.yaml",
			wantEnv:    "/etc/authvault.env",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile, envFile = "", ""

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantConfig, configFile)
			assert.Equal(t, tt.wantEnv, envFile)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("explicit file is loaded without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("AUTHVAULT_TEST_FROM_FILE=file\nAUTHVAULT_TEST_PRESET=file\n"), 0o600))
		t.Setenv("AUTHVAULT_TEST_PRESET", "process")
		t.Setenv("AUTHVAULT_TEST_FROM_FILE", "")
		require.NoError(t, os.Unsetenv("AUTHVAULT_TEST_FROM_FILE"))

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "file", os.Getenv("AUTHVAULT_TEST_FROM_FILE"))
		assert.Equal(t, "process", os.Getenv("AUTHVAULT_TEST_PRESET"))
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		err := loadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
		errutil.AssertErrorCode(t, err, "ENV_FILE_INVALID")
	})

	t.Run("missing default file is fine", func(t *testing.T) {
		t.Chdir(t.TempDir())
		assert.NoError(t, loadEnvFile(""))
	})
}
