// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{consts.EnvHardwareFile, consts.EnvLoRARank, consts.EnvOutput, consts.EnvFeatureGates} {
		t.Setenv(k, "")
	}
}

func TestLoadEnvDefaults(t *testing.T) {
	clearEnv(t)
	env, err := LoadEnv(filepath.Join(t.TempDir(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, &Env{LoRARank: consts.DefaultLoRARank, Output: "text"}, env)
}

func TestLoadEnvFromVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv(consts.EnvLoRARank, "32")
	t.Setenv(consts.EnvOutput, "json")
	t.Setenv(consts.EnvFeatureGates, "EvalSpikeCheck=false")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 32, env.LoRARank)
	assert.Equal(t, "json", env.Output)
	assert.Equal(t, "EvalSpikeCheck=false", env.FeatureGates)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(consts.EnvHardwareFile)
	os.Unsetenv(consts.EnvLoRARank)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FITCHECK_HARDWARE_FILE=/etc/fitcheck/hardware.yaml\nFITCHECK_LORA_RANK=8\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(consts.EnvHardwareFile)
		os.Unsetenv(consts.EnvLoRARank)
	})

	env, err := LoadEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/etc/fitcheck/hardware.yaml", env.HardwareFile)
	assert.Equal(t, 8, env.LoRARank)
}

func TestLoadEnvInvalid(t *testing.T) {
	testcases := map[string]string{
		"not a number": "sixteen",
		"zero rank":    "0",
	}
	for name, value := range testcases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(consts.EnvLoRARank, value)
			_, err := LoadEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), consts.EnvLoRARank)
		})
	}
}
