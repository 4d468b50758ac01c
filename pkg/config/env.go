// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// Env holds the settings read from the environment.
type Env struct {
	HardwareFile string // extra GPU catalog entries, see sku.LoadCatalogFile
	LoRARank     int    // default rank when --lora-rank is not given
	Output       string // text or json
	FeatureGates string // "Gate=bool,..." list
}

// LoadEnv reads the given .env files, if they exist, into the process environment and
// then resolves the FITCHECK_* variables. Variables already set take precedence over
// .env files.
func LoadEnv(files ...string) (*Env, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return nil, fmt.Errorf("failed to load %v: %w", existing, err)
		}
	}

	rank, err := getEnvInt(consts.EnvLoRARank, consts.DefaultLoRARank)
	if err != nil {
		return nil, err
	}
	if rank <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer, got %d", consts.EnvLoRARank, rank)
	}
	return &Env{
		HardwareFile: os.Getenv(consts.EnvHardwareFile),
		LoRARank:     rank,
		Output:       getEnv(consts.EnvOutput, "text"),
		FeatureGates: os.Getenv(consts.EnvFeatureGates),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return i, nil
}
