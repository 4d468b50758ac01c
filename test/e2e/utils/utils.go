// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

var (
	// Methods are the training methods every preset is planned with.
	Methods = []model.TrainingMethod{model.TrainingMethodFull, model.TrainingMethodLora, model.TrainingMethodQLora}
)

// TunablePresets returns the registered presets that support fine-tuning, by name.
func TunablePresets() []string {
	return lo.Filter(plugin.FitcheckModelRegister.ListModelNames(), func(name string, _ int) bool {
		return plugin.FitcheckModelRegister.MustGet(name).SupportTuning()
	})
}

// GenerateAlpacaDataset writes rows alpaca records of roughly words words each to a
// JSONL file in dir and returns its path.
func GenerateAlpacaDataset(dir string, rows, words int) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("alpaca-%d.jsonl", rows))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < rows; i++ {
		rec := map[string]string{
			"instruction": fmt.Sprintf("Summarize document %d.", i),
			"input":       strings.Repeat("lorem ipsum ", words/2),
			"output":      "A short summary.",
		}
		if err := enc.Encode(rec); err != nil {
			return "", err
		}
	}
	return path, nil
}
