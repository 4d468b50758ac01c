// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package sanity

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/solver"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CategoryEmptyDataset     = "empty_dataset"
	CategoryOverfitting      = "overfitting"
	CategoryInsufficientData = "insufficient_data"
)

const (
	// HardOverfitRatio is the rows per million trainable params below which
	// memorization is near certain.
	HardOverfitRatio = 10.0
	// SoftOverfitRatio is the rows per million trainable params below which
	// overfitting is likely.
	SoftOverfitRatio = 25.0
)

// SanityWarning is a training-quality concern that does not affect memory.
type SanityWarning struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
}

// Format renders the warning as "[severity] category: message".
func (w SanityWarning) Format() string {
	return fmt.Sprintf("[%s] %s: %s", w.Severity, w.Category, w.Message)
}

type check struct {
	dataset   model.DatasetProfile
	config    solver.TrainingConfig
	trainable int64
}

// rule inspects a check and returns nil when there is nothing to report.
// A rule returning stop ends the evaluation.
type rule func(c check) (w *SanityWarning, stop bool)

var rules = []rule{
	emptyDataset,
	overfitting,
	insufficientData,
}

// CheckTrainingSanity applies the rules in order and returns their findings.
func CheckTrainingSanity(dataset model.DatasetProfile, config solver.TrainingConfig, trainableParams int64) []SanityWarning {
	c := check{dataset: dataset, config: config, trainable: trainableParams}
	var warnings []SanityWarning
	for _, r := range rules {
		w, stop := r(c)
		if w != nil {
			warnings = append(warnings, *w)
		}
		if stop {
			break
		}
	}
	return warnings
}

// FormatAll renders every warning with Format.
func FormatAll(warnings []SanityWarning) []string {
	return lo.Map(warnings, func(w SanityWarning, _ int) string { return w.Format() })
}

func emptyDataset(c check) (*SanityWarning, bool) {
	if c.dataset.NumRows > 0 {
		return nil, false
	}
	return &SanityWarning{
		Severity: SeverityCritical,
		Category: CategoryEmptyDataset,
		Message:  fmt.Sprintf("%s has no rows; there is nothing to train on", c.dataset.Source),
	}, true
}

func overfitting(c check) (*SanityWarning, bool) {
	if c.trainable <= 0 {
		return nil, false
	}
	millions := float64(c.trainable) / 1e6
	ratio := float64(c.dataset.NumRows) / millions
	severity := SeverityWarning
	switch {
	case ratio < HardOverfitRatio:
		severity = SeverityCritical
	case ratio < SoftOverfitRatio:
	default:
		return nil, false
	}
	return &SanityWarning{
		Severity: severity,
		Category: CategoryOverfitting,
		Message: fmt.Sprintf("%d rows for %.1fM trainable params (%.1f rows per million) risks overfitting; add data or lower the LoRA rank",
			c.dataset.NumRows, millions, ratio),
	}, false
}

func insufficientData(c check) (*SanityWarning, bool) {
	if c.dataset.NumRows >= c.config.EffectiveBatchSize {
		return nil, false
	}
	return &SanityWarning{
		Severity: SeverityWarning,
		Category: CategoryInsufficientData,
		Message: fmt.Sprintf("%d rows is fewer than one effective batch of %d; every optimizer step sees the whole dataset",
			c.dataset.NumRows, c.config.EffectiveBatchSize),
	}, false
}
