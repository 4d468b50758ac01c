// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package plan

import (
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/solver"
)

const (
	DatasetSourceNone = "none"
)

// Options are the caller's inputs to a plan. Nil pointers mean "not given".
type Options struct {
	ModelID string
	Method  string
	GPU     string
	SeqLen  *int
	// LoRARank of 0 selects the default rank.
	LoRARank    int
	LoRATargets []string
	// BatchSize fixes the micro batch instead of searching for one.
	BatchSize   *int
	EvalSeqLen  *int
	DatasetPath string
}

// validate checks the numeric options. The method, model and GPU are validated by
// the collaborators that resolve them.
func (o Options) validate() (errs *apis.FieldError) {
	if o.LoRARank < 0 {
		errs = errs.Also(apis.ErrInvalidValue(o.LoRARank, "lora_rank", "must be a positive integer"))
	}
	if o.BatchSize != nil && *o.BatchSize <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(*o.BatchSize, "batch_size", "must be a positive integer"))
	}
	if o.EvalSeqLen != nil && *o.EvalSeqLen <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(*o.EvalSeqLen, "eval_seq_len", "must be a positive integer"))
	}
	return errs
}

// PlanReport is the flat, serializable result of a plan.
type PlanReport struct {
	ModelID             string  `json:"model_id"`
	ArchitectureSummary string  `json:"architecture_summary"`
	TotalParamsB        float64 `json:"total_params_b"`
	VocabSize           int     `json:"vocab_size"`
	NumLayers           int     `json:"num_layers"`

	DatasetSource   string              `json:"dataset_source"`
	DatasetRows     int                 `json:"dataset_rows"`
	DatasetFormat   model.DatasetFormat `json:"dataset_format"`
	SeqLenStats     *model.SeqLenStats  `json:"seq_len_stats"`
	SeqLenUsed      int                 `json:"seq_len_used"`
	SeqLenReasoning string              `json:"seq_len_reasoning"`

	HardwareName string  `json:"hardware_name"`
	TotalVRAMGB  float64 `json:"total_vram_gb"`
	OverheadGB   float64 `json:"overhead_gb"`
	UsableVRAMGB float64 `json:"usable_vram_gb"`

	Method          model.TrainingMethod `json:"method"`
	TrainableParams int64                `json:"trainable_params"`
	TrainablePct    float64              `json:"trainable_pct"`
	// SamplesPerEpoch is the number of dataset rows seen per epoch; 0 without a dataset.
	SamplesPerEpoch int `json:"samples_per_epoch"`

	SolverResult solver.SolverResult `json:"solver_result"`
}
