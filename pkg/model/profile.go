// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package model

import (
	"fmt"
	"math"
	"strings"

	"knative.dev/pkg/apis"
)

// TrainingMethod selects which memory formulas apply to a fine-tuning run.
type TrainingMethod string

const (
	TrainingMethodFull  TrainingMethod = "full"
	TrainingMethodLora  TrainingMethod = "lora"
	TrainingMethodQLora TrainingMethod = "qlora"
)

// TrainingMethods is the ordered set of supported methods.
var TrainingMethods = []TrainingMethod{TrainingMethodFull, TrainingMethodLora, TrainingMethodQLora}

// ParseTrainingMethod resolves a method name case-insensitively.
func ParseTrainingMethod(s string) (TrainingMethod, *apis.FieldError) {
	m := TrainingMethod(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range TrainingMethods {
		if m == known {
			return m, nil
		}
	}
	return "", apis.ErrInvalidValue(s, "method",
		fmt.Sprintf("supported methods are %s, %s and %s", TrainingMethodFull, TrainingMethodLora, TrainingMethodQLora))
}

// IsAdapter reports whether only an adapter is trained on top of a frozen base.
func (m TrainingMethod) IsAdapter() bool {
	return m == TrainingMethodLora || m == TrainingMethodQLora
}

// ModelProfile describes the architecture of a resolved model.
type ModelProfile struct {
	ModelID           string `json:"model_id"`
	Architecture      string `json:"architecture"`
	Family            string `json:"family"`
	HiddenSize        int    `json:"hidden_size"`
	NumLayers         int    `json:"num_layers"`
	NumAttentionHeads int    `json:"num_attention_heads"`
	NumKVHeads        int    `json:"num_kv_heads"`
	IntermediateSize  int    `json:"intermediate_size"`
	VocabSize         int    `json:"vocab_size"`
	// MaxPositionEmbeddings is the longest context the model supports; 0 when unknown.
	MaxPositionEmbeddings int     `json:"max_position_embeddings,omitempty"`
	TotalParams           int64   `json:"total_params"`
	TotalParamsB          float64 `json:"total_params_b"`
}

// NewModelProfile fills the derived fields of p.
func NewModelProfile(p ModelProfile) ModelProfile {
	if p.NumKVHeads == 0 {
		p.NumKVHeads = p.NumAttentionHeads
	}
	p.TotalParamsB = ParamsToBillions(p.TotalParams)
	return p
}

// ParamsToBillions rounds a parameter count to two decimals of billions for display.
func ParamsToBillions(params int64) float64 {
	return math.Round(float64(params)/1e7) / 100
}

// HeadDim is the per-head width of the attention projections.
func (p ModelProfile) HeadDim() int {
	if p.NumAttentionHeads == 0 {
		return p.HiddenSize
	}
	return p.HiddenSize / p.NumAttentionHeads
}

// KVDim is the output width of the key and value projections.
func (p ModelProfile) KVDim() int {
	return p.HeadDim() * p.NumKVHeads
}

// FFNSize is the MLP intermediate width, defaulting to 4x hidden when unknown.
func (p ModelProfile) FFNSize() int {
	if p.IntermediateSize > 0 {
		return p.IntermediateSize
	}
	return 4 * p.HiddenSize
}

func (p ModelProfile) Validate() (errs *apis.FieldError) {
	if p.ModelID == "" {
		errs = errs.Also(apis.ErrMissingField("model_id"))
	}
	for field, v := range map[string]int{
		"hidden_size":         p.HiddenSize,
		"num_layers":          p.NumLayers,
		"num_attention_heads": p.NumAttentionHeads,
		"vocab_size":          p.VocabSize,
	} {
		if v <= 0 {
			errs = errs.Also(apis.ErrInvalidValue(v, field, "must be positive"))
		}
	}
	if p.TotalParams <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(p.TotalParams, "total_params", "must be positive"))
	}
	return errs
}

// DatasetFormat is the detected record layout of a training dataset.
type DatasetFormat string

const (
	DatasetFormatAlpaca   DatasetFormat = "alpaca"
	DatasetFormatShareGPT DatasetFormat = "sharegpt"
	DatasetFormatRawText  DatasetFormat = "raw-text"
	DatasetFormatUnknown  DatasetFormat = "unknown"
)

// SeqLenStats holds token-length percentiles over a dataset sample.
type SeqLenStats struct {
	P50 int `json:"p50"`
	P95 int `json:"p95"`
	P99 int `json:"p99"`
	Max int `json:"max"`
}

// DatasetProfile is the summary produced by the dataset analyzer.
type DatasetProfile struct {
	Source         string        `json:"source"`
	NumRows        int           `json:"num_rows"`
	DetectedFormat DatasetFormat `json:"detected_format"`
	SeqLenStats    *SeqLenStats  `json:"seq_len_stats,omitempty"`
}

// LoRAConfig is the adapter shape for lora and qlora runs.
type LoRAConfig struct {
	Rank int `json:"rank"`
	// TargetModules is ordered; empty selects the family defaults.
	TargetModules []string `json:"target_modules,omitempty"`
}

func (c LoRAConfig) Validate() (errs *apis.FieldError) {
	if c.Rank <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(c.Rank, "lora_rank", "must be a positive integer"))
	}
	for i, t := range c.TargetModules {
		if strings.TrimSpace(t) == "" {
			errs = errs.Also(apis.ErrInvalidValue(t, fmt.Sprintf("target_modules[%d]", i), "must not be empty"))
		}
	}
	return errs
}
