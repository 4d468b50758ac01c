// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package solver

import (
	"bytes"
	"encoding/json"
	"math"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/kaito-project/fitcheck/pkg/vram"
)

const (
	VerdictFits       = "fits"
	VerdictDoesNotFit = "does_not_fit"

	ReasonVerdict       = "verdict"
	ReasonDetail        = "detail"
	ReasonBatchSize     = "micro_batch_size"
	ReasonAccumulation  = "gradient_accumulation"
	ReasonCheckpointing = "gradient_checkpointing"
	ReasonMargin        = "margin"
	ReasonEvalPeak      = "eval_peak_gb"
)

// Reasoning is an ordered set of annotations explaining a config. The zero value is empty.
type Reasoning struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewReasoning builds a Reasoning from alternating keys and values.
func NewReasoning(kv ...string) Reasoning {
	r := Reasoning{m: orderedmap.New[string, string]()}
	for i := 0; i+1 < len(kv); i += 2 {
		r.m.Set(kv[i], kv[i+1])
	}
	return r
}

// With returns a copy of r with key set to value. r itself is unchanged.
func (r Reasoning) With(key, value string) Reasoning {
	out := NewReasoning()
	for _, k := range r.Keys() {
		v, _ := r.Get(k)
		out.m.Set(k, v)
	}
	out.m.Set(key, value)
	return out
}

func (r Reasoning) Get(key string) (string, bool) {
	if r.m == nil {
		return "", false
	}
	return r.m.Get(key)
}

// Keys returns the annotation keys in insertion order.
func (r Reasoning) Keys() []string {
	if r.m == nil {
		return nil
	}
	keys := make([]string, 0, r.m.Len())
	for pair := r.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (r Reasoning) Len() int {
	if r.m == nil {
		return 0
	}
	return r.m.Len()
}

// Equal compares keys, order and values.
func (r Reasoning) Equal(o Reasoning) bool {
	a, b := r.Keys(), o.Keys()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		va, _ := r.Get(a[i])
		vb, _ := o.Get(b[i])
		if a[i] != b[i] || va != vb {
			return false
		}
	}
	return true
}

func (r Reasoning) MarshalJSON() ([]byte, error) {
	if r.m == nil {
		return []byte("{}"), nil
	}
	return r.m.MarshalJSON()
}

func (r *Reasoning) UnmarshalJSON(data []byte) error {
	r.m = orderedmap.New[string, string]()
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	return r.m.UnmarshalJSON(data)
}

// TrainingConfig is one candidate training setup and its memory estimate.
// Values are built by newTrainingConfig and never modified afterwards.
type TrainingConfig struct {
	MicroBatchSize            int                `json:"micro_batch_size"`
	GradientAccumulationSteps int                `json:"gradient_accumulation_steps"`
	EffectiveBatchSize        int                `json:"effective_batch_size"`
	SeqLen                    int                `json:"seq_len"`
	GradientCheckpointing     bool               `json:"gradient_checkpointing"`
	Optimizer                 string             `json:"optimizer"`
	LoRARank                  int                `json:"lora_rank,omitempty"`
	LoRATargets               []string           `json:"lora_targets,omitempty"`
	VRAMBreakdown             vram.VRAMBreakdown `json:"vram_breakdown"`
	Reasoning                 Reasoning          `json:"reasoning"`
}

// Fits reports whether the config's verdict is fits.
func (c TrainingConfig) Fits() bool {
	v, _ := c.Reasoning.Get(ReasonVerdict)
	return v == VerdictFits
}

func (c TrainingConfig) Verdict() string {
	v, _ := c.Reasoning.Get(ReasonVerdict)
	return v
}

// withReasoning returns a copy of c with an extra annotation.
func (c TrainingConfig) withReasoning(key, value string) TrainingConfig {
	c.Reasoning = c.Reasoning.With(key, value)
	c.LoRATargets = append([]string(nil), c.LoRATargets...)
	return c
}

// SolverResult is the outcome of a search or a fixed estimate.
type SolverResult struct {
	Recommended TrainingConfig  `json:"recommended"`
	Aggressive  *TrainingConfig `json:"aggressive,omitempty"`
	Warnings    []string        `json:"warnings"`
}

// gradientAccumulationSteps reaches at least target samples per optimizer step.
func gradientAccumulationSteps(microBatch, target int) int {
	return max(1, int(math.Ceil(float64(target)/float64(microBatch))))
}

// MarshalJSON keeps warnings as an array when empty.
func (r SolverResult) MarshalJSON() ([]byte, error) {
	type fields SolverResult
	f := fields(r)
	if f.Warnings == nil {
		f.Warnings = []string{}
	}
	return json.Marshal(f)
}
