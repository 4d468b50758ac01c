// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package vram

import (
	"encoding/json"

	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// ComponentEstimate is one line of a memory breakdown.
type ComponentEstimate struct {
	Name        string  `json:"name"`
	Bytes       float64 `json:"bytes"`
	Description string  `json:"description"`
}

func (c ComponentEstimate) GB() float64 {
	return c.Bytes / consts.GiBToBytes
}

// VRAMBreakdown is the estimated device memory of one training step. Totals are
// always derived from the components.
type VRAMBreakdown struct {
	Weights            ComponentEstimate `json:"weights"`
	Optimizer          ComponentEstimate `json:"optimizer"`
	Gradients          ComponentEstimate `json:"gradients"`
	Activations        ComponentEstimate `json:"activations"`
	LogitsBuffer       ComponentEstimate `json:"logits_buffer"`
	DynamicMarginBytes float64           `json:"dynamic_margin_bytes"`
}

// Components lists the steady-state components in display order.
func (b VRAMBreakdown) Components() []ComponentEstimate {
	return []ComponentEstimate{b.Weights, b.Optimizer, b.Gradients, b.Activations, b.LogitsBuffer}
}

// SteadyStateBytes is the sum of the components without the dynamic margin.
func (b VRAMBreakdown) SteadyStateBytes() float64 {
	var total float64
	for _, c := range b.Components() {
		total += c.Bytes
	}
	return total
}

func (b VRAMBreakdown) TotalBytes() float64 {
	return b.SteadyStateBytes() + b.DynamicMarginBytes
}

func (b VRAMBreakdown) TotalGB() float64 {
	return b.TotalBytes() / consts.GiBToBytes
}

// MarshalJSON adds the derived totals to the serialized form.
func (b VRAMBreakdown) MarshalJSON() ([]byte, error) {
	type fields VRAMBreakdown
	return json.Marshal(struct {
		fields
		TotalBytes float64 `json:"total_bytes"`
		TotalGB    float64 `json:"total_gb"`
	}{fields(b), b.TotalBytes(), b.TotalGB()})
}
