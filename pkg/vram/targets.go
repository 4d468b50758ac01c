// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package vram

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kaito-project/fitcheck/pkg/model"
)

var (
	llamaTargets  = []string{"q_proj", "k_proj", "v_proj", "o_proj", "gate_proj", "up_proj", "down_proj"}
	falconTargets = []string{"query_key_value", "dense", "dense_h_to_4h", "dense_4h_to_h"}
	phiTargets    = []string{"q_proj", "k_proj", "v_proj", "dense", "fc1", "fc2"}
	phi3Targets   = []string{"qkv_proj", "o_proj", "gate_up_proj", "down_proj"}

	familyTargets = map[string][]string{
		"llama":   llamaTargets,
		"mistral": llamaTargets,
		"qwen":    llamaTargets,
		"qwen2":   llamaTargets,
		"falcon":  falconTargets,
		"phi":     phiTargets,
		"phi3":    phi3Targets,
	}
)

// DefaultTargetModules returns the LoRA target modules applied when none are given.
// Unknown families get the llama-style attention and MLP projections.
func DefaultTargetModules(family string) []string {
	if t, ok := familyTargets[strings.ToLower(family)]; ok {
		return append([]string{}, t...)
	}
	return append([]string{}, llamaTargets...)
}

// moduleShape returns the input and output width of a linear layer inside one decoder block.
func moduleShape(p model.ModelProfile, name string) (in, out int) {
	h, kv, ffn := p.HiddenSize, p.KVDim(), p.FFNSize()
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	switch strings.ToLower(name) {
	case "q_proj", "o_proj", "dense", "out_proj":
		return h, h
	case "k_proj", "v_proj":
		return h, kv
	case "gate_proj", "up_proj", "dense_h_to_4h", "fc1", "w1", "w3":
		return h, ffn
	case "down_proj", "dense_4h_to_h", "fc2", "w2":
		return ffn, h
	case "query_key_value", "qkv_proj", "wqkv":
		return h, h + 2*kv
	case "gate_up_proj":
		return h, 2 * ffn
	default:
		return h, h
	}
}

// loraParams counts the adapter parameters for rank r over the distinct target modules.
func loraParams(p model.ModelProfile, lora model.LoRAConfig) int64 {
	targets := lora.TargetModules
	if len(targets) == 0 {
		targets = DefaultTargetModules(p.Family)
	}
	seen := sets.New[string]()
	var perLayer int64
	for _, t := range targets {
		if seen.Has(t) {
			continue
		}
		seen.Insert(t)
		in, out := moduleShape(p, t)
		perLayer += int64(lora.Rank) * int64(in+out)
	}
	return perLayer * int64(p.NumLayers)
}
