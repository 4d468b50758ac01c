// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package llama2

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-7b",
		Instance: &llama2A,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-13b",
		Instance: &llama2B,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-70b",
		Instance: &llama2C,
	})
}

// Llama2Profiles holds the architectures shared by the text and chat presets, keyed by size.
var Llama2Profiles = map[string]model.ModelProfile{
	"7b": {
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            4096,
		NumLayers:             32,
		NumAttentionHeads:     32,
		IntermediateSize:      11008,
		VocabSize:             32000,
		MaxPositionEmbeddings: 4096,
		TotalParams:           6_738_415_616,
	},
	"13b": {
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            5120,
		NumLayers:             40,
		NumAttentionHeads:     40,
		IntermediateSize:      13824,
		VocabSize:             32000,
		MaxPositionEmbeddings: 4096,
		TotalParams:           13_015_864_320,
	},
	"70b": {
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            8192,
		NumLayers:             80,
		NumAttentionHeads:     64,
		NumKVHeads:            8,
		IntermediateSize:      28672,
		VocabSize:             32000,
		MaxPositionEmbeddings: 4096,
		TotalParams:           68_976_648_192,
	},
}

// Profile returns the size's architecture under the given model ID.
func Profile(size, id string) model.ModelProfile {
	p := Llama2Profiles[size]
	p.ModelID = id
	return model.NewModelProfile(p)
}

var (
	llama2A = llama2Text{size: "7b", id: "meta-llama/Llama-2-7b-hf"}
	llama2B = llama2Text{size: "13b", id: "meta-llama/Llama-2-13b-hf"}
	llama2C = llama2Text{size: "70b", id: "meta-llama/Llama-2-70b-hf"}
)

type llama2Text struct {
	size string
	id   string
}

func (l *llama2Text) GetModelProfile() model.ModelProfile {
	return Profile(l.size, l.id)
}
func (*llama2Text) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "LLaMa2",
		// Tag: llama has private image access mode. The image tag is determined by the user.
	}
}
func (*llama2Text) SupportTuning() bool {
	return false
}
