// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package llama3

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetLlama3_1_8BModel,
		Instance: &llama3A,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetLlama3_1_8BInstructModel,
		Instance: &llama3B,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetLlama3_1_70BModel,
		Instance: &llama3C,
	})
}

var (
	PresetLlama3_1_8BModel         = "llama-3.1-8b"
	PresetLlama3_1_8BInstructModel = PresetLlama3_1_8BModel + "-instruct"
	PresetLlama3_1_70BModel        = "llama-3.1-70b"
)

func llama3_1_8b(id string) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            4096,
		NumLayers:             32,
		NumAttentionHeads:     32,
		NumKVHeads:            8,
		IntermediateSize:      14336,
		VocabSize:             128256,
		MaxPositionEmbeddings: 131072,
		TotalParams:           8_030_261_248,
	})
}

func llama3_1_70b(id string) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            8192,
		NumLayers:             80,
		NumAttentionHeads:     64,
		NumKVHeads:            8,
		IntermediateSize:      28672,
		VocabSize:             128256,
		MaxPositionEmbeddings: 131072,
		TotalParams:           70_553_706_496,
	})
}

var (
	llama3A = llama3{
		profile: llama3_1_8b("meta-llama/Llama-3.1-8B"),
		aliases: []string{"meta-llama/Meta-Llama-3.1-8B", "llama3.1-8b"},
	}
	llama3B = llama3{
		profile: llama3_1_8b("meta-llama/Llama-3.1-8B-Instruct"),
		aliases: []string{"meta-llama/Meta-Llama-3.1-8B-Instruct", "llama3.1-8b-instruct"},
	}
	llama3C = llama3{
		profile: llama3_1_70b("meta-llama/Llama-3.1-70B"),
		aliases: []string{"meta-llama/Meta-Llama-3.1-70B", "llama3.1-70b"},
	}
)

type llama3 struct {
	profile model.ModelProfile
	aliases []string
}

func (l *llama3) GetModelProfile() model.ModelProfile {
	return l.profile
}
func (l *llama3) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "LLaMa3",
		Aliases:         l.aliases,
	}
}
func (*llama3) SupportTuning() bool {
	return true
}
