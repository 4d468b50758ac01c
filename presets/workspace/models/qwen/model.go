// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package qwen

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetQwen2_5Coder7BInstructModel,
		Instance: &qwen2_5coder7bInst,
	})
}

var (
	PresetQwen2_5Coder7BInstructModel = "qwen2.5-coder-7b-instruct"

	PresetTagMap = map[string]string{
		"Qwen2.5-Coder-7B-Instruct": "0.0.1",
	}
)

var qwen2_5coder7bInst qwen2_5Coder7BInstruct

type qwen2_5Coder7BInstruct struct{}

// GetModelProfile reports untied input and output embeddings; the 152k vocabulary
// makes the logits buffer dominate at long sequence lengths.
func (*qwen2_5Coder7BInstruct) GetModelProfile() model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               "Qwen/Qwen2.5-Coder-7B-Instruct",
		Architecture:          "Qwen2ForCausalLM",
		Family:                "qwen",
		HiddenSize:            3584,
		NumLayers:             28,
		NumAttentionHeads:     28,
		NumKVHeads:            4,
		IntermediateSize:      18944,
		VocabSize:             152064,
		MaxPositionEmbeddings: 32768,
		TotalParams:           7_615_616_512,
	})
}
func (*qwen2_5Coder7BInstruct) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "Qwen",
		Tag:             PresetTagMap["Qwen2.5-Coder-7B-Instruct"],
	}
}
func (*qwen2_5Coder7BInstruct) SupportTuning() bool {
	return true
}
