// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package mistral

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetMistral7BModel,
		Instance: &mistralA,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetMistral7BInstructModel,
		Instance: &mistralB,
	})
}

var (
	PresetMistral7BModel         = "mistral-7b"
	PresetMistral7BInstructModel = PresetMistral7BModel + "-instruct"

	PresetMistralTagMap = map[string]string{
		"Mistral7B":         "0.0.8",
		"Mistral7BInstruct": "0.0.8",
	}
)

func mistral7bProfile(id string) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "MistralForCausalLM",
		Family:                "mistral",
		HiddenSize:            4096,
		NumLayers:             32,
		NumAttentionHeads:     32,
		NumKVHeads:            8,
		IntermediateSize:      14336,
		VocabSize:             32768,
		MaxPositionEmbeddings: 32768,
		TotalParams:           7_248_023_552,
	})
}

var (
	mistralA = mistral{profile: mistral7bProfile("mistralai/Mistral-7B-v0.3"), tag: PresetMistralTagMap["Mistral7B"], tuning: true}
	mistralB = mistral{profile: mistral7bProfile("mistralai/Mistral-7B-Instruct-v0.3"), tag: PresetMistralTagMap["Mistral7BInstruct"]}
)

type mistral struct {
	profile model.ModelProfile
	tag     string
	tuning  bool
}

func (m *mistral) GetModelProfile() model.ModelProfile {
	return m.profile
}
func (m *mistral) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "Mistral",
		Tag:             m.tag,
	}
}
func (m *mistral) SupportTuning() bool {
	return m.tuning
}
