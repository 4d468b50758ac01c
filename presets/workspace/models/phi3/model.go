// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package phi3

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi3Mini4kModel,
		Instance: &phi3MiniA,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi3Mini128kModel,
		Instance: &phi3MiniB,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi3Medium4kModel,
		Instance: &phi3MediumA,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi3Medium128kModel,
		Instance: &phi3MediumB,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi3_5MiniInstruct,
		Instance: &phi3_5MiniC,
	})
}

var (
	PresetPhi3Mini4kModel     = "phi-3-mini-4k-instruct"
	PresetPhi3Mini128kModel   = "phi-3-mini-128k-instruct"
	PresetPhi3Medium4kModel   = "phi-3-medium-4k-instruct"
	PresetPhi3Medium128kModel = "phi-3-medium-128k-instruct"
	PresetPhi3_5MiniInstruct  = "phi-3.5-mini-instruct"

	PresetPhiTagMap = map[string]string{
		"Phi3Mini4kInstruct":     "0.0.4",
		"Phi3Mini128kInstruct":   "0.0.4",
		"Phi3Medium4kInstruct":   "0.0.4",
		"Phi3Medium128kInstruct": "0.0.4",
		"Phi3_5MiniInstruct":     "0.0.2",
	}
)

func miniProfile(id string, maxPositions int) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "Phi3ForCausalLM",
		Family:                "phi3",
		HiddenSize:            3072,
		NumLayers:             32,
		NumAttentionHeads:     32,
		IntermediateSize:      8192,
		VocabSize:             32064,
		MaxPositionEmbeddings: maxPositions,
		TotalParams:           3_821_079_552,
	})
}

func mediumProfile(id string, maxPositions int) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "Phi3ForCausalLM",
		Family:                "phi3",
		HiddenSize:            5120,
		NumLayers:             40,
		NumAttentionHeads:     40,
		NumKVHeads:            10,
		IntermediateSize:      17920,
		VocabSize:             32064,
		MaxPositionEmbeddings: maxPositions,
		TotalParams:           13_960_238_080,
	})
}

var (
	phi3MiniA   = phi3{profile: miniProfile("microsoft/Phi-3-mini-4k-instruct", 4096), tag: PresetPhiTagMap["Phi3Mini4kInstruct"]}
	phi3MiniB   = phi3{profile: miniProfile("microsoft/Phi-3-mini-128k-instruct", 131072), tag: PresetPhiTagMap["Phi3Mini128kInstruct"]}
	phi3MediumA = phi3{profile: mediumProfile("microsoft/Phi-3-medium-4k-instruct", 4096), tag: PresetPhiTagMap["Phi3Medium4kInstruct"]}
	phi3MediumB = phi3{profile: mediumProfile("microsoft/Phi-3-medium-128k-instruct", 131072), tag: PresetPhiTagMap["Phi3Medium128kInstruct"]}
	phi3_5MiniC = phi3{profile: miniProfile("microsoft/Phi-3.5-mini-instruct", 131072), tag: PresetPhiTagMap["Phi3_5MiniInstruct"]}
)

type phi3 struct {
	profile model.ModelProfile
	tag     string
}

func (p *phi3) GetModelProfile() model.ModelProfile {
	return p.profile
}
func (p *phi3) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "Phi3",
		Tag:             p.tag,
	}
}
func (*phi3) SupportTuning() bool {
	return true
}
