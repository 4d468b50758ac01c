// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package phi2

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetPhi2Model,
		Instance: &phiA,
	})
}

var (
	PresetPhi2Model = "phi-2"

	PresetPhiTagMap = map[string]string{
		"Phi2": "0.0.7",
	}
)

var phiA phi2

type phi2 struct{}

func (*phi2) GetModelProfile() model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               "microsoft/phi-2",
		Architecture:          "PhiForCausalLM",
		Family:                "phi",
		HiddenSize:            2560,
		NumLayers:             32,
		NumAttentionHeads:     32,
		IntermediateSize:      10240,
		VocabSize:             51200,
		MaxPositionEmbeddings: 2048,
		TotalParams:           2_779_683_840,
	})
}
func (*phi2) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "Phi",
		Tag:             PresetPhiTagMap["Phi2"],
	}
}
func (*phi2) SupportTuning() bool {
	return true
}
