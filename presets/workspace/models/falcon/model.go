// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package falcon

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetFalcon7BModel,
		Instance: &falconA,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetFalcon7BInstructModel,
		Instance: &falconB,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetFalcon40BModel,
		Instance: &falconC,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     PresetFalcon40BInstructModel,
		Instance: &falconD,
	})
}

var (
	PresetFalcon7BModel          = "falcon-7b"
	PresetFalcon40BModel         = "falcon-40b"
	PresetFalcon7BInstructModel  = PresetFalcon7BModel + "-instruct"
	PresetFalcon40BInstructModel = PresetFalcon40BModel + "-instruct"

	PresetFalconTagMap = map[string]string{
		"Falcon7B":          "0.0.7",
		"Falcon7BInstruct":  "0.0.7",
		"Falcon40B":         "0.0.8",
		"Falcon40BInstruct": "0.0.8",
	}
)

// falcon7bProfile uses multi-query attention: a single shared key/value head.
func falcon7bProfile(id string) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "FalconForCausalLM",
		Family:                "falcon",
		HiddenSize:            4544,
		NumLayers:             32,
		NumAttentionHeads:     71,
		NumKVHeads:            1,
		IntermediateSize:      18176,
		VocabSize:             65024,
		MaxPositionEmbeddings: 2048,
		TotalParams:           6_921_720_704,
	})
}

func falcon40bProfile(id string) model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               id,
		Architecture:          "FalconForCausalLM",
		Family:                "falcon",
		HiddenSize:            8192,
		NumLayers:             60,
		NumAttentionHeads:     128,
		NumKVHeads:            8,
		IntermediateSize:      32768,
		VocabSize:             65024,
		MaxPositionEmbeddings: 2048,
		TotalParams:           41_303_293_952,
	})
}

var (
	falconA = falcon{profile: falcon7bProfile("tiiuae/falcon-7b"), tag: PresetFalconTagMap["Falcon7B"], tuning: true}
	falconB = falcon{profile: falcon7bProfile("tiiuae/falcon-7b-instruct"), tag: PresetFalconTagMap["Falcon7BInstruct"]}
	falconC = falcon{profile: falcon40bProfile("tiiuae/falcon-40b"), tag: PresetFalconTagMap["Falcon40B"], tuning: true}
	falconD = falcon{profile: falcon40bProfile("tiiuae/falcon-40b-instruct"), tag: PresetFalconTagMap["Falcon40BInstruct"]}
)

type falcon struct {
	profile model.ModelProfile
	tag     string
	tuning  bool
}

func (f *falcon) GetModelProfile() model.ModelProfile {
	return f.profile
}
func (f *falcon) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "Falcon",
		Tag:             f.tag,
	}
}
func (f *falcon) SupportTuning() bool {
	return f.tuning
}
