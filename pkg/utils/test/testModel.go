// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package test

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

const (
	TestModelName       = "test-model"
	TestModelID         = "test/model"
	TestTinyModelName   = "test-tiny-model"
	TestTinyModelID     = "test/tiny"
	TestNoTuningModel   = "test-no-tuning-model"
	TestNoTuningModelID = "test/no-tuning"
)

// Llama8BProfile has the real Llama 3.1 8B dimensions with a rounded parameter count.
func Llama8BProfile() model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:               "meta-llama/Llama-3.1-8B",
		Architecture:          "LlamaForCausalLM",
		Family:                "llama",
		HiddenSize:            4096,
		NumLayers:             32,
		NumAttentionHeads:     32,
		NumKVHeads:            8,
		IntermediateSize:      14336,
		VocabSize:             128256,
		MaxPositionEmbeddings: 131072,
		TotalParams:           8_030_000_000,
	})
}

// TinyProfile is a small model that fits every catalog GPU with any method.
func TinyProfile() model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:           TestTinyModelID,
		Architecture:      "LlamaForCausalLM",
		Family:            "llama",
		HiddenSize:        256,
		NumLayers:         4,
		NumAttentionHeads: 4,
		IntermediateSize:  1024,
		VocabSize:         1000,
		TotalParams:       5_000_000,
	})
}

type testModel struct {
	profile model.ModelProfile
	tuning  bool
}

func (m *testModel) GetModelProfile() model.ModelProfile {
	return m.profile
}

func (m *testModel) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{ModelFamilyName: m.profile.Family}
}

func (m *testModel) SupportTuning() bool {
	return m.tuning
}

func RegisterTestModel() {
	llama := Llama8BProfile()
	llama.ModelID = TestModelID
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     TestModelName,
		Instance: &testModel{profile: llama, tuning: true},
	})

	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     TestTinyModelName,
		Instance: &testModel{profile: TinyProfile(), tuning: true},
	})

	noTuning := TinyProfile()
	noTuning.ModelID = TestNoTuningModelID
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     TestNoTuningModel,
		Instance: &testModel{profile: noTuning},
	})
}
