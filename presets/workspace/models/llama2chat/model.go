// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package llama2chat

import (
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
	"github.com/kaito-project/fitcheck/presets/workspace/models/llama2"
)

func init() {
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-7b-chat",
		Instance: &llama2chatA,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-13b-chat",
		Instance: &llama2chatB,
	})
	plugin.FitcheckModelRegister.Register(&plugin.Registration{
		Name:     "llama-2-70b-chat",
		Instance: &llama2chatC,
	})
}

var (
	llama2chatA = llama2Chat{size: "7b", id: "meta-llama/Llama-2-7b-chat-hf"}
	llama2chatB = llama2Chat{size: "13b", id: "meta-llama/Llama-2-13b-chat-hf"}
	llama2chatC = llama2Chat{size: "70b", id: "meta-llama/Llama-2-70b-chat-hf"}
)

// llama2Chat shares its architecture with the base text model of the same size.
type llama2Chat struct {
	size string
	id   string
}

func (l *llama2Chat) GetModelProfile() model.ModelProfile {
	return llama2.Profile(l.size, l.id)
}
func (*llama2Chat) GetPresetParameters() *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName: "LLaMa2",
	}
}
func (*llama2Chat) SupportTuning() bool {
	return false
}
