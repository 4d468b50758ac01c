// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package model

type Model interface {
	GetModelProfile() ModelProfile
	GetPresetParameters() *PresetParam
	SupportTuning() bool
}

// PresetParam defines the registry metadata of a preset model.
type PresetParam struct {
	ModelFamilyName string   // The name of the model family.
	Tag             string   // The preset version, as published in the kaito preset images.
	Aliases         []string // Extra names the preset resolves from, e.g. the short kaito preset name.
}
