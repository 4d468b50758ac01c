// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package resolver

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

// ModelResolver turns a model identifier into an architecture profile.
// Implementations return a NotFound error when they do not know the identifier.
type ModelResolver interface {
	Resolve(ctx context.Context, modelID string) (model.ModelProfile, error)
}

// PresetResolver looks models up in the built-in preset registry.
type PresetResolver struct {
	Register *plugin.ModelRegister
}

func NewPresetResolver() *PresetResolver {
	return &PresetResolver{Register: &plugin.FitcheckModelRegister}
}

func (r *PresetResolver) Resolve(ctx context.Context, modelID string) (model.ModelProfile, error) {
	m, ok := r.Register.Get(modelID)
	if !ok {
		names := r.Register.ListModelNames()
		return model.ModelProfile{}, utils.NewNotFound("models", modelID, names, utils.DidYouMean(modelID, names))
	}
	p := m.GetModelProfile()
	if !m.SupportTuning() {
		klog.FromContext(ctx).V(2).Info("Preset is not published for tuning, estimating anyway", "model", modelID)
	}
	return p, nil
}

// Chain tries each resolver in order and returns the first result that is not NotFound.
type Chain []ModelResolver

func (c Chain) Resolve(ctx context.Context, modelID string) (model.ModelProfile, error) {
	var lastErr error
	for _, r := range c {
		p, err := r.Resolve(ctx, modelID)
		if err == nil {
			return p, nil
		}
		if !utils.IsNotFound(err) {
			return model.ModelProfile{}, fmt.Errorf("resolving model %q: %w", modelID, err)
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = utils.NewNotFound("models", modelID, nil)
	}
	return model.ModelProfile{}, lastErr
}

// NewDefaultResolver resolves local config.json paths first, then preset names.
func NewDefaultResolver() ModelResolver {
	return Chain{NewLocalConfigResolver(), NewPresetResolver()}
}
