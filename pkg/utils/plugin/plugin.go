// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package plugin

import (
	"sort"
	"strings"
	"sync"

	"github.com/kaito-project/fitcheck/pkg/model"
)

type Registration struct {
	Name     string
	Instance model.Model
}

type ModelRegister struct {
	sync.RWMutex
	models  map[string]*Registration
	aliases map[string]string
}

var FitcheckModelRegister ModelRegister

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register allows model to be added. The preset's model ID and aliases resolve to it as well.
func (reg *ModelRegister) Register(r *Registration) {
	reg.Lock()
	defer reg.Unlock()
	if r.Name == "" {
		panic("model name is not specified")
	}

	if reg.models == nil {
		reg.models = make(map[string]*Registration)
		reg.aliases = make(map[string]string)
	}

	reg.models[r.Name] = r
	names := []string{r.Name, r.Instance.GetModelProfile().ModelID}
	if p := r.Instance.GetPresetParameters(); p != nil {
		names = append(names, p.Aliases...)
	}
	for _, n := range names {
		if n != "" {
			reg.aliases[normalize(n)] = r.Name
		}
	}
}

// Get looks a preset up by registered name, model ID or alias, case-insensitively.
func (reg *ModelRegister) Get(name string) (model.Model, bool) {
	reg.RLock()
	defer reg.RUnlock()
	canonical, ok := reg.aliases[normalize(name)]
	if !ok {
		return nil, false
	}
	return reg.models[canonical].Instance, true
}

func (reg *ModelRegister) MustGet(name string) model.Model {
	if m, ok := reg.Get(name); ok {
		return m
	}
	panic("model is not registered")
}

// ListModelNames returns the registered names in lexical order.
func (reg *ModelRegister) ListModelNames() []string {
	reg.RLock()
	defer reg.RUnlock()
	n := make([]string, 0, len(reg.models))
	for k := range reg.models {
		n = append(n, k)
	}
	sort.Strings(n)
	return n
}

func (reg *ModelRegister) Has(name string) bool {
	_, ok := reg.Get(name)
	return ok
}

func IsValidPreset(preset string) bool {
	return FitcheckModelRegister.Has(preset)
}
