// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package sku

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
	"k8s.io/apimachinery/pkg/api/resource"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// catalogFile is the on-disk layout of a custom hardware catalog:
//
//	gpus:
//	- name: NVIDIA RTX 6000 Ada
//	  aliases: [rtx6000ada]
//	  vram: 48Gi
//	  overhead: 1536Mi
type catalogFile struct {
	GPUs []catalogFileEntry `yaml:"gpus"`
}

type catalogFileEntry struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	VRAM     string   `yaml:"vram"`
	Overhead string   `yaml:"overhead"`
}

func quantityGB(field, value string) (float64, error) {
	q, err := resource.ParseQuantity(value)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, value, err)
	}
	return float64(q.Value()) / consts.GiBToBytes, nil
}

func (e catalogFileEntry) toCard() (Card, error) {
	var errs []error
	card := Card{Name: e.Name, Aliases: e.Aliases}
	total, err := quantityGB("vram", e.VRAM)
	if err != nil {
		errs = append(errs, err)
	}
	card.TotalVRAMGB = total
	if e.Overhead != "" {
		overhead, err := quantityGB("overhead", e.Overhead)
		if err != nil {
			errs = append(errs, err)
		}
		card.OverheadGB = overhead
	}
	if len(errs) > 0 {
		return Card{}, fmt.Errorf("gpu %q: %w", e.Name, utilerrors.NewAggregate(errs))
	}
	return card, nil
}

// ParseCatalog decodes YAML card definitions. Every malformed entry is reported in one error.
func ParseCatalog(data []byte) ([]Card, error) {
	var f catalogFile
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse hardware catalog: %w", err)
	}
	var (
		cards []Card
		errs  []error
	)
	for i, e := range f.GPUs {
		card, err := e.toCard()
		if err != nil {
			errs = append(errs, fmt.Errorf("gpus[%d]: %w", i, err))
			continue
		}
		if err := card.validate(); err != nil {
			errs = append(errs, fmt.Errorf("gpus[%d]: %w", i, err))
			continue
		}
		cards = append(cards, card)
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	return cards, nil
}

// LoadCatalogFile extends base with the cards defined in the YAML file at path.
func LoadCatalogFile(base *Catalog, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, utils.NewNotFound("hardware catalog files", path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read hardware catalog %s: %w", path, err)
	}
	cards, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return base.Extend(cards)
}
