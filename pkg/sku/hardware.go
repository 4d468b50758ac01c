// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package sku

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/samber/lo"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/kaito-project/fitcheck/pkg/utils"
)

// cloudOverheadFraction is the overhead assumed for an instance type whose card is not in the catalog.
const cloudOverheadFraction = 0.05

// noiseWords are vendor prefixes ignored when matching a GPU name.
var noiseWords = []string{"nvidia", "geforce", "rtx"}

// HardwareSpec is a single accelerator as seen by the solver.
type HardwareSpec struct {
	Name        string  `json:"name"`
	TotalVRAMGB float64 `json:"total_vram_gb"`
	OverheadGB  float64 `json:"overhead_gb"`
}

// UsableVRAMGB is the memory left for training after the driver and CUDA context.
func (h HardwareSpec) UsableVRAMGB() float64 {
	return h.TotalVRAMGB - h.OverheadGB
}

// Card is a catalog entry.
type Card struct {
	Name        string
	TotalVRAMGB float64
	OverheadGB  float64
	Aliases     []string
}

func (c Card) Spec() HardwareSpec {
	return HardwareSpec{Name: c.Name, TotalVRAMGB: c.TotalVRAMGB, OverheadGB: c.OverheadGB}
}

func (c Card) validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return fmt.Errorf("card name is empty")
	case c.TotalVRAMGB <= 0:
		return fmt.Errorf("card %q: total VRAM must be positive, got %v", c.Name, c.TotalVRAMGB)
	case c.OverheadGB < 0:
		return fmt.Errorf("card %q: overhead must not be negative, got %v", c.Name, c.OverheadGB)
	case c.OverheadGB >= c.TotalVRAMGB:
		return fmt.Errorf("card %q: overhead %v leaves no usable VRAM out of %v", c.Name, c.OverheadGB, c.TotalVRAMGB)
	}
	return nil
}

var builtinCards = []Card{
	{Name: "NVIDIA RTX 3090", TotalVRAMGB: 24, OverheadGB: 1.2, Aliases: []string{"3090", "rtx3090"}},
	{Name: "NVIDIA RTX 4090", TotalVRAMGB: 24, OverheadGB: 1.2, Aliases: []string{"4090", "rtx4090"}},
	{Name: "NVIDIA RTX A6000", TotalVRAMGB: 48, OverheadGB: 1.5, Aliases: []string{"a6000"}},
	{Name: "NVIDIA A10G", TotalVRAMGB: 24, OverheadGB: 1.5, Aliases: []string{"a10g", "a10"}},
	{Name: "NVIDIA L4", TotalVRAMGB: 24, OverheadGB: 1.5, Aliases: []string{"l4"}},
	{Name: "NVIDIA T4", TotalVRAMGB: 16, OverheadGB: 1.0, Aliases: []string{"t4"}},
	{Name: "NVIDIA V100", TotalVRAMGB: 16, OverheadGB: 1.0, Aliases: []string{"v100", "v100-16gb"}},
	{Name: "NVIDIA A100 40GB", TotalVRAMGB: 40, OverheadGB: 2.0, Aliases: []string{"a100", "a100-40gb"}},
	{Name: "NVIDIA A100 80GB", TotalVRAMGB: 80, OverheadGB: 2.5, Aliases: []string{"a100-80gb"}},
	{Name: "NVIDIA H100 80GB", TotalVRAMGB: 80, OverheadGB: 2.5, Aliases: []string{"h100", "h100-80gb"}},
	{Name: "NVIDIA L40S", TotalVRAMGB: 48, OverheadGB: 2.0, Aliases: []string{"l40s"}},
	{Name: "NVIDIA K80", TotalVRAMGB: 12, OverheadGB: 0.8, Aliases: []string{"k80"}},
	{Name: "NVIDIA M60", TotalVRAMGB: 8, OverheadGB: 0.6, Aliases: []string{"m60"}},
}

// Normalize folds a GPU name for matching: lowercase, vendor noise words dropped,
// separators removed. "NVIDIA GeForce RTX 3090" and "rtx_3090" both become "3090".
func Normalize(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	})
	fields = lo.Filter(fields, func(f string, _ int) bool {
		return !lo.Contains(noiseWords, f)
	})
	return strings.Join(fields, "")
}

// Catalog resolves GPU names and aliases to hardware specs. It is immutable once built.
type Catalog struct {
	cards []Card
	index map[string]int
	cloud []InstanceType
}

type Option func(*Catalog)

// WithInstanceTypes lets cloud instance types resolve to the hardware of one of their GPUs.
func WithInstanceTypes(types ...InstanceType) Option {
	return func(c *Catalog) {
		c.cloud = append(c.cloud, types...)
	}
}

// NewCatalog indexes cards by normalized name and alias. A later card overrides
// an earlier one with the same name. Every invalid card is reported.
func NewCatalog(cards []Card, opts ...Option) (*Catalog, error) {
	c := &Catalog{index: map[string]int{}}
	var errs []error
	for _, card := range cards {
		if err := card.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		pos, replaced := c.index[Normalize(card.Name)]
		if replaced && c.cards[pos].Name == card.Name {
			c.cards[pos] = card
		} else {
			pos = len(c.cards)
			c.cards = append(c.cards, card)
		}
		for _, key := range append([]string{card.Name}, card.Aliases...) {
			if k := Normalize(key); k != "" {
				c.index[k] = pos
			}
		}
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extend returns a new catalog with extra cards layered on top of c.
func (c *Catalog) Extend(cards []Card) (*Catalog, error) {
	merged := append(append([]Card{}, c.cards...), cards...)
	return NewCatalog(merged, WithInstanceTypes(c.cloud...))
}

// Names lists the canonical card names in lexical order.
func (c *Catalog) Names() []string {
	names := lo.Map(c.cards, func(card Card, _ int) string { return card.Name })
	sort.Strings(names)
	return names
}

// Cards returns the catalog entries sorted by name.
func (c *Catalog) Cards() []Card {
	cards := append([]Card{}, c.cards...)
	sort.Slice(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
	return cards
}

// Lookup resolves a card name, alias or cloud instance type.
func (c *Catalog) Lookup(name string) (HardwareSpec, error) {
	if pos, ok := c.index[Normalize(name)]; ok {
		return c.cards[pos].Spec(), nil
	}
	if spec, ok := c.lookupInstanceType(name); ok {
		return spec, nil
	}
	return HardwareSpec{}, utils.NewNotFound("gpus", name, c.Names(), utils.DidYouMean(name, c.knownNames()))
}

// knownNames is every name and alias a user could have meant.
func (c *Catalog) knownNames() []string {
	return lo.FlatMap(c.cards, func(card Card, _ int) []string {
		return append([]string{card.Name}, card.Aliases...)
	})
}

// lookupInstanceType resolves a cloud instance type to its GPU. The overhead comes
// from the referenced card when the catalog has it.
func (c *Catalog) lookupInstanceType(name string) (HardwareSpec, bool) {
	it, ok := lo.Find(c.cloud, func(it InstanceType) bool {
		return strings.EqualFold(it.Name, strings.TrimSpace(name))
	})
	if !ok {
		return HardwareSpec{}, false
	}
	spec := HardwareSpec{
		Name:        fmt.Sprintf("%s (%s)", it.Card, it.Name),
		TotalVRAMGB: it.GPUMemGB,
		OverheadGB:  math.Round(it.GPUMemGB*cloudOverheadFraction*100) / 100,
	}
	if pos, ok := c.index[Normalize(it.Card)]; ok && c.cards[pos].TotalVRAMGB == it.GPUMemGB {
		spec.OverheadGB = c.cards[pos].OverheadGB
	}
	return spec, true
}

var builtin = lo.Must(NewCatalog(builtinCards, WithInstanceTypes(AllInstanceTypes()...)))

// BuiltinCards returns a copy of the built-in card list.
func BuiltinCards() []Card {
	return append([]Card{}, builtinCards...)
}

// BuiltinCatalog returns the catalog of common training GPUs and cloud instance types.
func BuiltinCatalog() *Catalog {
	return builtin
}

// GetHardware resolves a GPU name or alias against the built-in catalog.
func GetHardware(nameOrAlias string) (HardwareSpec, error) {
	return builtin.Lookup(nameOrAlias)
}
