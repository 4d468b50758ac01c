// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaito-project/fitcheck/pkg/utils/plugin"
)

type gpuEntry struct {
	Name         string   `json:"name"`
	TotalVRAMGB  float64  `json:"total_vram_gb"`
	OverheadGB   float64  `json:"overhead_gb"`
	UsableVRAMGB float64  `json:"usable_vram_gb"`
	Aliases      []string `json:"aliases"`
}

func newGPUsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "gpus",
		Aliases: []string{"gpu", "hardware"},
		Short:   "List the GPUs in the catalog",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []gpuEntry
			for _, card := range root.catalog.Cards() {
				entries = append(entries, gpuEntry{
					Name:         card.Name,
					TotalVRAMGB:  card.TotalVRAMGB,
					OverheadGB:   card.OverheadGB,
					UsableVRAMGB: card.Spec().UsableVRAMGB(),
					Aliases:      append([]string{}, card.Aliases...),
				})
			}
			if root.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			table := newTable(cmd.OutOrStdout(), "NAME", "TOTAL", "RESERVED", "USABLE", "ALIASES")
			for _, e := range entries {
				table.Append([]string{
					e.Name,
					fmt.Sprintf("%.2f GB", e.TotalVRAMGB),
					fmt.Sprintf("%.2f GB", e.OverheadGB),
					fmt.Sprintf("%.2f GB", e.UsableVRAMGB),
					strings.Join(e.Aliases, ", "),
				})
			}
			table.Render()
			return nil
		},
	}
}

type modelEntry struct {
	Name          string  `json:"name"`
	ModelID       string  `json:"model_id"`
	Family        string  `json:"family"`
	Tag           string  `json:"tag,omitempty"`
	ParamsB       float64 `json:"params_b"`
	ContextWindow int     `json:"context_window"`
	SupportTuning bool    `json:"support_tuning"`
}

func newModelsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "models",
		Aliases: []string{"presets"},
		Short:   "List the preset models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []modelEntry
			for _, name := range plugin.FitcheckModelRegister.ListModelNames() {
				m := plugin.FitcheckModelRegister.MustGet(name)
				p := m.GetModelProfile()
				e := modelEntry{
					Name:          name,
					ModelID:       p.ModelID,
					ParamsB:       p.TotalParamsB,
					ContextWindow: p.MaxPositionEmbeddings,
					SupportTuning: m.SupportTuning(),
				}
				if params := m.GetPresetParameters(); params != nil {
					e.Family = params.ModelFamilyName
					e.Tag = params.Tag
				}
				entries = append(entries, e)
			}
			if root.jsonOutput() {
				return writeJSON(cmd, entries)
			}
			table := newTable(cmd.OutOrStdout(), "NAME", "MODEL ID", "FAMILY", "PARAMS", "CONTEXT", "TUNING")
			for _, e := range entries {
				table.Append([]string{
					e.Name,
					e.ModelID,
					e.Family,
					fmt.Sprintf("%.2fB", e.ParamsB),
					strconv.Itoa(e.ContextWindow),
					strconv.FormatBool(e.SupportTuning),
				})
			}
			table.Render()
			return nil
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
