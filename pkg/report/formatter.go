// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/solver"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
	"github.com/kaito-project/fitcheck/pkg/vram"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

// Outputs lists the supported output formats.
var Outputs = []string{OutputText, OutputJSON}

// Write renders r to w in the named output format.
func Write(w io.Writer, output string, r *plan.PlanReport) error {
	switch strings.ToLower(output) {
	case "", OutputText:
		_, err := io.WriteString(w, FormatText(r))
		return err
	case OutputJSON:
		return WriteJSON(w, r)
	default:
		return utils.NewInvalidArgument(apis.ErrInvalidValue(output, "output",
			"supported outputs are "+strings.Join(Outputs, ", ")))
	}
}

// WriteJSON writes r as indented JSON followed by a newline.
func WriteJSON(w io.Writer, r *plan.PlanReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// FormatText renders the human-readable report.
func FormatText(r *plan.PlanReport) string {
	var buf bytes.Buffer
	section(&buf, "Model", [][]string{
		{"Model", r.ModelID},
		{"Architecture", r.ArchitectureSummary},
		{"Parameters", fmt.Sprintf("%.2fB", r.TotalParamsB)},
		{"Vocabulary", commas(int64(r.VocabSize))},
		{"Layers", strconv.Itoa(r.NumLayers)},
	})
	section(&buf, "Hardware", [][]string{
		{"GPU", r.HardwareName},
		{"Total VRAM", gb(r.TotalVRAMGB)},
		{"Reserved", gb(r.OverheadGB) + " (CUDA context, driver)"},
		{"Usable VRAM", gb(r.UsableVRAMGB)},
	})
	section(&buf, "What You're Training", trainingRows(r))
	breakdown(&buf, r)
	config(&buf, "Recommended Config", &r.SolverResult.Recommended)
	if a := r.SolverResult.Aggressive; a != nil {
		config(&buf, "Aggressive Config", a)
	} else {
		fmt.Fprintln(&buf, sectionStyle.Render("Aggressive Config"))
		fmt.Fprintln(&buf, noteStyle.Render("  No riskier config fits within the card's total memory."))
		fmt.Fprintln(&buf)
	}
	risks(&buf, r.SolverResult.Warnings)
	return buf.String()
}

func trainingRows(r *plan.PlanReport) [][]string {
	rows := [][]string{
		{"Method", strings.ToUpper(string(r.Method))},
		{"Trainable params", fmt.Sprintf("%s (%.2f%%)", humanParams(r.TrainableParams), r.TrainablePct)},
		{"Sequence length", fmt.Sprintf("%d (%s)", r.SeqLenUsed, r.SeqLenReasoning)},
	}
	if r.DatasetSource == plan.DatasetSourceNone {
		return append(rows, []string{"Dataset", "none"})
	}
	rows = append(rows,
		[]string{"Dataset", r.DatasetSource},
		[]string{"Rows", fmt.Sprintf("%s (%s)", commas(int64(r.DatasetRows)), r.DatasetFormat)},
		[]string{"Samples per epoch", commas(int64(r.SamplesPerEpoch))},
	)
	if s := r.SeqLenStats; s != nil {
		rows = append(rows, []string{"Token lengths", fmt.Sprintf("p50 %d, p95 %d, p99 %d, max %d", s.P50, s.P95, s.P99, s.Max)})
	}
	return rows
}

func breakdown(buf *bytes.Buffer, r *plan.PlanReport) {
	b := r.SolverResult.Recommended.VRAMBreakdown
	rows := make([][]string, 0, 7)
	for _, c := range b.Components() {
		rows = append(rows, []string{c.Name, gb(c.GB()), c.Description})
	}
	rows = append(rows,
		[]string{"Dynamic margin", gb(b.DynamicMarginBytes/consts.GiBToBytes), fmt.Sprintf("%.0f%% of steady state", vram.DynamicMarginFraction*100)},
		[]string{"Total", gb(b.TotalGB()), ""},
	)
	section(buf, "VRAM Breakdown", rows)

	if r.SolverResult.Recommended.Fits() {
		headroom := r.UsableVRAMGB - b.TotalGB()
		fmt.Fprintln(buf, fitsStyle.Render(fmt.Sprintf("  FITS: %s headroom (%.0f%% of usable)", gb(headroom), headroom/r.UsableVRAMGB*100)))
	} else {
		fmt.Fprintln(buf, doesNotFitStyle.Render(fmt.Sprintf("  DOES NOT FIT: %s over the %s usable (%.0f%% over)",
			gb(b.TotalGB()-r.UsableVRAMGB), gb(r.UsableVRAMGB), (b.TotalGB()-r.UsableVRAMGB)/r.UsableVRAMGB*100)))
	}
	fmt.Fprintln(buf)
}

func config(buf *bytes.Buffer, title string, c *solver.TrainingConfig) {
	rows := [][]string{
		{"Micro batch size", strconv.Itoa(c.MicroBatchSize)},
		{"Gradient accumulation", strconv.Itoa(c.GradientAccumulationSteps)},
		{"Effective batch size", strconv.Itoa(c.EffectiveBatchSize)},
		{"Sequence length", strconv.Itoa(c.SeqLen)},
		{"Gradient checkpointing", onOff(c.GradientCheckpointing)},
		{"Optimizer", c.Optimizer},
	}
	if c.LoRARank > 0 {
		rows = append(rows,
			[]string{"LoRA rank", strconv.Itoa(c.LoRARank)},
			[]string{"LoRA targets", strings.Join(c.LoRATargets, ", ")})
	}
	rows = append(rows, []string{"Estimated VRAM", gb(c.VRAMBreakdown.TotalGB())})
	for _, k := range c.Reasoning.Keys() {
		if k == solver.ReasonVerdict {
			continue
		}
		v, _ := c.Reasoning.Get(k)
		rows = append(rows, []string{strings.ReplaceAll(k, "_", " "), v})
	}
	section(buf, title, rows)
}

func risks(buf *bytes.Buffer, warnings []string) {
	fmt.Fprintln(buf, sectionStyle.Render("Risks"))
	if len(warnings) == 0 {
		fmt.Fprintln(buf, noteStyle.Render("  None found."))
		return
	}
	for _, w := range warnings {
		fmt.Fprintln(buf, riskStyle.Render("  - "+w))
	}
}

// section writes a titled borderless table in the style of `ollama show`.
func section(buf *bytes.Buffer, title string, rows [][]string) {
	fmt.Fprintln(buf, sectionStyle.Render(title))
	table := tablewriter.NewWriter(buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	for _, row := range rows {
		table.Append(append([]string{""}, row...))
	}
	table.Render()
	fmt.Fprintln(buf)
}

func gb(v float64) string {
	return fmt.Sprintf("%.2f GB", v)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// humanParams abbreviates a parameter count, e.g. 41.9M or 8.03B.
func humanParams(n int64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.1fM", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fK", float64(n)/1e3)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// commas groups the digits of n in thousands.
func commas(n int64) string {
	s := strconv.FormatInt(n, 10)
	if n < 0 {
		return "-" + commas(-n)
	}
	var out strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out.WriteByte(',')
		}
		out.WriteRune(r)
	}
	return out.String()
}
