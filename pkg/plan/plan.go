// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package plan

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/kaito-project/fitcheck/pkg/dataset"
	"github.com/kaito-project/fitcheck/pkg/featuregates"
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/resolver"
	"github.com/kaito-project/fitcheck/pkg/sanity"
	"github.com/kaito-project/fitcheck/pkg/sku"
	"github.com/kaito-project/fitcheck/pkg/solver"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
	"github.com/kaito-project/fitcheck/pkg/vram"
)

// HardwareLookup resolves a GPU name, alias or instance type. *sku.Catalog implements it.
type HardwareLookup interface {
	Lookup(nameOrAlias string) (sku.HardwareSpec, error)
}

// Planner wires the collaborators of a plan. The zero value is not usable; use NewPlanner.
// A Planner is safe for concurrent use when its collaborators are.
type Planner struct {
	Models   resolver.ModelResolver
	Hardware HardwareLookup
	Datasets dataset.Analyzer
	Solver   *solver.ConfigSolver
}

type PlannerOption func(*Planner)

func WithModelResolver(r resolver.ModelResolver) PlannerOption {
	return func(p *Planner) {
		p.Models = r
	}
}

func WithHardware(h HardwareLookup) PlannerOption {
	return func(p *Planner) {
		p.Hardware = h
	}
}

func WithDatasetAnalyzer(a dataset.Analyzer) PlannerOption {
	return func(p *Planner) {
		p.Datasets = a
	}
}

func WithSolver(s *solver.ConfigSolver) PlannerOption {
	return func(p *Planner) {
		p.Solver = s
	}
}

// DefaultCatalog is the built-in GPU catalog, with cloud instance types when the
// CloudInstanceSKUs feature gate is on.
func DefaultCatalog() *sku.Catalog {
	if featuregates.Enabled(consts.FeatureFlagCloudInstanceSKUs) {
		return sku.BuiltinCatalog()
	}
	return lo.Must(sku.NewCatalog(sku.BuiltinCards()))
}

// NewPlanner returns a planner backed by the local and preset model resolvers, the
// default GPU catalog and the local dataset analyzer.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		Models:   resolver.NewDefaultResolver(),
		Hardware: DefaultCatalog(),
		Datasets: dataset.NewLocalAnalyzer(),
		Solver:   solver.NewConfigSolver(solver.WithEvalSpikeCheck(featuregates.Enabled(consts.FeatureFlagEvalSpikeCheck))),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan estimates memory for a fine-tuning run with the default planner.
func Plan(ctx context.Context, o Options) (*PlanReport, error) {
	return NewPlanner().Plan(ctx, o)
}

// Plan resolves the inputs, runs the solver and assembles the report. Errors from the
// collaborators are returned with context but keep their NotFound or InvalidArgument
// classification. A config that does not fit is a successful report.
func (p *Planner) Plan(ctx context.Context, o Options) (*PlanReport, error) {
	log := klog.FromContext(ctx).WithName("plan")

	method, fe := model.ParseTrainingMethod(o.Method)
	if err := utils.NewInvalidArgument(fe.Also(o.validate())); err != nil {
		return nil, err
	}
	hw, err := p.Hardware.Lookup(o.GPU)
	if err != nil {
		return nil, fmt.Errorf("resolving gpu: %w", err)
	}
	profile, err := p.Models.Resolve(ctx, o.ModelID)
	if err != nil {
		return nil, fmt.Errorf("resolving model: %w", err)
	}

	var ds *model.DatasetProfile
	if o.DatasetPath != "" {
		if ds, err = p.Datasets.Analyze(ctx, o.DatasetPath); err != nil {
			return nil, fmt.Errorf("analyzing dataset: %w", err)
		}
	}
	seqLen, seqLenReasoning, err := ResolveSeqLen(o.SeqLen, ds)
	if err != nil {
		return nil, err
	}
	log.V(2).Info("resolved inputs", "model", profile.ModelID, "gpu", hw.Name, "method", method,
		"seqLen", seqLen, "seqLenReasoning", seqLenReasoning)

	lora := model.LoRAConfig{Rank: o.LoRARank, TargetModules: o.LoRATargets}
	if lora.Rank == 0 {
		lora.Rank = consts.DefaultLoRARank
	}
	req := solver.Request{
		Model:    profile,
		Hardware: hw,
		Method:   method,
		SeqLen:   seqLen,
		LoRA:     lora,
	}
	if o.EvalSeqLen != nil {
		req.EvalSeqLen = *o.EvalSeqLen
	}

	var result *solver.SolverResult
	if o.BatchSize != nil {
		result, err = p.Solver.EstimateFixed(ctx, req, *o.BatchSize)
	} else {
		result, err = p.Solver.Solve(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	trainable, err := vram.TrainableParams(profile, method, lora)
	if err != nil {
		return nil, err
	}
	if limit := profile.MaxPositionEmbeddings; limit > 0 && seqLen > limit {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Sequence length %d exceeds the %d-token context window of %s.", seqLen, limit, profile.ModelID))
	}
	if ds != nil {
		warnings := sanity.CheckTrainingSanity(*ds, result.Recommended, trainable)
		result.Warnings = append(result.Warnings, sanity.FormatAll(warnings)...)
	}

	report := buildReport(profile, hw, method, ds, seqLen, seqLenReasoning, trainable, *result)
	log.V(2).Info("planned", "model", report.ModelID, "verdict", result.Recommended.Verdict(),
		"totalGB", result.Recommended.VRAMBreakdown.TotalGB(), "warnings", len(result.Warnings))
	return report, nil
}

func architectureSummary(p model.ModelProfile) string {
	return fmt.Sprintf("%s, %d layers, hidden %d, %d heads (%d kv)",
		p.Architecture, p.NumLayers, p.HiddenSize, p.NumAttentionHeads, p.NumKVHeads)
}

func buildReport(profile model.ModelProfile, hw sku.HardwareSpec, method model.TrainingMethod, ds *model.DatasetProfile,
	seqLen int, seqLenReasoning string, trainable int64, result solver.SolverResult) *PlanReport {
	r := &PlanReport{
		ModelID:             profile.ModelID,
		ArchitectureSummary: architectureSummary(profile),
		TotalParamsB:        profile.TotalParamsB,
		VocabSize:           profile.VocabSize,
		NumLayers:           profile.NumLayers,
		DatasetSource:       DatasetSourceNone,
		DatasetFormat:       model.DatasetFormatUnknown,
		SeqLenUsed:          seqLen,
		SeqLenReasoning:     seqLenReasoning,
		HardwareName:        hw.Name,
		TotalVRAMGB:         hw.TotalVRAMGB,
		OverheadGB:          hw.OverheadGB,
		UsableVRAMGB:        hw.UsableVRAMGB(),
		Method:              method,
		TrainableParams:     trainable,
		TrainablePct:        float64(trainable) / float64(profile.TotalParams) * 100,
		SolverResult:        result,
	}
	if ds != nil {
		r.DatasetSource = ds.Source
		r.DatasetRows = ds.NumRows
		r.DatasetFormat = ds.DetectedFormat
		r.SeqLenStats = ds.SeqLenStats
		r.SamplesPerEpoch = ds.NumRows
	}
	return r
}
