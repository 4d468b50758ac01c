// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package solver

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/sku"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
	"github.com/kaito-project/fitcheck/pkg/vram"
)

const (
	// MaxMicroBatchSize bounds the batch search; candidates are powers of two up to it.
	MaxMicroBatchSize = 32
	// TargetEffectiveBatchSize is the number of samples per optimizer step the
	// gradient accumulation aims for.
	TargetEffectiveBatchSize = 16
	// LogitsWarnFraction is the share of the total above which the logits buffer is flagged.
	LogitsWarnFraction = 0.15
)

// Request describes what to fit on which hardware.
type Request struct {
	Model    model.ModelProfile
	Hardware sku.HardwareSpec
	Method   model.TrainingMethod
	SeqLen   int
	LoRA     model.LoRAConfig
	// EvalSeqLen is the longest evaluation sequence; 0 means the same as SeqLen.
	EvalSeqLen int
}

func (r Request) Validate() (errs *apis.FieldError) {
	if r.EvalSeqLen < 0 {
		errs = errs.Also(apis.ErrInvalidValue(r.EvalSeqLen, "eval_seq_len", "must not be negative"))
	}
	if r.Hardware.UsableVRAMGB() <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(r.Hardware.Name, "gpu", "no usable VRAM"))
	}
	in := vram.Input{Model: r.Model, Method: r.Method, MicroBatchSize: 1, SeqLen: r.SeqLen, LoRA: r.LoRA}
	return errs.Also(in.Validate())
}

// ConfigSolver searches for training configs that fit a GPU. It holds no
// per-call state and is safe for concurrent use.
type ConfigSolver struct {
	log            logr.Logger
	evalSpikeCheck bool
}

type Option func(*ConfigSolver)

func WithLogger(log logr.Logger) Option {
	return func(s *ConfigSolver) {
		s.log = log
	}
}

// WithEvalSpikeCheck toggles the evaluation logits warning.
func WithEvalSpikeCheck(enabled bool) Option {
	return func(s *ConfigSolver) {
		s.evalSpikeCheck = enabled
	}
}

func NewConfigSolver(opts ...Option) *ConfigSolver {
	s := &ConfigSolver{
		log:            klog.Background().WithName("solver"),
		evalSpikeCheck: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ConfigSolver) logger(ctx context.Context) logr.Logger {
	if log, err := logr.FromContext(ctx); err == nil {
		return log.WithName("solver")
	}
	return s.log
}

func batchCandidates() []int {
	var c []int
	for b := 1; b <= MaxMicroBatchSize; b *= 2 {
		c = append(c, b)
	}
	return c
}

func (s *ConfigSolver) estimate(req Request, microBatch int, checkpointing bool, margin float64) (vram.VRAMBreakdown, error) {
	return vram.Estimate(vram.Input{
		Model:                 req.Model,
		Method:                req.Method,
		MicroBatchSize:        microBatch,
		SeqLen:                req.SeqLen,
		LoRA:                  req.LoRA,
		GradientCheckpointing: checkpointing,
		MarginFraction:        margin,
	})
}

func newTrainingConfig(req Request, microBatch int, checkpointing bool, b vram.VRAMBreakdown, reasoning Reasoning) TrainingConfig {
	accumulation := gradientAccumulationSteps(microBatch, TargetEffectiveBatchSize)
	c := TrainingConfig{
		MicroBatchSize:            microBatch,
		GradientAccumulationSteps: accumulation,
		EffectiveBatchSize:        microBatch * accumulation,
		SeqLen:                    req.SeqLen,
		GradientCheckpointing:     checkpointing,
		Optimizer:                 vram.OptimizerName(req.Method),
		VRAMBreakdown:             b,
		Reasoning:                 reasoning,
	}
	if req.Method.IsAdapter() {
		c.LoRARank = req.LoRA.Rank
		c.LoRATargets = append([]string(nil), req.LoRA.TargetModules...)
		if len(c.LoRATargets) == 0 {
			c.LoRATargets = vram.DefaultTargetModules(req.Model.Family)
		}
	}
	return c
}

func fits(b vram.VRAMBreakdown, hw sku.HardwareSpec) bool {
	return b.TotalGB() <= hw.UsableVRAMGB()
}

// verdict returns the verdict and detail annotations for b on hw.
func verdict(b vram.VRAMBreakdown, hw sku.HardwareSpec) []string {
	if fits(b, hw) {
		headroom := (hw.UsableVRAMGB() - b.TotalGB()) / hw.UsableVRAMGB() * 100
		return []string{
			ReasonVerdict, VerdictFits,
			ReasonDetail, fmt.Sprintf("Uses %.1f GB of %.1f GB usable (%.0f%% headroom)", b.TotalGB(), hw.UsableVRAMGB(), headroom),
		}
	}
	return []string{
		ReasonVerdict, VerdictDoesNotFit,
		ReasonDetail, fmt.Sprintf("Requires %.1f GB but only %.1f GB usable", b.TotalGB(), hw.UsableVRAMGB()),
	}
}

// searchPass is the outcome of one sweep over the batch candidates.
type searchPass struct {
	microBatch int
	breakdown  vram.VRAMBreakdown
	// nextGB is the total of the first candidate that did not fit, 0 if the search was capped.
	nextGB float64
	// firstGB is the total at micro batch 1.
	firstGB float64
}

func (p searchPass) found() bool {
	return p.microBatch > 0
}

// largestFit finds the largest candidate micro batch that fits. Totals grow with the
// batch size so the sweep stops at the first miss.
func (s *ConfigSolver) largestFit(log logr.Logger, req Request, checkpointing bool) (searchPass, error) {
	var pass searchPass
	for _, mb := range batchCandidates() {
		b, err := s.estimate(req, mb, checkpointing, vram.DynamicMarginFraction)
		if err != nil {
			return searchPass{}, err
		}
		log.V(4).Info("evaluated candidate", "microBatch", mb, "checkpointing", checkpointing,
			"totalGB", b.TotalGB(), "usableGB", req.Hardware.UsableVRAMGB())
		if mb == 1 {
			pass.firstGB = b.TotalGB()
		}
		if !fits(b, req.Hardware) {
			pass.nextGB = b.TotalGB()
			break
		}
		pass.microBatch, pass.breakdown = mb, b
	}
	return pass, nil
}

// Solve searches micro batch sizes, first without gradient checkpointing and then with
// it, for the largest config that fits. Infeasibility is reported through the verdict.
func (s *ConfigSolver) Solve(ctx context.Context, req Request) (*SolverResult, error) {
	if err := utils.NewInvalidArgument(req.Validate()); err != nil {
		return nil, err
	}
	log := s.logger(ctx).WithValues("model", req.Model.ModelID, "gpu", req.Hardware.Name, "method", req.Method, "seqLen", req.SeqLen)

	plain, err := s.largestFit(log, req, false)
	if err != nil {
		return nil, err
	}
	var rec TrainingConfig
	switch {
	case plain.found():
		rec = s.fitConfig(req, plain, false, nil)
	default:
		ckpt, err := s.largestFit(log, req, true)
		if err != nil {
			return nil, err
		}
		if ckpt.found() {
			rec = s.fitConfig(req, ckpt, true, []string{
				ReasonCheckpointing, fmt.Sprintf("on: micro batch 1 needs %.1f GB without it", plain.firstGB),
			})
			break
		}
		b, err := s.estimate(req, 1, true, vram.DynamicMarginFraction)
		if err != nil {
			return nil, err
		}
		kv := []string{
			ReasonBatchSize, "smallest possible micro batch",
			ReasonCheckpointing, "on: still does not fit",
		}
		rec = newTrainingConfig(req, 1, true, b, NewReasoning(append(kv, verdict(b, req.Hardware)...)...))
	}

	result := &SolverResult{Recommended: rec}
	if rec.Fits() {
		if result.Aggressive, err = s.aggressive(log, req, rec); err != nil {
			return nil, err
		}
	}
	result.Recommended, result.Warnings = s.warnings(req, rec)
	log.V(2).Info("solved", "microBatch", rec.MicroBatchSize, "checkpointing", rec.GradientCheckpointing,
		"totalGB", rec.VRAMBreakdown.TotalGB(), "verdict", rec.Verdict(), "aggressive", result.Aggressive != nil)
	return result, nil
}

func (s *ConfigSolver) fitConfig(req Request, pass searchPass, checkpointing bool, ckptReason []string) TrainingConfig {
	batchReason := fmt.Sprintf("search capped at %d", MaxMicroBatchSize)
	if pass.nextGB > 0 {
		batchReason = fmt.Sprintf("largest power of two that fits; %d would need %.1f GB", pass.microBatch*2, pass.nextGB)
	}
	if ckptReason == nil {
		ckptReason = []string{ReasonCheckpointing, "off: not needed"}
	}
	kv := []string{
		ReasonBatchSize, batchReason,
		ReasonAccumulation, fmt.Sprintf("%d steps for an effective batch of %d",
			gradientAccumulationSteps(pass.microBatch, TargetEffectiveBatchSize), TargetEffectiveBatchSize),
	}
	kv = append(kv, ckptReason...)
	kv = append(kv, verdict(pass.breakdown, req.Hardware)...)
	return newTrainingConfig(req, pass.microBatch, checkpointing, pass.breakdown, NewReasoning(kv...))
}

// aggressive tries one step past the recommended config with the relaxed margin and
// accepts the first step that stays within the card's total memory.
func (s *ConfigSolver) aggressive(log logr.Logger, req Request, rec TrainingConfig) (*TrainingConfig, error) {
	type step struct {
		microBatch    int
		checkpointing bool
		reason        string
	}
	var steps []step
	if next := rec.MicroBatchSize * 2; next <= MaxMicroBatchSize {
		steps = append(steps, step{next, rec.GradientCheckpointing, fmt.Sprintf("doubled from %d", rec.MicroBatchSize)})
	}
	if rec.GradientCheckpointing {
		steps = append(steps, step{rec.MicroBatchSize, false, "same micro batch without gradient checkpointing"})
	}
	for _, p := range steps {
		b, err := s.estimate(req, p.microBatch, p.checkpointing, vram.AggressiveMarginFraction)
		if err != nil {
			return nil, err
		}
		log.V(4).Info("evaluated aggressive candidate", "microBatch", p.microBatch, "checkpointing", p.checkpointing, "totalGB", b.TotalGB())
		if b.TotalGB() > req.Hardware.TotalVRAMGB {
			continue
		}
		c := newTrainingConfig(req, p.microBatch, p.checkpointing, b, NewReasoning(
			ReasonBatchSize, p.reason,
			ReasonMargin, fmt.Sprintf("%.0f%% dynamic margin instead of %.0f%%", vram.AggressiveMarginFraction*100, vram.DynamicMarginFraction*100),
			ReasonVerdict, VerdictFits,
			ReasonDetail, fmt.Sprintf("Uses %.1f GB of %.1f GB total, eating into the %.1f GB overhead reserve", b.TotalGB(), req.Hardware.TotalVRAMGB, req.Hardware.OverheadGB),
		))
		return &c, nil
	}
	return nil, nil
}

// warnings collects advisory messages. They never change the verdict; the eval spike
// check annotates the returned config with the peak.
func (s *ConfigSolver) warnings(req Request, rec TrainingConfig) (TrainingConfig, []string) {
	var warnings []string
	b := rec.VRAMBreakdown
	if !rec.Fits() {
		detail, _ := rec.Reasoning.Get(ReasonDetail)
		warnings = append(warnings, fmt.Sprintf("Does not fit on %s: %s. Consider a smaller method or a shorter sequence length.", req.Hardware.Name, detail))
	}
	if b.LogitsBuffer.Bytes > LogitsWarnFraction*b.TotalBytes() {
		warnings = append(warnings, fmt.Sprintf("Logits buffer is %.1f GB (%.0f%% of the total) because of the %d-token vocabulary.",
			b.LogitsBuffer.GB(), b.LogitsBuffer.Bytes/b.TotalBytes()*100, req.Model.VocabSize))
	}
	if s.evalSpikeCheck && req.EvalSeqLen > 0 && req.EvalSeqLen != req.SeqLen {
		evalLogits := vram.LogitsBytes(rec.MicroBatchSize, req.EvalSeqLen, req.Model.VocabSize)
		if spike := evalLogits - b.LogitsBuffer.Bytes; spike > 0 {
			spikeGB := spike / consts.GiBToBytes
			peak := b.TotalGB() + spikeGB
			relation := "stays within"
			if peak > req.Hardware.UsableVRAMGB() {
				relation = "exceeds"
			}
			warnings = append(warnings, fmt.Sprintf("Evaluation at seq len %d adds %.1f GB of logits; the %.1f GB peak %s the %.1f GB usable.",
				req.EvalSeqLen, spikeGB, peak, relation, req.Hardware.UsableVRAMGB()))
			rec = rec.withReasoning(ReasonEvalPeak, fmt.Sprintf("%.2f", peak))
		}
	}
	if rec.GradientCheckpointing {
		warnings = append(warnings, "Gradient checkpointing is on; steps recompute activations and run roughly 30% slower.")
	}
	return rec, warnings
}

// EstimateFixed evaluates a caller-chosen micro batch size. Checkpointing is enabled
// only when the batch does not fit without it, the same rule Solve applies.
func (s *ConfigSolver) EstimateFixed(ctx context.Context, req Request, batchSize int) (*SolverResult, error) {
	fe := req.Validate()
	if batchSize <= 0 {
		fe = fe.Also(apis.ErrInvalidValue(batchSize, "batch_size", "must be a positive integer"))
	}
	if err := utils.NewInvalidArgument(fe); err != nil {
		return nil, err
	}
	log := s.logger(ctx).WithValues("model", req.Model.ModelID, "gpu", req.Hardware.Name, "method", req.Method, "seqLen", req.SeqLen)

	checkpointing := false
	b, err := s.estimate(req, batchSize, false, vram.DynamicMarginFraction)
	if err != nil {
		return nil, err
	}
	ckptReason := "off: not needed"
	if !fits(b, req.Hardware) {
		plainGB := b.TotalGB()
		checkpointing = true
		if b, err = s.estimate(req, batchSize, true, vram.DynamicMarginFraction); err != nil {
			return nil, err
		}
		ckptReason = fmt.Sprintf("on: %.1f GB without it", plainGB)
		if !fits(b, req.Hardware) {
			ckptReason = "on: still does not fit"
		}
	}
	kv := []string{
		ReasonBatchSize, fmt.Sprintf("fixed at %d by request", batchSize),
		ReasonAccumulation, fmt.Sprintf("%d steps for an effective batch of %d",
			gradientAccumulationSteps(batchSize, TargetEffectiveBatchSize), TargetEffectiveBatchSize),
		ReasonCheckpointing, ckptReason,
	}
	rec := newTrainingConfig(req, batchSize, checkpointing, b, NewReasoning(append(kv, verdict(b, req.Hardware)...)...))

	result := &SolverResult{}
	result.Recommended, result.Warnings = s.warnings(req, rec)
	log.V(2).Info("estimated fixed batch", "microBatch", batchSize, "checkpointing", checkpointing,
		"totalGB", b.TotalGB(), "verdict", rec.Verdict())
	return result, nil
}
