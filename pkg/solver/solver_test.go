// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package solver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/sku"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/test"
	"github.com/kaito-project/fitcheck/pkg/vram"
)

func rtx3090(t *testing.T) sku.HardwareSpec {
	hw, err := sku.GetHardware("3090")
	require.NoError(t, err)
	return hw
}

func llamaRequest(t *testing.T, method model.TrainingMethod, seqLen int) Request {
	return Request{
		Model:    test.Llama8BProfile(),
		Hardware: rtx3090(t),
		Method:   method,
		SeqLen:   seqLen,
		LoRA:     model.LoRAConfig{Rank: 16},
	}
}

// smallLlamaProfile is a 1.5B llama-shaped model.
func smallLlamaProfile() model.ModelProfile {
	return model.NewModelProfile(model.ModelProfile{
		ModelID:           "example/llama-1.5b",
		Architecture:      "LlamaForCausalLM",
		Family:            "llama",
		HiddenSize:        2048,
		NumLayers:         16,
		NumAttentionHeads: 32,
		NumKVHeads:        8,
		IntermediateSize:  8192,
		VocabSize:         128256,
		TotalParams:       1_500_000_000,
	})
}

func TestSolve(t *testing.T) {
	testcases := map[string]struct {
		request               func(t *testing.T) Request
		expectedVerdict       string
		expectedMicroBatch    int
		expectedAccumulation  int
		expectedCheckpointing bool
		expectedAggressive    int
		expectedWarnings      []string
	}{
		"qlora fits at batch 4": {
			request:              func(t *testing.T) Request { return llamaRequest(t, model.TrainingMethodQLora, 512) },
			expectedVerdict:      VerdictFits,
			expectedMicroBatch:   4,
			expectedAccumulation: 4,
			expectedAggressive:   8,
		},
		"long sequences need checkpointing": {
			request:               func(t *testing.T) Request { return llamaRequest(t, model.TrainingMethodQLora, 8192) },
			expectedVerdict:       VerdictFits,
			expectedMicroBatch:    1,
			expectedAccumulation:  16,
			expectedCheckpointing: true,
			expectedWarnings:      []string{"Logits buffer", "Gradient checkpointing is on"},
		},
		"full fine-tuning does not fit": {
			request:               func(t *testing.T) Request { return llamaRequest(t, model.TrainingMethodFull, 512) },
			expectedVerdict:       VerdictDoesNotFit,
			expectedMicroBatch:    1,
			expectedAccumulation:  16,
			expectedCheckpointing: true,
			expectedWarnings:      []string{"Does not fit on NVIDIA RTX 3090", "Requires", "Gradient checkpointing is on"},
		},
		"small full fine-tune fits": {
			request: func(t *testing.T) Request {
				r := llamaRequest(t, model.TrainingMethodFull, 512)
				r.Model = smallLlamaProfile()
				return r
			},
			expectedVerdict:      VerdictFits,
			expectedMicroBatch:   4,
			expectedAccumulation: 4,
			expectedAggressive:   8,
		},
		"tiny model hits the search cap": {
			request: func(t *testing.T) Request {
				r := llamaRequest(t, model.TrainingMethodLora, 512)
				r.Model = test.TinyProfile()
				return r
			},
			expectedVerdict:      VerdictFits,
			expectedMicroBatch:   MaxMicroBatchSize,
			expectedAccumulation: 1,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			req := tc.request(t)
			result, err := NewConfigSolver().Solve(context.Background(), req)
			require.NoError(t, err)

			rec := result.Recommended
			assert.Equal(t, tc.expectedVerdict, rec.Verdict())
			assert.Equal(t, tc.expectedMicroBatch, rec.MicroBatchSize)
			assert.Equal(t, tc.expectedAccumulation, rec.GradientAccumulationSteps)
			assert.Equal(t, rec.MicroBatchSize*rec.GradientAccumulationSteps, rec.EffectiveBatchSize)
			assert.Equal(t, tc.expectedCheckpointing, rec.GradientCheckpointing)
			assert.Equal(t, req.SeqLen, rec.SeqLen)
			assert.Equal(t, rec.Fits(), rec.VRAMBreakdown.TotalGB() <= req.Hardware.UsableVRAMGB())

			if tc.expectedAggressive == 0 {
				assert.Nil(t, result.Aggressive)
			} else if assert.NotNil(t, result.Aggressive) {
				assert.Equal(t, tc.expectedAggressive, result.Aggressive.MicroBatchSize)
				assert.LessOrEqual(t, result.Aggressive.VRAMBreakdown.TotalGB(), req.Hardware.TotalVRAMGB)
				assert.Greater(t, result.Aggressive.VRAMBreakdown.TotalGB(), rec.VRAMBreakdown.TotalGB())
			}

			joined := ""
			for _, w := range result.Warnings {
				joined += w + "\n"
			}
			for _, w := range tc.expectedWarnings {
				assert.Contains(t, joined, w)
			}
			if len(tc.expectedWarnings) == 0 {
				assert.Empty(t, result.Warnings)
			}
		})
	}
}

func TestSolveReasoning(t *testing.T) {
	result, err := NewConfigSolver().Solve(context.Background(), llamaRequest(t, model.TrainingMethodQLora, 512))
	require.NoError(t, err)

	rec := result.Recommended
	assert.Equal(t, []string{ReasonBatchSize, ReasonAccumulation, ReasonCheckpointing, ReasonVerdict, ReasonDetail}, rec.Reasoning.Keys())
	batch, _ := rec.Reasoning.Get(ReasonBatchSize)
	assert.Contains(t, batch, "8 would need")
	detail, _ := rec.Reasoning.Get(ReasonDetail)
	assert.Contains(t, detail, "of 22.8 GB usable")

	assert.Equal(t, "paged_adamw_8bit", rec.Optimizer)
	assert.Equal(t, 16, rec.LoRARank)
	assert.Equal(t, []string{"q_proj", "k_proj", "v_proj", "o_proj", "gate_proj", "up_proj", "down_proj"}, rec.LoRATargets)

	margin, ok := result.Aggressive.Reasoning.Get(ReasonMargin)
	assert.True(t, ok)
	assert.Contains(t, margin, "2%")
}

func TestSolveAggressiveWithoutCheckpointing(t *testing.T) {
	req := Request{
		Model: model.NewModelProfile(model.ModelProfile{
			ModelID:           "example/wide-vocab-2b",
			Architecture:      "GemmaForCausalLM",
			Family:            "gemma",
			HiddenSize:        2048,
			NumLayers:         18,
			NumAttentionHeads: 8,
			IntermediateSize:  16384,
			VocabSize:         256000,
			TotalParams:       2_500_000_000,
		}),
		Method: model.TrainingMethodQLora,
		SeqLen: 512,
		LoRA:   model.LoRAConfig{Rank: 16},
	}
	s := NewConfigSolver()
	totalGB := func(microBatch int, checkpointing bool, margin float64) float64 {
		b, err := s.estimate(req, microBatch, checkpointing, margin)
		require.NoError(t, err)
		return b.TotalGB()
	}
	plain, plainRelaxed := totalGB(1, false, vram.DynamicMarginFraction), totalGB(1, false, vram.AggressiveMarginFraction)
	ckpt, doubledRelaxed := totalGB(1, true, vram.DynamicMarginFraction), totalGB(2, true, vram.AggressiveMarginFraction)

	// Usable memory sits between the checkpointed and plain batch of one; total memory
	// admits the plain batch at the relaxed margin but not a doubled checkpointed batch.
	usable := (ckpt + plain) / 2
	total := (plainRelaxed + doubledRelaxed) / 2
	require.Less(t, usable, total)
	req.Hardware = sku.HardwareSpec{Name: "test card", TotalVRAMGB: total, OverheadGB: total - usable}

	result, err := s.Solve(context.Background(), req)
	require.NoError(t, err)

	rec := result.Recommended
	assert.Equal(t, VerdictFits, rec.Verdict())
	assert.Equal(t, 1, rec.MicroBatchSize)
	assert.True(t, rec.GradientCheckpointing)

	require.NotNil(t, result.Aggressive)
	assert.Equal(t, 1, result.Aggressive.MicroBatchSize)
	assert.False(t, result.Aggressive.GradientCheckpointing)
	assert.InDelta(t, plainRelaxed, result.Aggressive.VRAMBreakdown.TotalGB(), 1e-9)
	batch, _ := result.Aggressive.Reasoning.Get(ReasonBatchSize)
	assert.Equal(t, "same micro batch without gradient checkpointing", batch)
	margin, _ := result.Aggressive.Reasoning.Get(ReasonMargin)
	assert.Equal(t, "2% dynamic margin instead of 6%", margin)
}

func TestSolveDoesNotFitDetail(t *testing.T) {
	result, err := NewConfigSolver().Solve(context.Background(), llamaRequest(t, model.TrainingMethodFull, 512))
	require.NoError(t, err)

	detail, _ := result.Recommended.Reasoning.Get(ReasonDetail)
	assert.Regexp(t, `^Requires \d+\.\d GB but only 22\.8 GB usable$`, detail)
	assert.Equal(t, "adamw_torch", result.Recommended.Optimizer)
	assert.Zero(t, result.Recommended.LoRARank)
	assert.Empty(t, result.Recommended.LoRATargets)
}

func TestSolveThenEstimateFixedAgree(t *testing.T) {
	s := NewConfigSolver()
	for _, m := range model.TrainingMethods {
		for _, seqLen := range []int{256, 512, 2048, 8192} {
			req := llamaRequest(t, m, seqLen)
			solved, err := s.Solve(context.Background(), req)
			require.NoError(t, err)

			fixed, err := s.EstimateFixed(context.Background(), req, solved.Recommended.MicroBatchSize)
			require.NoError(t, err)

			assert.Equal(t, solved.Recommended.Verdict(), fixed.Recommended.Verdict(), "%s seq %d", m, seqLen)
			assert.Equal(t, solved.Recommended.GradientCheckpointing, fixed.Recommended.GradientCheckpointing, "%s seq %d", m, seqLen)
			assert.InDelta(t, solved.Recommended.VRAMBreakdown.TotalGB(), fixed.Recommended.VRAMBreakdown.TotalGB(), 1e-9, "%s seq %d", m, seqLen)
			assert.Nil(t, fixed.Aggressive)
		}
	}
}

func TestEstimateFixed(t *testing.T) {
	testcases := map[string]struct {
		method                model.TrainingMethod
		seqLen                int
		batchSize             int
		expectedVerdict       string
		expectedCheckpointing bool
		expectedAccumulation  int
	}{
		"small batch fits": {
			method: model.TrainingMethodQLora, seqLen: 512, batchSize: 2,
			expectedVerdict: VerdictFits, expectedAccumulation: 8,
		},
		"large batch turns on checkpointing": {
			method: model.TrainingMethodQLora, seqLen: 512, batchSize: 8,
			expectedVerdict: VerdictFits, expectedCheckpointing: true, expectedAccumulation: 2,
		},
		"odd batch rounds accumulation up": {
			method: model.TrainingMethodQLora, seqLen: 512, batchSize: 3,
			expectedVerdict: VerdictFits, expectedAccumulation: 6,
		},
		"full never fits": {
			method: model.TrainingMethodFull, seqLen: 512, batchSize: 1,
			expectedVerdict: VerdictDoesNotFit, expectedCheckpointing: true, expectedAccumulation: 16,
		},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			result, err := NewConfigSolver().EstimateFixed(context.Background(), llamaRequest(t, tc.method, tc.seqLen), tc.batchSize)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedVerdict, result.Recommended.Verdict())
			assert.Equal(t, tc.batchSize, result.Recommended.MicroBatchSize)
			assert.Equal(t, tc.expectedCheckpointing, result.Recommended.GradientCheckpointing)
			assert.Equal(t, tc.expectedAccumulation, result.Recommended.GradientAccumulationSteps)
			assert.Nil(t, result.Aggressive)
		})
	}
}

func TestInvalidRequests(t *testing.T) {
	testcases := map[string]struct {
		mutate      func(*Request)
		batchSize   int
		expectedMsg string
	}{
		"unknown method":     {mutate: func(r *Request) { r.Method = "banana" }, batchSize: 1, expectedMsg: "banana"},
		"zero seq len":       {mutate: func(r *Request) { r.SeqLen = 0 }, batchSize: 1, expectedMsg: "seq_len"},
		"zero rank":          {mutate: func(r *Request) { r.LoRA.Rank = 0 }, batchSize: 1, expectedMsg: "lora_rank"},
		"negative eval":      {mutate: func(r *Request) { r.EvalSeqLen = -5 }, batchSize: 1, expectedMsg: "eval_seq_len"},
		"no usable hardware": {mutate: func(r *Request) { r.Hardware = sku.HardwareSpec{Name: "none"} }, batchSize: 1, expectedMsg: "gpu"},
		"zero batch":         {mutate: func(*Request) {}, batchSize: 0, expectedMsg: "batch_size"},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			req := llamaRequest(t, model.TrainingMethodQLora, 512)
			tc.mutate(&req)

			_, err := NewConfigSolver().EstimateFixed(context.Background(), req, tc.batchSize)
			require.Error(t, err)
			assert.True(t, utils.IsInvalidArgument(err))
			assert.Contains(t, err.Error(), tc.expectedMsg)

			if tc.batchSize > 0 {
				_, err = NewConfigSolver().Solve(context.Background(), req)
				assert.True(t, utils.IsInvalidArgument(err))
			}
		})
	}
}

func TestEvalSpike(t *testing.T) {
	testcases := map[string]struct {
		evalSeqLen       int
		enabled          bool
		expectedWarning  string
		expectedEvalPeak bool
	}{
		"longer eval sequences spike": {
			evalSeqLen: 2048, enabled: true,
			expectedWarning: "Evaluation at seq len 2048 adds", expectedEvalPeak: true,
		},
		"huge eval exceeds usable": {
			evalSeqLen: 16384, enabled: true,
			expectedWarning: "exceeds the 22.8 GB usable", expectedEvalPeak: true,
		},
		"shorter eval is fine":     {evalSeqLen: 256, enabled: true},
		"same length is fine":      {evalSeqLen: 512, enabled: true},
		"unset eval length":        {evalSeqLen: 0, enabled: true},
		"check disabled by option": {evalSeqLen: 2048, enabled: false},
	}
	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			req := llamaRequest(t, model.TrainingMethodQLora, 512)
			req.EvalSeqLen = tc.evalSeqLen
			result, err := NewConfigSolver(WithEvalSpikeCheck(tc.enabled)).Solve(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, VerdictFits, result.Recommended.Verdict(), "eval spikes never change the verdict")
			peak, ok := result.Recommended.Reasoning.Get(ReasonEvalPeak)
			assert.Equal(t, tc.expectedEvalPeak, ok)
			if tc.expectedWarning == "" {
				assert.Empty(t, result.Warnings)
				return
			}
			assert.NotEmpty(t, peak)
			require.Len(t, result.Warnings, 1)
			assert.Contains(t, result.Warnings[0], tc.expectedWarning)
		})
	}
}

func TestSolverResultJSON(t *testing.T) {
	result, err := NewConfigSolver().Solve(context.Background(), llamaRequest(t, model.TrainingMethodQLora, 512))
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"warnings":[]`)
	assert.Contains(t, string(data), `"reasoning":{"micro_batch_size":`)

	var decoded SolverResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Recommended.Reasoning.Equal(result.Recommended.Reasoning))
	assert.Equal(t, result.Recommended.MicroBatchSize, decoded.Recommended.MicroBatchSize)
}

func TestWithLogger(t *testing.T) {
	var lines []string
	log := funcr.New(func(prefix, args string) {
		lines = append(lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 2})

	s := NewConfigSolver(WithLogger(log.WithName("solver")))
	_, err := s.Solve(context.Background(), llamaRequest(t, model.TrainingMethodQLora, 512))
	require.NoError(t, err)
	if assert.NotEmpty(t, lines) {
		assert.Contains(t, lines[len(lines)-1], `"msg"="solved"`)
		assert.Contains(t, lines[len(lines)-1], "solver")
	}
}
