// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaito-project/fitcheck/pkg/featuregates"
	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/solver"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// run executes the CLI with the FITCHECK_* variables cleared and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{consts.EnvHardwareFile, consts.EnvLoRARank, consts.EnvOutput, consts.EnvFeatureGates} {
		t.Setenv(key, "")
	}
	return execute(t, args...)
}

// execute runs the CLI in the current environment and restores the feature gates afterwards.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	gates := map[string]bool{}
	for k, v := range featuregates.FeatureGates {
		gates[k] = v
	}
	t.Cleanup(func() {
		for k, v := range gates {
			featuregates.FeatureGates[k] = v
		}
	})

	var out bytes.Buffer
	cmd := newRootCommand(nil)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func runPlanJSON(t *testing.T, args ...string) plan.PlanReport {
	t.Helper()
	out, err := run(t, append([]string{"plan", "-o", "json"}, args...)...)
	require.NoError(t, err)
	var r plan.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	return r
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPlanShorthand(t *testing.T) {
	out, err := run(t, "plan", "qlora llama-3.1-8b on 3090")
	require.NoError(t, err)
	for _, s := range []string{"meta-llama/Llama-3.1-8B", "NVIDIA RTX 3090", "VRAM Breakdown", "Recommended Config", "FITS"} {
		assert.Contains(t, out, s)
	}
}

func TestPlanJSON(t *testing.T) {
	r := runPlanJSON(t, "--model", "meta-llama/Llama-3.1-8B", "--method", "qlora", "--gpu", "rtx3090")

	assert.Equal(t, "meta-llama/Llama-3.1-8B", r.ModelID)
	assert.Equal(t, "NVIDIA RTX 3090", r.HardwareName)
	assert.Equal(t, model.TrainingMethodQLora, r.Method)
	assert.Equal(t, consts.DefaultSeqLen, r.SeqLenUsed)
	assert.Equal(t, plan.DatasetSourceNone, r.DatasetSource)
	assert.Equal(t, int64(41_943_040), r.TrainableParams)
	assert.Equal(t, solver.VerdictFits, r.SolverResult.Recommended.Verdict())
	assert.Equal(t, consts.DefaultLoRARank, r.SolverResult.Recommended.LoRARank)
}

func TestPlanFlagsOverrideShorthand(t *testing.T) {
	r := runPlanJSON(t, "qlora llama-3.1-8b on 3090 at 1024", "--method", "lora", "--gpu", "a100-80gb", "--lora-rank", "8")

	assert.Equal(t, model.TrainingMethodLora, r.Method)
	assert.Equal(t, "NVIDIA A100 80GB", r.HardwareName)
	assert.Equal(t, 1024, r.SeqLenUsed)
	assert.Equal(t, "--seq-len 1024", r.SeqLenReasoning)
	assert.Equal(t, int64(20_971_520), r.TrainableParams)
}

func TestPlanBatchSize(t *testing.T) {
	r := runPlanJSON(t, "qlora llama-3.1-8b on 3090", "--batch-size", "2")

	c := r.SolverResult.Recommended
	assert.Equal(t, 2, c.MicroBatchSize)
	assert.Equal(t, 8, c.GradientAccumulationSteps)
	assert.Nil(t, r.SolverResult.Aggressive)
}

func TestPlanLoRARankFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, envFile), []byte(consts.EnvLoRARank+"=32\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	// .env never overrides a variable that is already set, even to "".
	require.NoError(t, os.Unsetenv(consts.EnvLoRARank))
	t.Cleanup(func() { _ = os.Unsetenv(consts.EnvLoRARank) })

	out, err := execute(t, "plan", "qlora llama-3.1-8b on 3090", "-o", "json")
	require.NoError(t, err)
	var r plan.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, int64(2*41_943_040), r.TrainableParams)
	assert.Equal(t, 32, r.SolverResult.Recommended.LoRARank)
}

func TestPlanOutputFromEnv(t *testing.T) {
	t.Setenv(consts.EnvOutput, "json")
	out, err := execute(t, "plan", "qlora llama-3.1-8b on 3090")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)))

	out, err = execute(t, "plan", "qlora llama-3.1-8b on 3090", "-o", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Recommended Config")
}

func TestPlanTrainingConfig(t *testing.T) {
	path := writeFile(t, "training_config.yaml", `
training_config:
  ModelConfig:
    pretrained_model_name_or_path: meta-llama/Llama-3.1-8B
  QuantizationConfig:
    load_in_4bit: true
  LoraConfig:
    r: 8
    target_modules: ["q_proj", "v_proj"]
  TrainingArguments:
    per_device_train_batch_size: 2
  TokenizerParams:
    max_length: 1024
`)
	r := runPlanJSON(t, "--training-config", path, "--gpu", "4090")

	assert.Equal(t, "meta-llama/Llama-3.1-8B", r.ModelID)
	assert.Equal(t, model.TrainingMethodQLora, r.Method)
	assert.Equal(t, 1024, r.SeqLenUsed)
	assert.Equal(t, 2, r.SolverResult.Recommended.MicroBatchSize)
	assert.Equal(t, 8, r.SolverResult.Recommended.LoRARank)
	assert.Equal(t, []string{"q_proj", "v_proj"}, r.SolverResult.Recommended.LoRATargets)
}

func TestPlanErrors(t *testing.T) {
	testcases := map[string]struct {
		args       []string
		invalid    bool
		notFound   bool
		errContain string
	}{
		"unparseable shorthand": {
			args:    []string{"plan", "make it fit please"},
			invalid: true,
		},
		"missing gpu": {
			args:       []string{"plan", "--model", "llama-3.1-8b", "--method", "qlora"},
			invalid:    true,
			errContain: "gpu",
		},
		"missing everything": {
			args:       []string{"plan"},
			invalid:    true,
			errContain: "model",
		},
		"unknown gpu": {
			args:     []string{"plan", "qlora llama-3.1-8b on potato"},
			notFound: true,
		},
		"unknown model": {
			args:     []string{"plan", "qlora not-a-model on 3090"},
			notFound: true,
		},
		"unknown method flag": {
			args:    []string{"plan", "qlora llama-3.1-8b on 3090", "--method", "dora"},
			invalid: true,
		},
		"unsupported output": {
			args:    []string{"plan", "qlora llama-3.1-8b on 3090", "-o", "yaml"},
			invalid: true,
		},
		"missing training config": {
			args:     []string{"plan", "--training-config", "does-not-exist.yaml", "--gpu", "3090"},
			notFound: true,
		},
		"missing hardware file": {
			args:     []string{"gpus", "--hardware-file", "does-not-exist.yaml"},
			notFound: true,
		},
		"invalid feature gate": {
			args:       []string{"gpus", "--feature-gates", "NoSuchGate=true"},
			errContain: "NoSuchGate",
		},
		"too many args": {
			args:       []string{"plan", "qlora llama-3.1-8b on 3090", "extra"},
			errContain: "accepts at most 1 arg",
		},
	}

	for k, tc := range testcases {
		t.Run(k, func(t *testing.T) {
			_, err := run(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.invalid, utils.IsInvalidArgument(err), err.Error())
			assert.Equal(t, tc.notFound, utils.IsNotFound(err), err.Error())
			if tc.errContain != "" {
				assert.Contains(t, err.Error(), tc.errContain)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	out, err := run(t, "compare", "-m", "llama-3.1-8b", "--method", "qlora", "--gpus", "3090,h100,t4", "-o", "json")
	require.NoError(t, err)

	var reports []plan.PlanReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 3)
	assert.Equal(t, "NVIDIA RTX 3090", reports[0].HardwareName)
	assert.Equal(t, "NVIDIA H100 80GB", reports[1].HardwareName)
	assert.Equal(t, "NVIDIA T4", reports[2].HardwareName)
	for _, r := range reports {
		assert.Equal(t, "meta-llama/Llama-3.1-8B", r.ModelID)
	}
	assert.GreaterOrEqual(t, reports[1].SolverResult.Recommended.MicroBatchSize, reports[0].SolverResult.Recommended.MicroBatchSize)
}

func TestCompareText(t *testing.T) {
	out, err := run(t, "compare", "-m", "phi-2", "--method", "lora")
	require.NoError(t, err)
	for _, s := range []string{"GPU", "VERDICT", "NVIDIA RTX 3090", "NVIDIA H100 80GB", "NVIDIA M60"} {
		assert.Contains(t, out, s)
	}
}

func TestCompareUnknownGPU(t *testing.T) {
	_, err := run(t, "compare", "-m", "phi-2", "--method", "lora", "--gpus", "3090,potato")
	require.Error(t, err)
	assert.True(t, utils.IsNotFound(err))
	assert.Contains(t, err.Error(), "potato")
}

func TestGPUs(t *testing.T) {
	path := writeFile(t, "gpus.yaml", `
gpus:
- name: NVIDIA RTX 6000 Ada
  aliases: [rtx6000ada]
  vram: 48Gi
  overhead: 1536Mi
`)
	out, err := run(t, "gpus", "--hardware-file", path, "-o", "json")
	require.NoError(t, err)

	var entries []gpuEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	names := map[string]gpuEntry{}
	for _, e := range entries {
		names[e.Name] = e
	}
	require.Contains(t, names, "NVIDIA RTX 6000 Ada")
	custom := names["NVIDIA RTX 6000 Ada"]
	assert.InDelta(t, 48.0, custom.TotalVRAMGB, 1e-9)
	assert.InDelta(t, 46.5, custom.UsableVRAMGB, 1e-9)
	assert.Contains(t, names, "NVIDIA RTX 3090")

	out, err = run(t, "gpus")
	require.NoError(t, err)
	assert.Contains(t, out, "NVIDIA A100 40GB")
	assert.Contains(t, out, "a100-40gb")
}

func TestPlanCustomGPU(t *testing.T) {
	path := writeFile(t, "gpus.yaml", `
gpus:
- name: NVIDIA RTX 6000 Ada
  aliases: [rtx6000ada]
  vram: 48Gi
  overhead: 1536Mi
`)
	r := runPlanJSON(t, "lora llama-3.1-8b on rtx6000ada", "--hardware-file", path)
	assert.Equal(t, "NVIDIA RTX 6000 Ada", r.HardwareName)
	assert.InDelta(t, 46.5, r.UsableVRAMGB, 1e-9)
}

func TestModels(t *testing.T) {
	out, err := run(t, "models", "-o", "json")
	require.NoError(t, err)

	var entries []modelEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	byName := map[string]modelEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	for _, name := range []string{"falcon-7b", "llama-3.1-8b", "mistral-7b", "phi-2", "phi-3-mini-4k-instruct", "qwen2.5-coder-7b-instruct", "llama-2-7b"} {
		assert.Contains(t, byName, name)
	}
	assert.Equal(t, "meta-llama/Llama-3.1-8B", byName["llama-3.1-8b"].ModelID)
	assert.True(t, byName["llama-3.1-8b"].SupportTuning)
	assert.False(t, byName["llama-2-7b"].SupportTuning)

	out, err = run(t, "models")
	require.NoError(t, err)
	assert.Contains(t, out, "MODEL ID")
	assert.Contains(t, out, "tiiuae/falcon-7b")
}
