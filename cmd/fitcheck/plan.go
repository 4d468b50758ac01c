// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/utils/ptr"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/config"
	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/report"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

const specUsage = `"METHOD MODEL on GPU [with DATASET] [at SEQ_LEN]"`

// planFlags are the per-run inputs shared by plan and compare.
type planFlags struct {
	model          string
	method         string
	seqLen         int
	loraRank       int
	loraTargets    []string
	batchSize      int
	evalSeqLen     int
	dataset        string
	trainingConfig string
}

func (f *planFlags) addFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.model, "model", "m", "", "Preset name, Hugging Face model ID or local directory with a config.json")
	flags.StringVar(&f.method, "method", "", "Training method. One of: full, lora, qlora")
	flags.IntVar(&f.seqLen, "seq-len", 0, "Training sequence length. Defaults to the dataset p95 or 512")
	flags.IntVar(&f.loraRank, "lora-rank", 0, "LoRA rank for lora and qlora")
	flags.StringSliceVar(&f.loraTargets, "lora-targets", nil, "LoRA target modules. Defaults to every attention and MLP projection")
	flags.IntVar(&f.batchSize, "batch-size", 0, "Estimate a fixed micro batch size instead of searching")
	flags.IntVar(&f.evalSeqLen, "eval-seq-len", 0, "Evaluation sequence length used to check the eval logits spike")
	flags.StringVarP(&f.dataset, "dataset", "d", "", "Local JSONL or JSON dataset to profile")
	flags.StringVar(&f.trainingConfig, "training-config", "", "kaito training_config.yaml to read defaults from")
}

// options merges the inputs. Precedence, highest first: explicit flags, the shorthand
// spec argument, the training config, the environment.
func (f *planFlags) options(cmd *cobra.Command, args []string, env *config.Env) (plan.Options, error) {
	var o plan.Options

	if f.trainingConfig != "" {
		cfg, err := config.LoadTrainingConfig(f.trainingConfig)
		if err != nil {
			return o, err
		}
		d, err := cfg.TrainingConfig.ToPlanDefaults()
		if err != nil {
			return o, fmt.Errorf("%s: %w", f.trainingConfig, err)
		}
		o.ModelID = d.ModelID
		o.Method = string(d.Method)
		o.LoRARank = d.LoRARank
		o.LoRATargets = d.LoRATargets
		o.BatchSize = d.BatchSize
		o.SeqLen = d.SeqLen
	}

	if len(args) > 0 {
		spec, ok := parseSpec(args[0])
		if !ok {
			return o, utils.NewInvalidArgument(apis.ErrInvalidValue(args[0], "spec", "expected "+specUsage))
		}
		o.Method = spec.Method
		o.ModelID = spec.ModelID
		o.GPU = spec.GPU
		if spec.DatasetPath != "" {
			o.DatasetPath = spec.DatasetPath
		}
		if spec.SeqLen != nil {
			o.SeqLen = spec.SeqLen
		}
	}

	flags := cmd.Flags()
	if flags.Changed("model") {
		o.ModelID = f.model
	}
	if flags.Changed("method") {
		o.Method = f.method
	}
	if flags.Changed("seq-len") {
		o.SeqLen = ptr.To(f.seqLen)
	}
	if flags.Changed("lora-rank") {
		o.LoRARank = f.loraRank
	}
	if flags.Changed("lora-targets") {
		o.LoRATargets = f.loraTargets
	}
	if flags.Changed("batch-size") {
		o.BatchSize = ptr.To(f.batchSize)
	}
	if flags.Changed("eval-seq-len") {
		o.EvalSeqLen = ptr.To(f.evalSeqLen)
	}
	if flags.Changed("dataset") {
		o.DatasetPath = f.dataset
	}
	if o.LoRARank == 0 && env != nil {
		o.LoRARank = env.LoRARank
	}
	return o, nil
}

// missing lists the required inputs that are still empty.
func missing(o plan.Options, requireGPU bool) *apis.FieldError {
	var fields []string
	if o.ModelID == "" {
		fields = append(fields, "model")
	}
	if o.Method == "" {
		fields = append(fields, "method")
	}
	if requireGPU && o.GPU == "" {
		fields = append(fields, "gpu")
	}
	if len(fields) == 0 {
		return nil
	}
	return apis.ErrMissingField(fields...)
}

type planOptions struct {
	planFlags
	gpu string
}

func newPlanCommand(root *rootOptions) *cobra.Command {
	o := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan [" + specUsage + "]",
		Short: "Estimate VRAM and recommend a training config for one GPU",
		Example: `  fitcheck plan "qlora meta-llama/Llama-3.1-8B on 3090"
  fitcheck plan "lora mistral-7b on a100-40gb with train.jsonl at 2048"
  fitcheck plan --model ./my-model --method full --gpu h100 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := o.options(cmd, args, root.env)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("gpu") {
				opts.GPU = o.gpu
			}
			if err := utils.NewInvalidArgument(missing(opts, true)); err != nil {
				return err
			}
			r, err := root.newPlanner().Plan(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), root.output, r)
		},
	}
	o.addFlags(cmd)
	cmd.Flags().StringVarP(&o.gpu, "gpu", "g", "", "GPU name, alias or cloud instance type")
	return cmd
}
