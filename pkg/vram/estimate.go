// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package vram

import (
	"fmt"
	"math"

	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

const (
	// DynamicMarginFraction covers allocator fragmentation and transient buffers
	// on top of the steady-state components.
	DynamicMarginFraction = 0.06
	// AggressiveMarginFraction is the margin used when probing a riskier config.
	AggressiveMarginFraction = 0.02

	// Bytes of saved activations per token per hidden unit in one decoder layer, bf16.
	activationBytesPerHidden = 34
	// Bytes per token per attention head of flash-attention softmax statistics.
	activationBytesPerHead = 4
	// AdamW keeps two moments per trainable parameter.
	optimizerStates = 2
	// Logits are upcast to fp32 for the loss.
	logitsBytesPerElement = consts.BytesFP32
)

const (
	ComponentWeights     = "Model weights"
	ComponentOptimizer   = "Optimizer states"
	ComponentGradients   = "Gradients"
	ComponentActivations = "Activations"
	ComponentLogits      = "Logits buffer"
)

// Input is everything that determines the memory of one training step.
type Input struct {
	Model                 model.ModelProfile
	Method                model.TrainingMethod
	MicroBatchSize        int
	SeqLen                int
	LoRA                  model.LoRAConfig
	GradientCheckpointing bool
	// MarginFraction overrides DynamicMarginFraction when positive.
	MarginFraction float64
}

func (in Input) Validate() (errs *apis.FieldError) {
	if _, ok := formulas[in.Method]; !ok {
		errs = errs.Also(apis.ErrInvalidValue(in.Method, "method"))
	}
	if in.MicroBatchSize <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(in.MicroBatchSize, "batch_size", "must be a positive integer"))
	}
	if in.SeqLen <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(in.SeqLen, "seq_len", "must be a positive integer"))
	}
	if in.Method.IsAdapter() {
		errs = errs.Also(in.LoRA.Validate())
	}
	return errs.Also(in.Model.Validate().ViaField("model"))
}

func (in Input) margin() float64 {
	if in.MarginFraction > 0 {
		return in.MarginFraction
	}
	return DynamicMarginFraction
}

// methodFormulas holds the method-specific parts of the estimate.
type methodFormulas struct {
	trainable func(p model.ModelProfile, lora model.LoRAConfig) int64
	weights   func(p model.ModelProfile, trainable int64) ComponentEstimate
	optimizer func(trainable int64) ComponentEstimate
	// optimizerName is the optimizer the estimate assumes.
	optimizerName string
}

var formulas = map[model.TrainingMethod]methodFormulas{
	model.TrainingMethodFull: {
		trainable: func(p model.ModelProfile, _ model.LoRAConfig) int64 { return p.TotalParams },
		weights: func(p model.ModelProfile, _ int64) ComponentEstimate {
			return ComponentEstimate{
				Name:        ComponentWeights,
				Bytes:       float64(p.TotalParams) * consts.BytesBF16,
				Description: fmt.Sprintf("%.2fB params in bf16", p.TotalParamsB),
			}
		},
		optimizer: func(trainable int64) ComponentEstimate {
			return ComponentEstimate{
				Name:        ComponentOptimizer,
				Bytes:       float64(trainable) * optimizerStates * consts.BytesFP32,
				Description: "AdamW, 2 fp32 states per param",
			}
		},
		optimizerName: "adamw_torch",
	},
	model.TrainingMethodLora: {
		trainable:     loraParams,
		weights:       adapterWeights(consts.BytesBF16, "bf16"),
		optimizer:     pagedOptimizer,
		optimizerName: "paged_adamw_8bit",
	},
	model.TrainingMethodQLora: {
		trainable:     loraParams,
		weights:       adapterWeights(consts.BytesNF4, "4-bit NF4"),
		optimizer:     pagedOptimizer,
		optimizerName: "paged_adamw_8bit",
	},
}

func adapterWeights(baseBytes float64, format string) func(model.ModelProfile, int64) ComponentEstimate {
	return func(p model.ModelProfile, trainable int64) ComponentEstimate {
		return ComponentEstimate{
			Name:        ComponentWeights,
			Bytes:       float64(p.TotalParams)*baseBytes + float64(trainable)*consts.BytesFP32,
			Description: fmt.Sprintf("%.2fB frozen params in %s plus fp32 adapter", p.TotalParamsB, format),
		}
	}
}

func pagedOptimizer(trainable int64) ComponentEstimate {
	return ComponentEstimate{
		Name:        ComponentOptimizer,
		Bytes:       float64(trainable) * optimizerStates * consts.BytesInt8,
		Description: "paged 8-bit AdamW, 2 states per trainable param",
	}
}

// TrainableParams returns the number of parameters updated by the optimizer.
func TrainableParams(p model.ModelProfile, method model.TrainingMethod, lora model.LoRAConfig) (int64, error) {
	f, ok := formulas[method]
	if !ok {
		return 0, utils.NewInvalidArgument(apis.ErrInvalidValue(method, "method"))
	}
	return f.trainable(p, lora), nil
}

// OptimizerName returns the optimizer the estimate for method assumes.
func OptimizerName(method model.TrainingMethod) string {
	return formulas[method].optimizerName
}

// LogitsBytes is the fp32 logits tensor for b sequences of s tokens over a vocabulary of v.
func LogitsBytes(b, s, v int) float64 {
	return float64(b) * float64(s) * float64(v) * logitsBytesPerElement
}

func activationBytes(p model.ModelProfile, b, s int, checkpointing bool) (float64, string) {
	tokens := float64(b) * float64(s)
	perLayer := tokens * float64(activationBytesPerHidden*p.HiddenSize+activationBytesPerHead*p.NumAttentionHeads)
	if !checkpointing {
		return perLayer * float64(p.NumLayers), fmt.Sprintf("%d layers x %d tokens", p.NumLayers, b*s)
	}
	recomputed := math.Ceil(math.Sqrt(float64(p.NumLayers)))
	layerInputs := tokens * float64(p.HiddenSize) * consts.BytesBF16 * float64(p.NumLayers)
	return layerInputs + recomputed*perLayer,
		fmt.Sprintf("checkpointed, %d layer inputs + %d recomputed layers x %d tokens", p.NumLayers, int(recomputed), b*s)
}

// Estimate computes the memory breakdown of one training step. Invalid input is an
// InvalidArgument error.
func Estimate(in Input) (VRAMBreakdown, error) {
	if err := utils.NewInvalidArgument(in.Validate()); err != nil {
		return VRAMBreakdown{}, err
	}
	f := formulas[in.Method]
	p := in.Model
	trainable := f.trainable(p, in.LoRA)

	act, actDesc := activationBytes(p, in.MicroBatchSize, in.SeqLen, in.GradientCheckpointing)
	b := VRAMBreakdown{
		Weights:   f.weights(p, trainable),
		Optimizer: f.optimizer(trainable),
		Gradients: ComponentEstimate{
			Name:        ComponentGradients,
			Bytes:       float64(trainable) * consts.BytesBF16,
			Description: fmt.Sprintf("bf16, %d trainable params", trainable),
		},
		Activations: ComponentEstimate{
			Name:        ComponentActivations,
			Bytes:       act,
			Description: actDesc,
		},
		LogitsBuffer: ComponentEstimate{
			Name:        ComponentLogits,
			Bytes:       LogitsBytes(in.MicroBatchSize, in.SeqLen, p.VocabSize),
			Description: fmt.Sprintf("fp32, batch %d x seq %d x vocab %d", in.MicroBatchSize, in.SeqLen, p.VocabSize),
		},
	}
	b.DynamicMarginBytes = b.SteadyStateBytes() * in.margin()
	return b, nil
}
