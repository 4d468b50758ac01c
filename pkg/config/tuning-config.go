// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
	"k8s.io/utils/ptr"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

// Config is the training_config.yaml document consumed by kaito tuning jobs.
// Only the fields that change memory use are modeled; the rest are ignored.
type Config struct {
	TrainingConfig TrainingConfig `yaml:"training_config"`
}

type TrainingConfig struct {
	ModelConfig        *ModelConfig        `yaml:"ModelConfig"`
	TokenizerParams    *TokenizerParams    `yaml:"TokenizerParams"`
	QuantizationConfig *QuantizationConfig `yaml:"QuantizationConfig"`
	LoraConfig         *LoraConfig         `yaml:"LoraConfig"`
	TrainingArguments  *TrainingArguments  `yaml:"TrainingArguments"`
}

type TokenizerParams struct {
	Padding    *bool `yaml:"padding,omitempty"`
	Truncation *bool `yaml:"truncation,omitempty"`
	MaxLength  *int  `yaml:"max_length,omitempty"`
}

type ModelConfig struct {
	PretrainedModelNameOrPath *string `yaml:"pretrained_model_name_or_path,omitempty"`
	LoadIn4bit                *bool   `yaml:"load_in_4bit,omitempty"`
	LoadIn8bit                *bool   `yaml:"load_in_8bit,omitempty"`
	TorchDtype                *string `yaml:"torch_dtype,omitempty"`
}

type QuantizationConfig struct {
	QuantMethod           *string `yaml:"quant_method,omitempty"`
	LoadIn8bit            *bool   `yaml:"load_in_8bit,omitempty"`
	LoadIn4bit            *bool   `yaml:"load_in_4bit,omitempty"`
	BNB4bitComputeDtype   *string `yaml:"bnb_4bit_compute_dtype,omitempty"`
	BNB4bitQuantType      *string `yaml:"bnb_4bit_quant_type,omitempty"`
	BNB4bitUseDoubleQuant *bool   `yaml:"bnb_4bit_use_double_quant,omitempty"`
}

// LoraConfig is the PEFT adapter configuration.
type LoraConfig struct {
	R             *int      `yaml:"r,omitempty"`
	LoraAlpha     *int      `yaml:"lora_alpha,omitempty"`
	LoraDropout   *float64  `yaml:"lora_dropout,omitempty"`
	TargetModules *[]string `yaml:"target_modules,omitempty"`
}

// TrainingArguments holds the Hugging Face trainer arguments that affect memory.
type TrainingArguments struct {
	PerDeviceTrainBatchSize   *int    `yaml:"per_device_train_batch_size"`
	PerDeviceEvalBatchSize    *int    `yaml:"per_device_eval_batch_size"`
	GradientAccumulationSteps *int    `yaml:"gradient_accumulation_steps"`
	GradientCheckpointing     *bool   `yaml:"gradient_checkpointing"`
	Optim                     *string `yaml:"optim,omitempty"`
	Bf16                      *bool   `yaml:"bf16"`
	Fp16                      *bool   `yaml:"fp16"`
}

// PlanDefaults are the plan inputs a training config implies. Unset fields are nil or empty.
type PlanDefaults struct {
	ModelID     string
	Method      model.TrainingMethod
	LoRARank    int
	LoRATargets []string
	BatchSize   *int
	SeqLen      *int
}

// ParseTrainingConfig decodes a training_config.yaml document.
func ParseTrainingConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, utils.NewInvalidArgument(apis.ErrGeneric(fmt.Sprintf("Failed to parse 'training_config.yaml': %v", err), "config"))
	}
	return &config, nil
}

// LoadTrainingConfig reads and decodes the training config at path.
func LoadTrainingConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, utils.NewNotFound("training configs", path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read training config %s: %w", path, err)
	}
	return ParseTrainingConfig(data)
}

// quantization reports whether the base model is loaded in 4 or 8 bits, from either
// the QuantizationConfig or the ModelConfig shorthand.
func (c *TrainingConfig) quantization() (in4bit, in8bit bool) {
	if q := c.QuantizationConfig; q != nil {
		in4bit = ptr.Deref(q.LoadIn4bit, false)
		in8bit = ptr.Deref(q.LoadIn8bit, false)
	}
	if m := c.ModelConfig; m != nil {
		in4bit = in4bit || ptr.Deref(m.LoadIn4bit, false)
		in8bit = in8bit || ptr.Deref(m.LoadIn8bit, false)
	}
	return in4bit, in8bit
}

// InferMethod derives the training method: no LoRA section means full fine-tuning,
// LoRA over a quantized base is qlora.
func (c *TrainingConfig) InferMethod() model.TrainingMethod {
	if c.LoraConfig == nil {
		return model.TrainingMethodFull
	}
	if in4bit, in8bit := c.quantization(); in4bit || in8bit {
		return model.TrainingMethodQLora
	}
	return model.TrainingMethodLora
}

// Validate checks the config against the training method it will be planned with.
func (c *TrainingConfig) Validate(method model.TrainingMethod) (errs *apis.FieldError) {
	in4bit, in8bit := c.quantization()
	if in4bit && in8bit {
		errs = errs.Also(apis.ErrGeneric("Cannot set both 'load_in_4bit' and 'load_in_8bit' to true", "QuantizationConfig"))
	}
	switch method {
	case model.TrainingMethodLora, model.TrainingMethodFull:
		if in4bit || in8bit {
			errs = errs.Also(apis.ErrGeneric(fmt.Sprintf("For method '%s', 'load_in_4bit' or 'load_in_8bit' must not be true", method), "QuantizationConfig"))
		}
	case model.TrainingMethodQLora:
		if !in4bit && !in8bit {
			errs = errs.Also(apis.ErrGeneric("For method 'qlora', either 'load_in_4bit' or 'load_in_8bit' must be true", "QuantizationConfig"))
		}
	}
	if method.IsAdapter() && c.LoraConfig == nil {
		errs = errs.Also(apis.ErrMissingField("LoraConfig"))
	}
	if l := c.LoraConfig; l != nil && l.R != nil && *l.R <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(*l.R, "r", "must be a positive integer").ViaField("LoraConfig"))
	}
	if a := c.TrainingArguments; a != nil && a.PerDeviceTrainBatchSize != nil && *a.PerDeviceTrainBatchSize <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(*a.PerDeviceTrainBatchSize, "per_device_train_batch_size", "must be a positive integer").ViaField("TrainingArguments"))
	}
	if t := c.TokenizerParams; t != nil && t.MaxLength != nil && *t.MaxLength <= 0 {
		errs = errs.Also(apis.ErrInvalidValue(*t.MaxLength, "max_length", "must be a positive integer").ViaField("TokenizerParams"))
	}
	return errs
}

// ToPlanDefaults maps the config onto plan inputs after validating it against the
// inferred method.
func (c *TrainingConfig) ToPlanDefaults() (PlanDefaults, error) {
	d := PlanDefaults{Method: c.InferMethod()}
	if err := utils.NewInvalidArgument(c.Validate(d.Method)); err != nil {
		return PlanDefaults{}, err
	}
	if m := c.ModelConfig; m != nil {
		d.ModelID = ptr.Deref(m.PretrainedModelNameOrPath, "")
	}
	if l := c.LoraConfig; l != nil {
		d.LoRARank = ptr.Deref(l.R, 0)
		if l.TargetModules != nil {
			d.LoRATargets = append([]string{}, (*l.TargetModules)...)
		}
	}
	if a := c.TrainingArguments; a != nil {
		d.BatchSize = a.PerDeviceTrainBatchSize
	}
	if t := c.TokenizerParams; t != nil {
		d.SeqLen = t.MaxLength
	}
	return d, nil
}
