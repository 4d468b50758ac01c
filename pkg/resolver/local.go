// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

const configFileName = "config.json"

// mlpMatrices is the number of hidden x intermediate projections per decoder block.
// Gated MLPs carry gate, up and down; the others carry up and down only.
var mlpMatrices = map[string]int{
	"llama":   3,
	"mistral": 3,
	"qwen2":   3,
	"phi3":    3,
	"falcon":  2,
	"phi":     2,
}

// hfConfig is the subset of a Hugging Face config.json needed for estimation.
// Falcon checkpoints predating the transformers port use the n_* names.
type hfConfig struct {
	ModelType             string   `json:"model_type"`
	Architectures         []string `json:"architectures"`
	HiddenSize            int      `json:"hidden_size"`
	NEmbed                int      `json:"n_embed"`
	NumHiddenLayers       int      `json:"num_hidden_layers"`
	NLayer                int      `json:"n_layer"`
	NumAttentionHeads     int      `json:"num_attention_heads"`
	NHead                 int      `json:"n_head"`
	NumKeyValueHeads      int      `json:"num_key_value_heads"`
	NumKVHeads            int      `json:"num_kv_heads"`
	MultiQuery            bool     `json:"multi_query"`
	IntermediateSize      int      `json:"intermediate_size"`
	FFNHiddenSize         int      `json:"ffn_hidden_size"`
	VocabSize             int      `json:"vocab_size"`
	MaxPositionEmbeddings int      `json:"max_position_embeddings"`
	TieWordEmbeddings     *bool    `json:"tie_word_embeddings"`
}

// LocalConfigResolver reads a Hugging Face config.json from disk. The model ID is
// either the file itself or a directory containing it.
type LocalConfigResolver struct{}

func NewLocalConfigResolver() *LocalConfigResolver {
	return &LocalConfigResolver{}
}

func (r *LocalConfigResolver) Resolve(ctx context.Context, modelID string) (model.ModelProfile, error) {
	path := modelID
	if fi, err := os.Stat(path); err != nil {
		return model.ModelProfile{}, utils.NewNotFound("models", modelID, nil)
	} else if fi.IsDir() {
		path = filepath.Join(path, configFileName)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.ModelProfile{}, utils.NewNotFound("models", modelID, nil, "no "+configFileName+" in directory")
	}
	if err != nil {
		return model.ModelProfile{}, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg hfConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.ModelProfile{}, utils.NewInvalidArgument(apis.ErrGeneric(err.Error(), configFileName))
	}
	p, err := profileFromConfig(modelID, cfg)
	if err != nil {
		return model.ModelProfile{}, err
	}
	klog.FromContext(ctx).V(2).Info("Resolved local model config", "path", path, "family", p.Family, "params", p.TotalParams)
	return p, nil
}

// profileFromConfig derives a profile from parsed config.json fields.
func profileFromConfig(modelID string, cfg hfConfig) (model.ModelProfile, error) {
	family := strings.ToLower(cfg.ModelType)
	if family == "refinedweb" || family == "refinedwebmodel" {
		family = "falcon"
	}
	matrices, ok := mlpMatrices[family]
	if !ok {
		return model.ModelProfile{}, utils.NewInvalidArgument(apis.ErrInvalidValue(cfg.ModelType, "model_type",
			"supported architectures are "+strings.Join(utils.SortedKeys(mlpMatrices), ", ")))
	}

	h := firstPositive(cfg.HiddenSize, cfg.NEmbed)
	heads := firstPositive(cfg.NumAttentionHeads, cfg.NHead)
	kv := firstPositive(cfg.NumKeyValueHeads, cfg.NumKVHeads)
	if kv == 0 && cfg.MultiQuery {
		kv = 1
	}
	arch := ""
	if len(cfg.Architectures) > 0 {
		arch = cfg.Architectures[0]
	}
	p := model.ModelProfile{
		ModelID:               modelID,
		Architecture:          arch,
		Family:                family,
		HiddenSize:            h,
		NumLayers:             firstPositive(cfg.NumHiddenLayers, cfg.NLayer),
		NumAttentionHeads:     heads,
		NumKVHeads:            kv,
		IntermediateSize:      firstPositive(cfg.IntermediateSize, cfg.FFNHiddenSize),
		VocabSize:             cfg.VocabSize,
		MaxPositionEmbeddings: cfg.MaxPositionEmbeddings,
	}
	if p.NumKVHeads == 0 {
		p.NumKVHeads = p.NumAttentionHeads
	}
	// falcon and phi tie their output projection unless told otherwise.
	tied := family == "falcon" || family == "phi"
	if cfg.TieWordEmbeddings != nil {
		tied = *cfg.TieWordEmbeddings
	}
	p.TotalParams = countParams(p, matrices, tied)
	p = model.NewModelProfile(p)
	if err := utils.NewInvalidArgument(p.Validate()); err != nil {
		return model.ModelProfile{}, err
	}
	return p, nil
}

// countParams approximates the parameter count from the layer dimensions,
// ignoring biases.
func countParams(p model.ModelProfile, matrices int, tiedEmbeddings bool) int64 {
	h, kv, ffn := int64(p.HiddenSize), int64(p.KVDim()), int64(p.FFNSize())
	embed := int64(p.VocabSize) * h
	attention := 2*h*h + 2*h*kv
	mlp := int64(matrices) * h * ffn
	norms := 2 * h
	total := embed + int64(p.NumLayers)*(attention+mlp+norms) + h
	if !tiedEmbeddings {
		total += embed
	}
	return total
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
