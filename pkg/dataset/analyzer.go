// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

const (
	// DefaultSampleSize is the number of leading rows used for length statistics.
	DefaultSampleSize = 1000
	// charsPerToken approximates BPE tokenizers on English text.
	charsPerToken = 4
	maxLineBytes  = 16 * 1024 * 1024
)

// Analyzer profiles a dataset file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*model.DatasetProfile, error)
}

// LocalAnalyzer reads .jsonl and .json files from the local filesystem.
type LocalAnalyzer struct {
	SampleSize int
}

var _ Analyzer = &LocalAnalyzer{}

func NewLocalAnalyzer() *LocalAnalyzer {
	return &LocalAnalyzer{SampleSize: DefaultSampleSize}
}

type record = map[string]any

func (a *LocalAnalyzer) Analyze(ctx context.Context, path string) (*model.DatasetProfile, error) {
	log := klog.FromContext(ctx).WithName("dataset")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, utils.NewNotFound("datasets", path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()

	sampleSize := a.SampleSize
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}

	var (
		rows   int
		sample []record
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonl":
		rows, sample, err = readJSONL(f, sampleSize)
	case ".json":
		rows, sample, err = readJSON(f, sampleSize)
	default:
		return nil, utils.NewInvalidArgument(apis.ErrInvalidValue(ext, "dataset", "supported extensions are .jsonl and .json"))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	profile := &model.DatasetProfile{
		Source:         path,
		NumRows:        rows,
		DetectedFormat: DetectFormat(sample),
	}
	if len(sample) > 0 {
		profile.SeqLenStats = seqLenStats(sample, profile.DetectedFormat)
	}
	logDataset(log, profile, len(sample))
	return profile, nil
}

func logDataset(log logr.Logger, p *model.DatasetProfile, sampled int) {
	kv := []any{"source", p.Source, "rows", p.NumRows, "format", p.DetectedFormat, "sampled", sampled}
	if p.SeqLenStats != nil {
		kv = append(kv, "p95", p.SeqLenStats.P95, "max", p.SeqLenStats.Max)
	}
	log.V(2).Info("analyzed dataset", kv...)
}

func readJSONL(r io.Reader, sampleSize int) (int, []record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	var (
		rows   int
		sample []record
	)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		rows++
		if len(sample) >= sampleSize {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return 0, nil, utils.NewInvalidArgument(apis.ErrGeneric(fmt.Sprintf("line %d is not a JSON object: %v", line, err), "dataset"))
		}
		sample = append(sample, rec)
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return rows, sample, nil
}

func readJSON(r io.Reader, sampleSize int) (int, []record, error) {
	var records []record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return 0, nil, utils.NewInvalidArgument(apis.ErrGeneric(fmt.Sprintf("expected a JSON array of objects: %v", err), "dataset"))
	}
	return len(records), records[:min(len(records), sampleSize)], nil
}

// DetectFormat classifies a dataset by the fields of its first record.
func DetectFormat(sample []record) model.DatasetFormat {
	if len(sample) == 0 {
		return model.DatasetFormatUnknown
	}
	first := sample[0]
	has := func(k string) bool {
		_, ok := first[k]
		return ok
	}
	switch {
	case has("instruction") && has("output"):
		return model.DatasetFormatAlpaca
	case has("conversations") || has("messages"):
		return model.DatasetFormatShareGPT
	case has("text"):
		return model.DatasetFormatRawText
	default:
		return model.DatasetFormatUnknown
	}
}

// render returns the text of a record that the model will see.
func render(rec record, format model.DatasetFormat) string {
	var parts []string
	switch format {
	case model.DatasetFormatAlpaca:
		for _, k := range []string{"instruction", "input", "output"} {
			if s, ok := rec[k].(string); ok {
				parts = append(parts, s)
			}
		}
	case model.DatasetFormatShareGPT:
		turns, _ := rec["conversations"].([]any)
		if turns == nil {
			turns, _ = rec["messages"].([]any)
		}
		for _, t := range turns {
			turn, _ := t.(map[string]any)
			for _, k := range []string{"value", "content"} {
				if s, ok := turn[k].(string); ok {
					parts = append(parts, s)
				}
			}
		}
	case model.DatasetFormatRawText:
		if s, ok := rec["text"].(string); ok {
			parts = append(parts, s)
		}
	default:
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := rec[k].(string); ok {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// EstimateTokens approximates the token count of text.
func EstimateTokens(text string) int {
	return int(math.Ceil(float64(len([]rune(text))) / charsPerToken))
}

func seqLenStats(sample []record, format model.DatasetFormat) *model.SeqLenStats {
	lengths := make([]float64, 0, len(sample))
	for _, rec := range sample {
		lengths = append(lengths, float64(EstimateTokens(render(rec, format))))
	}
	sort.Float64s(lengths)
	q := func(p float64) int {
		return int(stat.Quantile(p, stat.Empirical, lengths, nil))
	}
	return &model.SeqLenStats{
		P50: q(0.50),
		P95: q(0.95),
		P99: q(0.99),
		Max: int(lengths[len(lengths)-1]),
	}
}
