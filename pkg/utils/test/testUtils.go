// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteJSONL writes one JSON object per line to dir/name and returns the path.
func WriteJSONL(t testing.TB, dir, name string, records []map[string]any) string {
	t.Helper()
	var sb strings.Builder
	for _, r := range records {
		line, err := json.Marshal(r)
		require.NoError(t, err)
		sb.Write(line)
		sb.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o600))
	return path
}

// MockAlpacaRecords returns n instruction/output records whose lengths vary with the index.
func MockAlpacaRecords(n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			"instruction": fmt.Sprintf("Summarize document %d.", i),
			"input":       strings.Repeat("lorem ipsum ", 10+i%40),
			"output":      strings.Repeat("dolor sit amet ", 5+i%20),
		})
	}
	return records
}

// MockShareGPTRecords returns n two-turn conversations.
func MockShareGPTRecords(n int) []map[string]any {
	records := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, map[string]any{
			"conversations": []map[string]string{
				{"from": "human", "value": fmt.Sprintf("Question %d?", i)},
				{"from": "gpt", "value": strings.Repeat("answer ", 20+i%10)},
			},
		})
	}
	return records
}

// WriteAlpacaDataset writes n alpaca records to dir/data.jsonl.
func WriteAlpacaDataset(t testing.TB, dir string, n int) string {
	return WriteJSONL(t, dir, "data.jsonl", MockAlpacaRecords(n))
}
