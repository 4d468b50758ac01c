// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"regexp"
	"strconv"
	"strings"
)

// specPattern matches "METHOD MODEL on GPU [with DATASET] [at SEQ_LEN]".
var specPattern = regexp.MustCompile(`(?i)^(full|lora|qlora)\s+(\S+)\s+on\s+(\S+)(?:\s+with\s+(\S+))?(?:\s+at\s+(\d+))?$`)

// parsedSpec is the shorthand form of a plan request.
type parsedSpec struct {
	Method      string
	ModelID     string
	GPU         string
	DatasetPath string
	SeqLen      *int
}

// parseSpec parses shorthand such as "qlora meta-llama/Llama-3.1-8B on 3090 with data.jsonl at 2048".
// ok is false when the text does not follow the pattern.
func parseSpec(spec string) (p parsedSpec, ok bool) {
	m := specPattern.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return parsedSpec{}, false
	}
	p = parsedSpec{
		Method:      strings.ToLower(m[1]),
		ModelID:     m[2],
		GPU:         m[3],
		DatasetPath: m[4],
	}
	if m[5] != "" {
		n, err := strconv.Atoi(m[5])
		if err != nil {
			return parsedSpec{}, false
		}
		p.SeqLen = &n
	}
	return p, true
}
