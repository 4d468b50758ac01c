// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a100", "h100", "t4"}, SortedKeys(map[string]int{"t4": 1, "a100": 2, "h100": 3}))
	assert.Empty(t, SortedKeys(map[string]bool{}))
}

func TestClosestMatch(t *testing.T) {
	candidates := []string{"NVIDIA RTX 3090", "3090", "4090", "a100", "a100-80gb", "h100"}
	testcases := map[string]struct {
		input    string
		expected string
		ok       bool
	}{
		"exact": {
			input:    "h100",
			expected: "h100",
			ok:       true,
		},
		"case insensitive": {
			input:    "A100",
			expected: "a100",
			ok:       true,
		},
		"one typo": {
			input:    "a10O",
			expected: "a100",
			ok:       true,
		},
		"tie picks the lexically smaller": {
			input:    "2090",
			expected: "3090",
			ok:       true,
		},
		"too far": {
			input: "potato",
		},
		"no candidates": {
			input: "h100",
		},
	}

	for k, tc := range testcases {
		t.Run(k, func(t *testing.T) {
			c := candidates
			if k == "no candidates" {
				c = nil
			}
			match, ok := ClosestMatch(tc.input, c)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, match)
			}
		})
	}
}

func TestDidYouMean(t *testing.T) {
	assert.Equal(t, "did you mean mistral-7b?", DidYouMean("mistrl-7b", []string{"falcon-7b", "mistral-7b"}))
	assert.Equal(t, "", DidYouMean("banana", []string{"falcon-7b", "mistral-7b"}))
}
