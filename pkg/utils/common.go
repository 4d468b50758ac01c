// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package utils

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/samber/lo"
)

// maxSuggestionDistance bounds how far a candidate may be from the input to be offered as a hint.
const maxSuggestionDistance = 3

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

// ClosestMatch returns the candidate with the smallest edit distance to input,
// compared case-insensitively. ok is false when nothing is close enough.
func ClosestMatch(input string, candidates []string) (match string, ok bool) {
	input = strings.ToLower(input)
	best := maxSuggestionDistance + 1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(input, strings.ToLower(c))
		if d < best || (d == best && c < match) {
			best, match = d, c
		}
	}
	return match, best <= maxSuggestionDistance
}

// DidYouMean renders a hint for NotFound errors, or "" when there is no close candidate.
func DidYouMean(input string, candidates []string) string {
	if m, ok := ClosestMatch(input, candidates); ok {
		return "did you mean " + m + "?"
	}
	return ""
}
