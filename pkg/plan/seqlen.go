// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package plan

import (
	"fmt"

	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/utils"
	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

// ResolveSeqLen picks the training sequence length and explains the choice.
// Priority: explicit value, then the dataset's p95 token length, then the default.
func ResolveSeqLen(explicit *int, dataset *model.DatasetProfile) (int, string, error) {
	if explicit != nil {
		if *explicit <= 0 {
			return 0, "", utils.NewInvalidArgument(apis.ErrInvalidValue(*explicit, "seq_len", "must be a positive integer"))
		}
		return *explicit, fmt.Sprintf("--seq-len %d", *explicit), nil
	}
	if dataset != nil && dataset.SeqLenStats != nil && dataset.SeqLenStats.P95 > 0 {
		p95 := dataset.SeqLenStats.P95
		return p95, fmt.Sprintf("dataset p95 (%d tokens)", p95), nil
	}
	return consts.DefaultSeqLen, fmt.Sprintf("default (%d)", consts.DefaultSeqLen), nil
}
