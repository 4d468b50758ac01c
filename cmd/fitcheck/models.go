// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/falcon"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama2"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama2chat"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama3"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/mistral"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/phi2"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/phi3"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/qwen"
)
