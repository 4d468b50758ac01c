// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package featuregates

import (
	"fmt"
	"strings"

	cliflag "k8s.io/component-base/cli/flag"

	"github.com/kaito-project/fitcheck/pkg/utils/consts"
)

var (
	// FeatureGates is a map that holds the feature gates and their default values for fitcheck.
	FeatureGates = map[string]bool{
		consts.FeatureFlagCloudInstanceSKUs: true,
		consts.FeatureFlagEvalSpikeCheck:    true,
		//	Add more feature gates here
	}
)

// Enabled reports the current value of a feature gate. Unknown gates are off.
func Enabled(feature string) bool {
	return FeatureGates[feature]
}

// ParseAndValidateFeatureGates parses a "Gate=bool,..." list and applies it to FeatureGates.
// Known gates are applied even when the list also names unknown ones.
func ParseAndValidateFeatureGates(featureGates string) error {
	gateMap := map[string]bool{}
	if err := cliflag.NewMapStringBool(&gateMap).Set(featureGates); err != nil {
		return err
	}
	if len(gateMap) == 0 {
		// no feature gates set
		return nil
	}

	var invalidFeatures []string
	for key, val := range gateMap {
		if _, ok := FeatureGates[key]; !ok {
			invalidFeatures = append(invalidFeatures, key)
			continue
		}
		FeatureGates[key] = val
	}

	if len(invalidFeatures) > 0 {
		return fmt.Errorf("invalid feature gate(s) %s", strings.Join(invalidFeatures, ", "))
	}

	return nil
}
