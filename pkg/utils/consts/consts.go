// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package consts

const (
	GiBToBytes = 1024 * 1024 * 1024 // Conversion factor from GiB to bytes
	MiBToBytes = 1024 * 1024

	// Bytes per parameter / element for the numeric formats used in training.
	BytesFP32 = 4.0
	BytesBF16 = 2.0
	BytesInt8 = 1.0
	BytesNF4  = 0.5

	DefaultLoRARank = 16
	DefaultSeqLen   = 512

	// Environment variables read by the CLI configuration layer.
	EnvHardwareFile = "FITCHECK_HARDWARE_FILE"
	EnvLoRARank     = "FITCHECK_LORA_RANK"
	EnvOutput       = "FITCHECK_OUTPUT"
	EnvFeatureGates = "FITCHECK_FEATURE_GATES"

	// Feature flags
	FeatureFlagCloudInstanceSKUs = "CloudInstanceSKUs"
	FeatureFlagEvalSpikeCheck    = "EvalSpikeCheck"

	// Error taxonomy group used in StatusError messages.
	GroupName = "fitcheck.kaito.sh"
)
