// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package sku

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/kaito-project/fitcheck/pkg/utils"
)

const (
	ProviderAWS    = "aws"
	ProviderAzure  = "azure"
	ProviderAksArc = "aksarc"
)

// InstanceType is a cloud instance type carrying one or more identical GPUs.
type InstanceType struct {
	Name     string
	Provider string
	GPUCount int
	// GPUMemGB is the memory of a single GPU.
	GPUMemGB float64
	// Card is the catalog card name of the GPU.
	Card string
}

// instanceTypes lists the single-model NVIDIA instance types per provider.
// References:
// https://aws.amazon.com/ec2/instance-types/
// https://learn.microsoft.com/en-us/azure/virtual-machines/sizes-gpu
// https://learn.microsoft.com/en-us/azure/aks/hybrid/deploy-gpu-node-pool
var instanceTypes = map[string][]InstanceType{
	ProviderAWS: {
		{Name: "p2.xlarge", GPUCount: 1, GPUMemGB: 12, Card: "NVIDIA K80"},
		{Name: "p2.8xlarge", GPUCount: 8, GPUMemGB: 12, Card: "NVIDIA K80"},
		{Name: "p3.2xlarge", GPUCount: 1, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "p3.8xlarge", GPUCount: 4, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "p3.16xlarge", GPUCount: 8, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "p4d.24xlarge", GPUCount: 8, GPUMemGB: 40, Card: "NVIDIA A100 40GB"},
		{Name: "p4de.24xlarge", GPUCount: 8, GPUMemGB: 80, Card: "NVIDIA A100 80GB"},
		{Name: "p5.48xlarge", GPUCount: 8, GPUMemGB: 80, Card: "NVIDIA H100 80GB"},
		{Name: "g3s.xlarge", GPUCount: 1, GPUMemGB: 8, Card: "NVIDIA M60"},
		{Name: "g4dn.xlarge", GPUCount: 1, GPUMemGB: 16, Card: "NVIDIA T4"},
		{Name: "g4dn.2xlarge", GPUCount: 1, GPUMemGB: 16, Card: "NVIDIA T4"},
		{Name: "g4dn.12xlarge", GPUCount: 4, GPUMemGB: 16, Card: "NVIDIA T4"},
		{Name: "g5.xlarge", GPUCount: 1, GPUMemGB: 24, Card: "NVIDIA A10G"},
		{Name: "g5.2xlarge", GPUCount: 1, GPUMemGB: 24, Card: "NVIDIA A10G"},
		{Name: "g5.12xlarge", GPUCount: 4, GPUMemGB: 24, Card: "NVIDIA A10G"},
		{Name: "g5.48xlarge", GPUCount: 8, GPUMemGB: 24, Card: "NVIDIA A10G"},
		{Name: "g6.xlarge", GPUCount: 1, GPUMemGB: 24, Card: "NVIDIA L4"},
		{Name: "g6.12xlarge", GPUCount: 4, GPUMemGB: 24, Card: "NVIDIA L4"},
		{Name: "g6e.xlarge", GPUCount: 1, GPUMemGB: 48, Card: "NVIDIA L40S"},
		{Name: "g6e.12xlarge", GPUCount: 4, GPUMemGB: 48, Card: "NVIDIA L40S"},
	},
	ProviderAzure: {
		{Name: "Standard_NC6s_v3", GPUCount: 1, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "Standard_NC12s_v3", GPUCount: 2, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "Standard_NC24s_v3", GPUCount: 4, GPUMemGB: 16, Card: "NVIDIA V100"},
		{Name: "Standard_NC4as_T4_v3", GPUCount: 1, GPUMemGB: 16, Card: "NVIDIA T4"},
		{Name: "Standard_NC64as_T4_v3", GPUCount: 4, GPUMemGB: 16, Card: "NVIDIA T4"},
		{Name: "Standard_NC24ads_A100_v4", GPUCount: 1, GPUMemGB: 80, Card: "NVIDIA A100 80GB"},
		{Name: "Standard_NC48ads_A100_v4", GPUCount: 2, GPUMemGB: 80, Card: "NVIDIA A100 80GB"},
		{Name: "Standard_NC96ads_A100_v4", GPUCount: 4, GPUMemGB: 80, Card: "NVIDIA A100 80GB"},
		{Name: "Standard_ND96asr_v4", GPUCount: 8, GPUMemGB: 40, Card: "NVIDIA A100 40GB"},
		{Name: "Standard_ND96amsr_A100_v4", GPUCount: 8, GPUMemGB: 80, Card: "NVIDIA A100 80GB"},
		{Name: "Standard_NV6", GPUCount: 1, GPUMemGB: 8, Card: "NVIDIA M60"},
		{Name: "Standard_NV12s_v3", GPUCount: 1, GPUMemGB: 8, Card: "NVIDIA M60"},
	},
	ProviderAksArc: {
		{Name: "MOCVirtualMachine", GPUCount: 1, GPUMemGB: 12, Card: "NVIDIA K80"},
	},
}

// Providers lists the cloud providers with known instance types.
func Providers() []string {
	return utils.SortedKeys(instanceTypes)
}

// InstanceTypes returns the instance types of a provider, matched case-insensitively,
// sorted by name. An unknown provider has none.
func InstanceTypes(provider string) []InstanceType {
	var types []InstanceType
	for p, list := range instanceTypes {
		if !strings.EqualFold(p, provider) {
			continue
		}
		types = lo.Map(list, func(it InstanceType, _ int) InstanceType {
			it.Provider = p
			return it
		})
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types
}

// AllInstanceTypes returns the instance types of every provider.
func AllInstanceTypes() []InstanceType {
	return lo.FlatMap(Providers(), func(p string, _ int) []InstanceType {
		return InstanceTypes(p)
	})
}
