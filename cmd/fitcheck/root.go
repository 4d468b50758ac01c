// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"knative.dev/pkg/apis"

	"github.com/kaito-project/fitcheck/pkg/config"
	"github.com/kaito-project/fitcheck/pkg/featuregates"
	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/report"
	"github.com/kaito-project/fitcheck/pkg/sku"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

const envFile = ".env"

// rootOptions holds the persistent flags and the state every subcommand shares once
// they are resolved against the environment.
type rootOptions struct {
	output       string
	hardwareFile string
	featureGates string

	env     *config.Env
	catalog *sku.Catalog
}

func newRootCommand(goFlags *flag.FlagSet) *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "fitcheck",
		Short: "Estimate GPU memory for LLM fine-tuning and find a training config that fits",
		Long: `fitcheck estimates the VRAM a fine-tuning run needs on a given GPU and searches
for the largest micro batch that fits, with gradient accumulation and checkpointing
chosen to reach a useful effective batch size.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.complete()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.output, "output", "o", "", "Output format. One of: "+strings.Join(report.Outputs, ", "))
	flags.StringVar(&o.hardwareFile, "hardware-file", "", "YAML file with extra GPU catalog entries")
	flags.StringVar(&o.featureGates, "feature-gates", "", "Comma-separated list of Gate=true|false pairs")
	if goFlags != nil {
		flags.AddGoFlagSet(goFlags)
	}

	cmd.AddCommand(
		newPlanCommand(o),
		newCompareCommand(o),
		newGPUsCommand(o),
		newModelsCommand(o),
	)
	return cmd
}

// complete layers the flags over the environment and loads the GPU catalog.
func (o *rootOptions) complete() error {
	env, err := config.LoadEnv(envFile)
	if err != nil {
		return err
	}
	o.env = env

	if o.output == "" {
		o.output = env.Output
	}
	o.output = strings.ToLower(o.output)
	if !slices.Contains(report.Outputs, o.output) {
		return utils.NewInvalidArgument(apis.ErrInvalidValue(o.output, "output",
			"supported outputs are "+strings.Join(report.Outputs, ", ")))
	}

	gates := o.featureGates
	if gates == "" {
		gates = env.FeatureGates
	}
	if gates != "" {
		if err := featuregates.ParseAndValidateFeatureGates(gates); err != nil {
			return fmt.Errorf("unable to set feature gates: %w", err)
		}
	}

	o.catalog = plan.DefaultCatalog()
	hardwareFile := o.hardwareFile
	if hardwareFile == "" {
		hardwareFile = env.HardwareFile
	}
	if hardwareFile != "" {
		if o.catalog, err = sku.LoadCatalogFile(o.catalog, hardwareFile); err != nil {
			return err
		}
	}
	return nil
}

func (o *rootOptions) newPlanner() *plan.Planner {
	return plan.NewPlanner(plan.WithHardware(o.catalog))
}

func (o *rootOptions) jsonOutput() bool {
	return o.output == report.OutputJSON
}

// newTable returns a borderless table with the header style of `ollama list`.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}
