// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/utils"
)

type compareOptions struct {
	planFlags
	gpus []string
}

func newCompareCommand(root *rootOptions) *cobra.Command {
	o := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Plan the same run on several GPUs side by side",
		Example: `  fitcheck compare --model llama-3.1-8b --method qlora
  fitcheck compare -m mistral-7b --method lora --gpus 4090,a100-40gb,h100 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := o.options(cmd, args, root.env)
			if err != nil {
				return err
			}
			if err := utils.NewInvalidArgument(missing(opts, false)); err != nil {
				return err
			}
			gpus := o.gpus
			if len(gpus) == 0 {
				gpus = root.catalog.Names()
			}
			reports, err := compare(cmd, root.newPlanner(), opts, gpus)
			if err != nil {
				return err
			}
			if root.jsonOutput() {
				return writeJSON(cmd, reports)
			}
			table := newTable(cmd.OutOrStdout(), "GPU", "USABLE", "VERDICT", "MICRO BATCH", "GRAD ACCUM", "CHECKPOINTING", "PEAK VRAM")
			for _, r := range reports {
				c := r.SolverResult.Recommended
				table.Append([]string{
					r.HardwareName,
					fmt.Sprintf("%.2f GB", r.UsableVRAMGB),
					c.Verdict(),
					strconv.Itoa(c.MicroBatchSize),
					strconv.Itoa(c.GradientAccumulationSteps),
					strconv.FormatBool(c.GradientCheckpointing),
					fmt.Sprintf("%.2f GB", c.VRAMBreakdown.TotalGB()),
				})
			}
			table.Render()
			return nil
		},
	}
	o.addFlags(cmd)
	cmd.Flags().StringSliceVarP(&o.gpus, "gpus", "g", nil, "GPUs to compare. Defaults to every catalog card")
	return cmd
}

// compare plans opts on every GPU concurrently. Reports keep the order of gpus.
func compare(cmd *cobra.Command, planner *plan.Planner, opts plan.Options, gpus []string) ([]*plan.PlanReport, error) {
	klog.FromContext(cmd.Context()).V(2).Info("comparing", "gpus", len(gpus), "model", opts.ModelID)
	reports := make([]*plan.PlanReport, len(gpus))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(runtime.NumCPU())
	for i, gpu := range gpus {
		i, gpu := i, gpu
		g.Go(func() error {
			o := opts
			o.GPU = gpu
			r, err := planner.Plan(ctx, o)
			if err != nil {
				return fmt.Errorf("%s: %w", gpu, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
