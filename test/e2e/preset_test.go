// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package e2e

import (
	"context"
	"fmt"
	"math/bits"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/solver"
	"github.com/kaito-project/fitcheck/pkg/sku"
	"github.com/kaito-project/fitcheck/test/e2e/utils"

	_ "github.com/kaito-project/fitcheck/presets/workspace/models/falcon"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama2"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama2chat"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/llama3"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/mistral"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/phi2"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/phi3"
	_ "github.com/kaito-project/fitcheck/presets/workspace/models/qwen"
)

var ctx = context.Background()

func expectConsistentReport(r *plan.PlanReport) {
	rec := r.SolverResult.Recommended
	total := rec.VRAMBreakdown.TotalGB()

	Expect(rec.Verdict()).To(BeElementOf(solver.VerdictFits, solver.VerdictDoesNotFit))
	Expect(rec.Fits()).To(Equal(total <= r.UsableVRAMGB),
		"verdict %s with %.2f GB on %.2f GB usable", rec.Verdict(), total, r.UsableVRAMGB)
	Expect(rec.MicroBatchSize).To(BeNumerically(">=", 1))
	Expect(rec.MicroBatchSize).To(BeNumerically("<=", solver.MaxMicroBatchSize))
	Expect(bits.OnesCount(uint(rec.MicroBatchSize))).To(Equal(1), "micro batch %d is not a power of two", rec.MicroBatchSize)
	Expect(rec.EffectiveBatchSize).To(Equal(rec.MicroBatchSize * rec.GradientAccumulationSteps))
	Expect(rec.EffectiveBatchSize).To(BeNumerically(">=", solver.TargetEffectiveBatchSize))
	Expect(rec.SeqLen).To(Equal(r.SeqLenUsed))
	Expect(r.TrainableParams).To(BeNumerically(">", 0))
	Expect(r.TrainablePct).To(BeNumerically("<=", 100))

	if a := r.SolverResult.Aggressive; a != nil {
		Expect(rec.Fits()).To(BeTrue(), "an aggressive config needs a recommended one that fits")
		Expect(a.VRAMBreakdown.TotalGB()).To(BeNumerically("<=", r.TotalVRAMGB))
		Expect(a.MicroBatchSize > rec.MicroBatchSize || (rec.GradientCheckpointing && !a.GradientCheckpointing)).To(BeTrue())
		_, ok := a.Reasoning.Get(solver.ReasonMargin)
		Expect(ok).To(BeTrue())
	}
}

var _ = Describe("Planning every tunable preset", func() {
	planner := plan.NewPlanner()
	cards := sku.BuiltinCards()

	for _, preset := range utils.TunablePresets() {
		for _, method := range utils.Methods {
			It(fmt.Sprintf("plans %s with %s on every catalog GPU", preset, method), func() {
				for _, card := range cards {
					By(card.Name)
					r, err := planner.Plan(ctx, plan.Options{ModelID: preset, Method: string(method), GPU: card.Name})
					Expect(err).NotTo(HaveOccurred())
					Expect(r.HardwareName).To(Equal(card.Name))
					Expect(r.Method).To(Equal(method))
					expectConsistentReport(r)
				}
			})
		}
	}
})

var _ = Describe("Choosing a larger GPU", func() {
	planner := plan.NewPlanner()

	DescribeTable("never lowers the recommended micro batch",
		func(preset, method, small, large string) {
			s, err := planner.Plan(ctx, plan.Options{ModelID: preset, Method: method, GPU: small})
			Expect(err).NotTo(HaveOccurred())
			l, err := planner.Plan(ctx, plan.Options{ModelID: preset, Method: method, GPU: large})
			Expect(err).NotTo(HaveOccurred())

			if s.SolverResult.Recommended.Fits() {
				Expect(l.SolverResult.Recommended.Fits()).To(BeTrue())
			}
			if s.SolverResult.Recommended.GradientCheckpointing == l.SolverResult.Recommended.GradientCheckpointing {
				Expect(l.SolverResult.Recommended.MicroBatchSize).To(BeNumerically(">=", s.SolverResult.Recommended.MicroBatchSize))
			}
		},
		Entry("qlora llama 3.1 8b", "llama-3.1-8b", "qlora", "t4", "h100"),
		Entry("lora mistral 7b", "mistral-7b", "lora", "a10g", "a100-80gb"),
		Entry("lora phi-2", "phi-2", "lora", "3090", "a6000"),
		Entry("full phi-3 mini", "phi-3-mini-4k-instruct", "full", "a100-40gb", "h100"),
		Entry("qlora falcon 40b", "falcon-40b", "qlora", "a6000", "a100-80gb"),
	)
})

var _ = Describe("Full fine-tuning a 70B model", func() {
	It("does not fit on a single GPU", func() {
		r, err := plan.NewPlanner().Plan(ctx, plan.Options{ModelID: "llama-3.1-70b", Method: "full", GPU: "h100"})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.SolverResult.Recommended.Verdict()).To(Equal(solver.VerdictDoesNotFit))
		Expect(r.SolverResult.Recommended.MicroBatchSize).To(Equal(1))
		Expect(r.SolverResult.Recommended.GradientCheckpointing).To(BeTrue())
		Expect(r.SolverResult.Aggressive).To(BeNil())
		Expect(r.TrainableParams).To(Equal(int64(70_553_706_496)))
	})
})
