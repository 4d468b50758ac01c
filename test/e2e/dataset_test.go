// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package e2e

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kaito-project/fitcheck/pkg/model"
	"github.com/kaito-project/fitcheck/pkg/plan"
	"github.com/kaito-project/fitcheck/pkg/report"
	"github.com/kaito-project/fitcheck/pkg/sanity"
	"github.com/kaito-project/fitcheck/test/e2e/utils"
)

var _ = Describe("Planning with a dataset", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("sizes the sequence length from the dataset", func() {
		path, err := utils.GenerateAlpacaDataset(dir, 2000, 600)
		Expect(err).NotTo(HaveOccurred())

		r, err := plan.NewPlanner().Plan(ctx, plan.Options{ModelID: "llama-3.1-8b", Method: "qlora", GPU: "4090", DatasetPath: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.DatasetSource).To(Equal(path))
		Expect(r.DatasetRows).To(Equal(2000))
		Expect(r.SamplesPerEpoch).To(Equal(2000))
		Expect(r.DatasetFormat).To(Equal(model.DatasetFormatAlpaca))
		Expect(r.SeqLenStats).NotTo(BeNil())
		Expect(r.SeqLenUsed).To(Equal(r.SeqLenStats.P95))
		Expect(r.SeqLenReasoning).To(HavePrefix("dataset p95"))
		expectConsistentReport(r)
	})

	It("warns about a dataset too small for the adapter", func() {
		path, err := utils.GenerateAlpacaDataset(dir, 40, 50)
		Expect(err).NotTo(HaveOccurred())

		r, err := plan.NewPlanner().Plan(ctx, plan.Options{ModelID: "mistral-7b", Method: "lora", GPU: "a100-80gb", DatasetPath: path})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.SolverResult.Warnings).To(ContainElement(HavePrefix("["+string(sanity.SeverityCritical)+"]")))
	})

	It("renders the dataset in the text report", func() {
		path, err := utils.GenerateAlpacaDataset(dir, 500, 100)
		Expect(err).NotTo(HaveOccurred())

		r, err := plan.NewPlanner().Plan(ctx, plan.Options{ModelID: "phi-2", Method: "qlora", GPU: "t4", DatasetPath: path})
		Expect(err).NotTo(HaveOccurred())
		text := report.FormatText(r)
		Expect(text).To(ContainSubstring(path))
		Expect(text).To(ContainSubstring("Risks"))
	})
})
