package quality_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
)

var _ = Describe("Analyzer", func() {
	var (
		now      time.Time
		analyzer *quality.Analyzer
	)

	item := func(id, content string, touched time.Time, tags ...string) *memory.Item {
		return &memory.Item{ID: id, Content: content, CreatedAt: touched, Tags: tags}
	}

	BeforeEach(func() {
		now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		var err error
		analyzer, err = quality.NewAnalyzer(quality.Config{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("fills in defaults", func() {
		Expect(analyzer.Config()).To(Equal(quality.DefaultConfig()))
	})

	It("rejects out-of-range settings", func() {
		_, err := quality.NewAnalyzer(quality.Config{RedundancyThreshold: 1.5})
		Expect(err).To(HaveOccurred())
	})

	It("scores an empty corpus as perfect", func() {
		r := analyzer.Evaluate(nil, now)
		Expect(r.Score).To(Equal(1.0))
		Expect(r.Alerts).To(BeEmpty())
		Expect(r.FlaggedMemoryIDs).To(BeEmpty())
	})

	Context("with three near duplicates and one unrelated item", func() {
		var r *quality.Report

		BeforeEach(func() {
			items := []*memory.Item{
				item("a", "The deploy pipeline runs on the staging cluster every night", now),
				item("b", "The deploy pipeline runs on the staging cluster every night.", now),
				item("c", "the deploy pipeline runs on the staging  cluster every nights", now),
				item("d", "User prefers dark mode in the editor", now),
			}
			r = analyzer.Evaluate(items, now)
		})

		It("raises one redundancy alert naming the three ids", func() {
			alerts := r.AlertsOf(quality.AlertRedundancy)
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ItemIDs).To(Equal([]string{"a", "b", "c"}))
			Expect(alerts[0].Severity).To(Equal(quality.SeverityWarning))
		})

		It("flags the duplicates only", func() {
			Expect(r.FlaggedMemoryIDs).To(ConsistOf("a", "b", "c"))
		})

		It("counts the extra copies in the score", func() {
			Expect(r.Metrics.RedundantItems).To(Equal(2))
			Expect(r.Metrics.RedundancyRatio).To(BeNumerically("~", 0.5, 1e-9))
			Expect(r.Score).To(BeNumerically("~", 0.8, 1e-9))
		})
	})

	Describe("Similarity", func() {
		It("keeps pairs at the threshold and cuts off pairs below it", func() {
			Expect(analyzer.Similarity("abcdefghij", "abcdefghij")).To(Equal(1.0))
			Expect(analyzer.Similarity("abcdefghij", "abcdefghiX")).To(BeNumerically("~", 0.9, 1e-9))
			Expect(analyzer.Similarity("abcdefghij", "abcdefghXY")).To(Equal(0.0))
			Expect(analyzer.Similarity("deploy window is friday", "user prefers dark mode")).To(Equal(0.0))
		})

		It("groups a pair sitting exactly on the threshold", func() {
			items := []*memory.Item{
				item("a", "abcdefghij", now),
				item("b", "abcdefghiX", now),
			}
			r := analyzer.Evaluate(items, now)
			Expect(r.AlertsOf(quality.AlertRedundancy)).To(HaveLen(1))
		})

		It("follows a lower configured threshold", func() {
			loose, err := quality.NewAnalyzer(quality.Config{RedundancyThreshold: 0.5})
			Expect(err).NotTo(HaveOccurred())
			Expect(loose.Similarity("abcdefghij", "abcdefghXY")).To(BeNumerically("~", 0.8, 1e-9))
		})
	})

	It("respects the pairwise cap", func() {
		capped, err := quality.NewAnalyzer(quality.Config{MaxPairwiseItems: 2})
		Expect(err).NotTo(HaveOccurred())

		items := []*memory.Item{
			item("a", "alpha memory", now),
			item("b", "unrelated text", now),
			item("c", "alpha memory", now),
		}
		r := capped.Evaluate(items, now)
		Expect(r.Metrics.ComparedItems).To(Equal(2))
		Expect(r.AlertsOf(quality.AlertRedundancy)).To(BeEmpty())
	})

	Describe("staleness", func() {
		It("reports tag groups that are uniformly stale", func() {
			old := now.Add(-40 * 24 * time.Hour)
			items := []*memory.Item{
				item("s1", "one", old, "proj:legacy", "mixed"),
				item("s2", "two", old, "proj:legacy", "mixed"),
				item("s3", "three", old, "proj:legacy"),
				item("f1", "four", now.Add(-time.Hour), "mixed"),
			}
			r := analyzer.Evaluate(items, now)

			Expect(r.Metrics.StaleItems).To(Equal(3))
			Expect(r.Metrics.StaleRatio).To(BeNumerically("~", 0.75, 1e-9))
			Expect(r.Metrics.StaleClusters).To(Equal(1))

			alerts := r.AlertsOf(quality.AlertStaleCluster)
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ItemIDs).To(Equal([]string{"s1", "s2", "s3"}))
			Expect(alerts[0].Detail).To(ContainSubstring("proj:legacy"))
			Expect(r.Score).To(BeNumerically("~", 0.7, 1e-9))
		})

		It("ignores groups below the minimum cluster size", func() {
			old := now.Add(-40 * 24 * time.Hour)
			items := []*memory.Item{
				item("s1", "one", old, "small"),
				item("s2", "two", old, "small"),
			}
			r := analyzer.Evaluate(items, now)
			Expect(r.AlertsOf(quality.AlertStaleCluster)).To(BeEmpty())
			Expect(r.Metrics.StaleItems).To(Equal(2))
		})

		It("uses last access over creation time", func() {
			i := item("x", "recent read", now.Add(-90*24*time.Hour))
			i.LastAccessedAt = now.Add(-time.Minute)
			r := analyzer.Evaluate([]*memory.Item{i}, now)
			Expect(r.Metrics.StaleItems).To(Equal(0))
		})
	})

	Describe("drift", func() {
		It("flags embeddings far from the centroid", func() {
			items := []*memory.Item{
				item("e1", "one", now), item("e2", "two", now),
				item("e3", "three", now), item("e4", "four", now),
				item("odd", "five", now),
			}
			items[0].Embedding = []float32{1, 0}
			items[1].Embedding = []float32{1, 0}
			items[2].Embedding = []float32{1, 0}
			items[3].Embedding = []float32{0, 1}
			items[4].Embedding = []float32{1, 0, 0}

			r := analyzer.Evaluate(items, now)
			Expect(r.Metrics.EmbeddedItems).To(Equal(4))
			Expect(r.Metrics.DriftedItems).To(Equal(1))

			alerts := r.AlertsOf(quality.AlertEmbeddingDrift)
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].ItemIDs).To(Equal([]string{"e4"}))
			Expect(alerts[0].Severity).To(Equal(quality.SeverityWarning))

			Expect(r.Metrics.MeanDriftDistance).To(BeNumerically("~", 0.2094, 1e-3))
			Expect(r.Metrics.DriftScore).To(BeNumerically("~", 0.8377, 1e-3))
		})

		It("caps the drift score at one", func() {
			items := []*memory.Item{item("a", "a", now), item("b", "b", now)}
			items[0].Embedding = []float32{1, 0}
			items[1].Embedding = []float32{-1, 0.001}

			r := analyzer.Evaluate(items, now)
			Expect(r.Metrics.DriftScore).To(Equal(1.0))
			Expect(r.Score).To(BeNumerically(">=", 0))
		})

		It("needs at least two embeddings", func() {
			i := item("a", "a", now)
			i.Embedding = []float32{1, 0}
			r := analyzer.Evaluate([]*memory.Item{i}, now)
			Expect(r.Metrics.DriftScore).To(BeZero())
			Expect(r.AlertsOf(quality.AlertEmbeddingDrift)).To(BeEmpty())
		})
	})
})
