package engine_test

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/audit"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/engine"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
	testutils "github.com/papercomputeco/strata/pkg/utils/test"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/worker"
)

func inmemoryConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Storage.Provider = "inmemory"
	cfg.Events.Provider = "nop"
	cfg.Audit.Provider = "inmemory"
	cfg.VectorStore.Provider = ""
	return cfg
}

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		eng *engine.Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if eng != nil {
			Expect(eng.Close()).To(Succeed())
			eng = nil
		}
	})

	Describe("New", func() {
		It("rejects a nil config", func() {
			_, err := engine.New(ctx, nil, engine.Options{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects an invalid config", func() {
			cfg := inmemoryConfig()
			cfg.Storage.Provider = "cassandra"
			_, err := engine.New(ctx, cfg, engine.Options{})
			Expect(err).To(MatchError(ContainSubstring("invalid config")))
		})

		It("wires one tier per tier name in promotion order", func() {
			var err error
			eng, err = engine.New(ctx, inmemoryConfig(), engine.Options{})
			Expect(err).NotTo(HaveOccurred())

			Expect(eng.Tiers).To(HaveLen(3))
			Expect(eng.Tiers[0].Name()).To(Equal(memory.TierShortTerm))
			Expect(eng.Tiers[1].Name()).To(Equal(memory.TierMediumTerm))
			Expect(eng.Tiers[2].Name()).To(Equal(memory.TierLongTerm))

			Expect(eng.Tier(memory.TierShortTerm).Model()).To(BeNil())
			Expect(eng.Tier(memory.TierLongTerm).Model()).NotTo(BeNil())
			Expect(eng.Monitor).NotTo(BeNil())
			Expect(eng.Scheduler).NotTo(BeNil())
		})

		It("omits the drift monitor when drift is disabled", func() {
			cfg := inmemoryConfig()
			cfg.Drift.Enabled = false

			var err error
			eng, err = engine.New(ctx, cfg, engine.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(eng.Monitor).To(BeNil())
		})

		It("places default sqlite databases in the data dir", func() {
			dir := GinkgoT().TempDir()
			cfg := inmemoryConfig()
			cfg.Storage.Provider = "sqlite"
			cfg.Audit.Provider = "sqlite"

			var err error
			eng, err = engine.New(ctx, cfg, engine.Options{DataDir: dir})
			Expect(err).NotTo(HaveOccurred())

			Expect(filepath.Join(dir, "strata.db")).To(BeAnExistingFile())
			Expect(filepath.Join(dir, "audit.db")).To(BeAnExistingFile())
		})

		It("fails when the sqlite storage path cannot be resolved", func() {
			cfg := inmemoryConfig()
			cfg.Storage.Provider = "sqlite"

			_, err := engine.New(ctx, cfg, engine.Options{})
			Expect(err).To(MatchError(ContainSubstring("storage")))
		})
	})

	Describe("maintenance cycles", func() {
		BeforeEach(func() {
			var err error
			eng, err = engine.New(ctx, inmemoryConfig(), engine.Options{})
			Expect(err).NotTo(HaveOccurred())
		})

		It("promotes important short-term items and records the move", func() {
			item := testutils.NewTestItem("deploys happen on tuesdays")
			item.Importance = 0.9
			_, err := eng.Tier(memory.TierShortTerm).Store(ctx, item)
			Expect(err).NotTo(HaveOccurred())

			report := eng.Orchestrator.RunCycle(ctx, maintenance.TriggerManual)
			Expect(report.Status).To(Equal(maintenance.StatusOK))
			Expect(report.Consolidation.Promoted).To(Equal(1))

			promoted, err := eng.Tier(memory.TierMediumTerm).Query(ctx, memory.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(promoted).To(HaveLen(1))
			Expect(promoted[0].Content).To(Equal("deploys happen on tuesdays"))

			entries, err := eng.Audit.Entries(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			kinds := make([]audit.Kind, 0, len(entries))
			for _, e := range entries {
				kinds = append(kinds, e.Kind)
			}
			Expect(kinds).To(ContainElements(audit.KindCreation, audit.KindConsolidation))

			Expect(eng.Events.Recent(0, eventstream.EventTypeMaintenanceCompleted)).To(HaveLen(1))
			Expect(eng.Events.Recent(0, eventstream.EventTypeConsolidationOutcome)).NotTo(BeEmpty())
		})

		It("opens the circuit after a cycle that backed up the worker pool", func() {
			Expect(eng.Close()).To(Succeed())
			cfg := inmemoryConfig()
			cfg.Maintenance.Workers = 1
			cfg.Maintenance.BatchSize = 20
			cfg.CircuitBreaker.QueuedBacklogThreshold = 2
			var err error
			eng, err = engine.New(ctx, cfg, engine.Options{})
			Expect(err).NotTo(HaveOccurred())

			for i := range 40 {
				item := testutils.NewTestItem(fmt.Sprintf("incident %d was caused by a bad deploy", i))
				item.Importance = 0.9
				_, err := eng.Tier(memory.TierShortTerm).Store(ctx, item)
				Expect(err).NotTo(HaveOccurred())
			}

			// Hold the only worker so the cycle's jobs pile up behind it.
			release := make(chan struct{})
			started := make(chan struct{})
			Expect(eng.Pool.Enqueue(worker.Job{Source: memory.TierShortTerm, Run: func() {
				close(started)
				<-release
			}})).To(BeTrue())
			<-started

			done := make(chan *maintenance.Report, 1)
			go func() { done <- eng.Orchestrator.RunCycle(ctx, maintenance.TriggerSchedule) }()
			Eventually(func() int {
				return eng.Pool.Backpressure()[memory.TierShortTerm].Queued
			}).Should(BeNumerically(">=", 2))
			close(release)

			var first *maintenance.Report
			Eventually(done).Should(Receive(&first))
			Expect(first.Status).To(Equal(maintenance.StatusOK))
			Expect(first.Consolidation.Promoted).To(Equal(20))

			second := eng.Orchestrator.RunCycle(ctx, maintenance.TriggerSchedule)
			Expect(second.Status).To(Equal(maintenance.StatusCircuitOpen))
			Expect(second.Consolidation.SkippedReason.Reason).To(Equal(maintenance.SkipReasonQueuedBacklog))
			Expect(second.Consolidation.SkippedReason.QueuedBacklog[memory.TierShortTerm]).To(BeNumerically(">=", 2))

			third := eng.Orchestrator.RunCycle(ctx, maintenance.TriggerSchedule)
			Expect(third.Status).To(Equal(maintenance.StatusOK))
		})

		It("applies hot-reloadable settings", func() {
			cfg := inmemoryConfig()
			cfg.Maintenance.Interval = 10 * time.Minute
			cfg.Maintenance.MinInterval = time.Minute
			cfg.CircuitBreaker.FailureThreshold = 9
			cfg.Tiers.MTM.FailMaintenance = true

			eng.Apply(cfg)

			Expect(eng.Orchestrator.Interval()).To(Equal(10 * time.Minute))
			Expect(eng.Orchestrator.BreakerConfig().FailureThreshold).To(Equal(9))
			Expect(eng.Tier(memory.TierMediumTerm).Policy().FailMaintenance).To(BeTrue())
			Expect(eng.Tier(memory.TierShortTerm).Policy().FailMaintenance).To(BeFalse())

			report := eng.Orchestrator.RunCycle(ctx, maintenance.TriggerManual)
			Expect(report.Status).To(Equal(maintenance.StatusError))
			Expect(report.Errors).NotTo(BeEmpty())
		})
	})

	Describe("Signal", func() {
		It("routes signals to the named tier", func() {
			var err error
			eng, err = engine.New(ctx, inmemoryConfig(), engine.Options{})
			Expect(err).NotTo(HaveOccurred())

			id, err := eng.Tier(memory.TierMediumTerm).Store(ctx, testutils.NewTestItem("ship on fridays"))
			Expect(err).NotTo(HaveOccurred())

			res, err := eng.Signal(ctx, memory.TierMediumTerm, tier.SignalTouch, id, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Item.AccessCount).To(Equal(1))

			_, err = eng.Signal(ctx, memory.TierShortTerm, tier.SignalTouch, id, 1)
			Expect(err).To(MatchError(tier.ErrItemNotFound))
			_, err = eng.Signal(ctx, memory.TierName("xtm"), tier.SignalTouch, id, 1)
			Expect(err).To(MatchError(ContainSubstring("unknown tier")))
		})
	})

	Describe("Similar", func() {
		It("finds neighbours across tiers through the vector index", func() {
			cfg := inmemoryConfig()
			cfg.VectorStore.Provider = "inmemory"
			var err error
			eng, err = engine.New(ctx, cfg, engine.Options{})
			Expect(err).NotTo(HaveOccurred())

			embedded := func(content string, emb ...float32) *memory.Item {
				item := testutils.NewTestItem(content)
				item.Embedding = emb
				return item
			}
			id, err := eng.Tier(memory.TierShortTerm).Store(ctx, embedded("deploys need a changelog", 1, 0))
			Expect(err).NotTo(HaveOccurred())
			near, err := eng.Tier(memory.TierLongTerm).Store(ctx, embedded("deploys need release notes", 0.9, 0.1))
			Expect(err).NotTo(HaveOccurred())
			_, err = eng.Tier(memory.TierMediumTerm).Store(ctx, embedded("lunch is at noon", 0, 1))
			Expect(err).NotTo(HaveOccurred())

			results, err := eng.Similar(ctx, memory.TierShortTerm, id, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal(near))
			Expect(results[0].Tier).To(Equal(memory.TierLongTerm))

			_, err = eng.Similar(ctx, memory.TierMediumTerm, id, 1)
			Expect(err).To(MatchError(tier.ErrItemNotFound))
		})

		It("reports a missing index", func() {
			var err error
			eng, err = engine.New(ctx, inmemoryConfig(), engine.Options{})
			Expect(err).NotTo(HaveOccurred())

			_, err = eng.Similar(ctx, memory.TierShortTerm, "any", 3)
			Expect(err).To(MatchError(vector.ErrNoIndex))
		})
	})

	It("closes idempotently", func() {
		e, err := engine.New(ctx, inmemoryConfig(), engine.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Close()).To(Succeed())
		Expect(e.Close()).To(Succeed())
	})
})
