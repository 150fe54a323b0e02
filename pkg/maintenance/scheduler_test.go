package maintenance_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/drift"
	"github.com/papercomputeco/strata/pkg/maintenance"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/quality"
)

var _ = Describe("Scheduler", func() {
	var (
		ctx   context.Context
		tiers stack
	)

	BeforeEach(func() {
		ctx = context.Background()
		tiers = newStack()
	})

	It("runs cycles on the orchestrator's interval", func() {
		o, err := maintenance.NewOrchestrator(maintenance.Config{
			Tiers:    tiers.tiers(),
			Interval: 50 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		s := maintenance.NewScheduler(o, nil, nil)
		Expect(s.Start(ctx)).To(Succeed())
		Expect(s.NextCycleAt().IsZero()).To(BeFalse())

		Eventually(func() int { return o.Telemetry().SuccessfulCycles }, 2*time.Second).Should(BeNumerically(">=", 2))
		Expect(o.LastReport().TriggeredBy).To(Equal(maintenance.TriggerSchedule))

		Expect(s.Shutdown(time.Second)).To(Succeed())
		done := o.Telemetry().SuccessfulCycles
		Consistently(func() int { return o.Telemetry().SuccessfulCycles }, 200*time.Millisecond).Should(Equal(done))

		Expect(s.Start(ctx)).To(MatchError(maintenance.ErrSchedulerStopped))
		Expect(s.Shutdown(time.Second)).To(Succeed())
	})

	It("gives up on a cycle that outlives the drain timeout", func() {
		blocking := &blockingTier{
			Tier:    tiers.stm,
			entered: make(chan struct{}),
			release: make(chan struct{}),
		}
		o, err := maintenance.NewOrchestrator(maintenance.Config{
			Tiers:    []memory.Tier{blocking, tiers.mtm, tiers.ltm},
			Interval: 20 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		s := maintenance.NewScheduler(o, nil, nil)
		Expect(s.Start(ctx)).To(Succeed())
		Eventually(blocking.entered, 2*time.Second).Should(BeClosed())

		Expect(s.Shutdown(50 * time.Millisecond)).To(MatchError(maintenance.ErrDrainTimeout))

		Eventually(o.LastReport, 2*time.Second).ShouldNot(BeNil())
		r := o.LastReport()
		Expect(r.Status).To(Equal(maintenance.StatusCancelled))
		Expect(r.Errors[0].Tier).To(Equal(memory.TierShortTerm))
		Expect(r.Errors[0].Error).To(ContainSubstring("context canceled"))

		t := o.Telemetry()
		Expect(t.CancelledCycles).To(Equal(1))
		Expect(t.FailedCycles).To(Equal(0))
		Expect(t.ConsecutiveFailures).To(Equal(0))
		Expect(o.NextDelay()).To(Equal(o.Interval()))
	})

	It("runs the drift monitor on its own interval", func() {
		analyzer, err := quality.NewAnalyzer(quality.Config{})
		Expect(err).NotTo(HaveOccurred())
		o, err := maintenance.NewOrchestrator(maintenance.Config{
			Tiers:    tiers.tiers(),
			Analyzer: analyzer,
			Interval: time.Hour,
		})
		Expect(err).NotTo(HaveOccurred())

		monitor, err := drift.NewMonitor(drift.Config{
			Interval: time.Second,
			Quality:  o,
		})
		Expect(err).NotTo(HaveOccurred())

		s := maintenance.NewScheduler(o, monitor, nil)
		Expect(s.Start(ctx)).To(Succeed())
		defer func() { Expect(s.Shutdown(time.Second)).To(Succeed()) }()

		Eventually(monitor.Last, 3*time.Second).ShouldNot(BeNil())
		Expect(monitor.Last().QualityScore).NotTo(BeNil())
		Expect(o.LastReport()).To(BeNil())
	})
})
