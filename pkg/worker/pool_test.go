package worker

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
)

var _ = Describe("Worker Pool", func() {
	Describe("Enqueue", func() {
		It("runs every queued job before Close returns", func() {
			wp, err := NewPool(&Config{NumWorkers: 2})
			Expect(err).NotTo(HaveOccurred())

			var ran atomic.Int32
			for range 10 {
				Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: func() { ran.Add(1) }})).To(BeTrue())
			}
			wp.Close()
			Expect(ran.Load()).To(Equal(int32(10)))
		})

		It("returns false when the queue is full", func() {
			wp, err := NewPool(&Config{NumWorkers: 1, QueueSize: 1})
			Expect(err).NotTo(HaveOccurred())

			release := make(chan struct{})
			started := make(chan struct{})
			Expect(wp.Enqueue(Job{Run: func() {
				close(started)
				<-release
			}})).To(BeTrue())
			Eventually(started).Should(BeClosed())

			Expect(wp.Enqueue(Job{Run: func() {}})).To(BeTrue())
			Expect(wp.Enqueue(Job{Run: func() {}})).To(BeFalse())

			close(release)
			wp.Close()
		})

		It("returns false after Close", func() {
			wp, err := NewPool(&Config{})
			Expect(err).NotTo(HaveOccurred())
			wp.Close()
			Expect(wp.Enqueue(Job{Run: func() {}})).To(BeFalse())
			wp.Close()
		})

		It("survives panicking jobs", func() {
			wp, err := NewPool(&Config{NumWorkers: 1})
			Expect(err).NotTo(HaveOccurred())

			var ran atomic.Bool
			Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: func() { panic("boom") }})).To(BeTrue())
			Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: func() { ran.Store(true) }})).To(BeTrue())
			wp.Close()

			Expect(ran.Load()).To(BeTrue())
			load := wp.Backpressure()[memory.TierShortTerm]
			Expect(load.Queued).To(BeZero())
			Expect(load.InFlight).To(BeZero())
		})
	})

	Describe("Backpressure", func() {
		It("reports queued and in-flight jobs per source tier", func() {
			wp, err := NewPool(&Config{NumWorkers: 1, QueueSize: 8})
			Expect(err).NotTo(HaveOccurred())

			release := make(chan struct{})
			var started sync.WaitGroup
			started.Add(1)
			Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: func() {
				started.Done()
				<-release
			}})).To(BeTrue())
			started.Wait()

			for range 3 {
				Expect(wp.Enqueue(Job{Source: memory.TierMediumTerm, Run: func() {}})).To(BeTrue())
			}

			bp := wp.Backpressure()
			Expect(bp[memory.TierShortTerm]).To(Equal(Load{InFlight: 1, PeakQueued: 1}))
			Expect(bp[memory.TierMediumTerm]).To(Equal(Load{Queued: 3, PeakQueued: 3}))

			close(release)
			wp.Close()

			bp = wp.Backpressure()
			Expect(bp[memory.TierShortTerm]).To(Equal(Load{PeakQueued: 1}))
			Expect(bp[memory.TierMediumTerm]).To(Equal(Load{PeakQueued: 3}))
			Expect(bp[memory.TierMediumTerm].Backlog()).To(Equal(3))
		})

		It("keeps the peak queue depth until ResetPeaks", func() {
			wp, err := NewPool(&Config{NumWorkers: 1, QueueSize: 8})
			Expect(err).NotTo(HaveOccurred())
			defer wp.Close()

			release := make(chan struct{})
			var started sync.WaitGroup
			started.Add(1)
			Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: func() {
				started.Done()
				<-release
			}})).To(BeTrue())
			started.Wait()

			var done sync.WaitGroup
			for range 4 {
				done.Add(1)
				Expect(wp.Enqueue(Job{Source: memory.TierShortTerm, Run: done.Done})).To(BeTrue())
			}
			close(release)
			done.Wait()

			Eventually(func() int {
				return wp.Backpressure()[memory.TierShortTerm].InFlight
			}).Should(BeZero())
			Expect(wp.Backpressure()[memory.TierShortTerm].Backlog()).To(Equal(4))

			wp.ResetPeaks()
			Expect(wp.Backpressure()[memory.TierShortTerm]).To(Equal(Load{}))
		})
	})
})
