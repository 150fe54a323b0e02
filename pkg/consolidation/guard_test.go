package consolidation_test

import (
	"context"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/consolidation"
)

var _ = Describe("Guard", func() {
	var (
		ctx   context.Context
		guard *consolidation.Guard[int]
	)

	BeforeEach(func() {
		ctx = context.Background()
		guard = consolidation.NewGuard[int]()
	})

	It("grants the first reservation and releases it on commit", func() {
		d, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Proceed).To(BeTrue())
		Expect(d.Reservation.Key()).To(Equal("k"))
		Expect(guard.InFlight()).To(Equal(1))

		d.Reservation.Commit(7)
		Expect(guard.InFlight()).To(Equal(0))

		again, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Proceed).To(BeTrue())
		again.Reservation.Abort()
	})

	It("hands the committed value to waiters", func() {
		d, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())

		got := make(chan consolidation.Decision[int], 1)
		go func() {
			defer GinkgoRecover()
			w, err := guard.Reserve(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			got <- w
		}()

		Eventually(func() int { return guard.Waiting("k") }).Should(Equal(1))
		d.Reservation.Commit(42)

		var w consolidation.Decision[int]
		Eventually(got).Should(Receive(&w))
		Expect(w.Proceed).To(BeFalse())
		Expect(w.Result).NotTo(BeNil())
		Expect(*w.Result).To(Equal(42))
	})

	It("returns a nil result to waiters when the holder aborts", func() {
		d, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())

		got := make(chan consolidation.Decision[int], 1)
		go func() {
			defer GinkgoRecover()
			w, err := guard.Reserve(ctx, "k")
			Expect(err).NotTo(HaveOccurred())
			got <- w
		}()

		Eventually(func() int { return guard.Waiting("k") }).Should(Equal(1))
		d.Reservation.Abort()

		var w consolidation.Decision[int]
		Eventually(got).Should(Receive(&w))
		Expect(w.Proceed).To(BeFalse())
		Expect(w.Result).To(BeNil())
	})

	It("stops waiting when the context ends", func() {
		d, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		defer d.Reservation.Abort()

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = guard.Reserve(cctx, "k")
		Expect(err).To(MatchError(context.Canceled))
		Expect(guard.Waiting("k")).To(Equal(0))
	})

	It("ignores a second resolve", func() {
		d, err := guard.Reserve(ctx, "k")
		Expect(err).NotTo(HaveOccurred())
		d.Reservation.Commit(1)
		d.Reservation.Abort()
		d.Reservation.Commit(2)
		Expect(guard.InFlight()).To(Equal(0))
	})

	Describe("Do", func() {
		It("runs the work once for concurrent callers of one key", func() {
			const callers = 8
			var (
				runs    atomic.Int32
				release = make(chan struct{})
				wg      sync.WaitGroup
				results = make([]int, callers)
				shared  = make([]bool, callers)
			)

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				v, s, err := guard.Do(ctx, "k", func() int {
					runs.Add(1)
					<-release
					return 99
				})
				Expect(err).NotTo(HaveOccurred())
				results[0], shared[0] = v, s
			}()
			Eventually(guard.InFlight).Should(Equal(1))

			for i := 1; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					v, s, err := guard.Do(ctx, "k", func() int {
						runs.Add(1)
						return -1
					})
					Expect(err).NotTo(HaveOccurred())
					results[i], shared[i] = v, s
				}(i)
			}

			Eventually(func() int { return guard.Waiting("k") }).Should(Equal(callers - 1))
			close(release)
			wg.Wait()

			Expect(runs.Load()).To(Equal(int32(1)))
			for i := range results {
				Expect(results[i]).To(Equal(99))
			}
			Expect(shared[0]).To(BeFalse())
			Expect(shared[1:]).To(HaveEach(BeTrue()))
		})

		It("lets a waiter take over when the holder panics", func() {
			release := make(chan struct{})
			panicked := make(chan struct{})

			go func() {
				defer close(panicked)
				defer func() { _ = recover() }()
				_, _, _ = guard.Do(ctx, "k", func() int {
					<-release
					panic("boom")
				})
			}()
			Eventually(guard.InFlight).Should(Equal(1))

			got := make(chan int, 1)
			go func() {
				defer GinkgoRecover()
				v, shared, err := guard.Do(ctx, "k", func() int { return 5 })
				Expect(err).NotTo(HaveOccurred())
				Expect(shared).To(BeFalse())
				got <- v
			}()

			Eventually(func() int { return guard.Waiting("k") }).Should(Equal(1))
			close(release)
			Eventually(panicked).Should(BeClosed())
			Eventually(got).Should(Receive(Equal(5)))
			Expect(guard.InFlight()).To(Equal(0))
		})
	})
})
