package strength_test

import (
	"math/rand/v2"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/strength"
)

func expectBounded(m *strength.Model, s strength.State) {
	p := m.Params()
	ExpectWithOffset(1, s.Strength).To(BeNumerically(">=", p.MinStrength))
	ExpectWithOffset(1, s.Strength).To(BeNumerically("<=", p.MaxStrength))
	ExpectWithOffset(1, s.ReinforcementLevel).To(BeNumerically(">=", 0))
	ExpectWithOffset(1, s.ReinforcementLevel).To(BeNumerically("<=", p.MaxReinforcementLevel))
}

var _ = Describe("Model", func() {
	var (
		model *strength.Model
		now   time.Time
	)

	BeforeEach(func() {
		var err error
		model, err = strength.NewModel(strength.DefaultParams())
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	Describe("NewModel", func() {
		It("rejects inverted bounds", func() {
			p := strength.DefaultParams()
			p.MaxStrength = 0
			_, err := strength.NewModel(p)
			Expect(err).To(MatchError(ContainSubstring("must exceed min_strength")))
		})

		It("rejects non-positive half-lives", func() {
			p := strength.DefaultParams()
			p.ReinforcementHalfLife = 0
			_, err := strength.NewModel(p)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("StateFromMetadata", func() {
		It("uses the importance-weighted baseline when nothing is stored", func() {
			s := model.StateFromMetadata(memory.Metadata{}, 0.9)
			Expect(s.Strength).To(BeNumerically("~", 0.275, 1e-9))
			Expect(s.ReinforcementLevel).To(BeZero())
		})

		It("back-derives the reinforcement level from strength", func() {
			fresh := model.ApplyReinforcement(model.StateFromMetadata(memory.Metadata{}, 0.4), 1.0, now)
			md := memory.Metadata{Strength: fresh.Strength}

			derived := model.StateFromMetadata(md, 0.4)
			Expect(derived.Strength).To(Equal(fresh.Strength))

			var roundTrip memory.Metadata
			derived.ApplyTo(&roundTrip)
			Expect(model.StateFromMetadata(roundTrip, 0.4).Strength).To(BeNumerically("~", fresh.Strength, 1e-9))
			Expect(derived.ReinforcementLevel).To(BeNumerically(">", 0))
		})

		It("keeps an explicit reinforcement level", func() {
			level := 3.5
			s := model.StateFromMetadata(memory.Metadata{Strength: 0.6, ReinforcementLevel: &level}, 0.5)
			Expect(s.ReinforcementLevel).To(Equal(3.5))
			Expect(s.Strength).To(Equal(0.6))
		})

		It("clamps out-of-range stored values", func() {
			level := 1e6
			s := model.StateFromMetadata(memory.Metadata{Strength: 7, ReinforcementLevel: &level}, 3)
			expectBounded(model, s)
			Expect(s.Importance).To(Equal(1.0))
		})
	})

	Describe("ApplyReinforcement", func() {
		It("raises strength by at most the reinforcement step", func() {
			before := model.StateFromMetadata(memory.Metadata{}, 0.9)
			after := model.ApplyReinforcement(before, 1.0, now)

			Expect(after.Strength).To(BeNumerically(">", before.Strength))
			Expect(after.Strength - before.Strength).To(BeNumerically("<=", model.Params().MaxReinforcementStep+1e-12))
			Expect(after.ReinforcementCount).To(Equal(1))
			Expect(after.LastReinforcedAt).To(Equal(now))
		})

		It("saturates under a burst of reinforcement", func() {
			s := model.NewState(0.5, now)
			for i := range 200 {
				s = model.ApplyReinforcement(s, 5, now.Add(time.Duration(i)*time.Second))
				expectBounded(model, s)
			}
			Expect(s.ReinforcementLevel).To(Equal(model.Params().MaxReinforcementLevel))
			Expect(s.Strength).To(BeNumerically("<=", 1.0))
		})

		It("ignores non-positive amounts", func() {
			s := model.NewState(0.5, now)
			Expect(model.ApplyReinforcement(s, 0, now)).To(Equal(s))
		})
	})

	Describe("ApplyPassiveDecay", func() {
		It("is a no-op the second time with the same now", func() {
			s := model.NewState(0.5, now)
			later := now.Add(10 * 24 * time.Hour)

			once := model.ApplyPassiveDecay(s, later, nil)
			twice := model.ApplyPassiveDecay(once, later, nil)
			Expect(twice).To(Equal(once))
		})

		It("decays the reinforcement level and strength over time", func() {
			s := model.NewState(0.5, now)
			decayed := model.ApplyPassiveDecay(s, now.Add(30*24*time.Hour), nil)

			Expect(decayed.ReinforcementLevel).To(BeNumerically("<", s.ReinforcementLevel))
			Expect(decayed.Strength).To(BeNumerically("<", s.Strength))
		})

		It("caps the drop of a single call", func() {
			s := model.NewState(0.5, now)
			decayed := model.ApplyPassiveDecay(s, now.Add(5*365*24*time.Hour), nil)
			Expect(s.Strength - decayed.Strength).To(BeNumerically("<=", model.Params().MaxDecayPerCycle+1e-12))
		})

		It("decays stale items faster", func() {
			s := model.NewState(0.5, now)
			later := now.Add(7 * 24 * time.Hour)
			stale := 7 * 24 * time.Hour

			fresh := model.ApplyPassiveDecay(s, later, nil)
			staled := model.ApplyPassiveDecay(s, later, &stale)
			Expect(staled.ReinforcementLevel).To(BeNumerically("<", fresh.ReinforcementLevel))
		})

		It("initializes the decay clock without decaying", func() {
			s := model.StateFromMetadata(memory.Metadata{Strength: 0.4}, 0.2)
			out := model.ApplyPassiveDecay(s, now, nil)
			Expect(out.Strength).To(Equal(0.4))
			Expect(out.LastDecayAt).To(Equal(now))
		})

		It("does nothing when the clock runs backwards", func() {
			s := model.NewState(0.5, now)
			Expect(model.ApplyPassiveDecay(s, now.Add(-time.Hour), nil).Strength).To(Equal(s.Strength))
		})
	})

	Describe("ApplyManualDecay", func() {
		It("lowers strength within the manual cap", func() {
			s := model.ApplyReinforcement(model.NewState(0.5, now), 3, now)
			out := model.ApplyManualDecay(s, 10, now)

			p := model.Params()
			Expect(out.Strength).To(BeNumerically("<", s.Strength))
			Expect(s.Strength - out.Strength).To(BeNumerically("<=", p.MaxDecayPerCycle*p.ManualDecayMultiplier+1e-12))
			expectBounded(model, out)
		})
	})

	Describe("ShouldForget", func() {
		It("lowers the threshold for important items", func() {
			Expect(model.ForgettingThresholdFor(1.0)).To(BeNumerically("<", model.ForgettingThresholdFor(0.0)))
		})

		It("forgets weak items and keeps strong ones", func() {
			weak := strength.State{Strength: 0.05, Importance: 0.1}
			strong := strength.State{Strength: 0.6, Importance: 0.1}
			Expect(model.ShouldForget(weak)).To(BeTrue())
			Expect(model.ShouldForget(strong)).To(BeFalse())
		})
	})

	Describe("ApplyTo", func() {
		It("persists every bookkeeping field", func() {
			s := model.ApplyReinforcement(model.NewState(0.7, now), 1, now.Add(time.Hour))
			var md memory.Metadata
			s.ApplyTo(&md)

			Expect(md.Strength).To(Equal(s.Strength))
			Expect(*md.ReinforcementLevel).To(Equal(s.ReinforcementLevel))
			Expect(md.ReinforcementCount).To(Equal(1))
			Expect(md.LastDecayAt).To(Equal(now.Add(time.Hour)))
		})
	})

	Describe("bounds", func() {
		DescribeTable("hold after every operation for edge-case inputs",
			func(importance, stored, level, amount float64, elapsed time.Duration) {
				md := memory.Metadata{Strength: stored, ReinforcementLevel: &level, LastDecayAt: now}
				s := model.StateFromMetadata(md, importance)
				expectBounded(model, s)

				at := now.Add(elapsed)
				expectBounded(model, model.ApplyPassiveDecay(s, at, nil))
				expectBounded(model, model.ApplyReinforcement(s, amount, at))
				expectBounded(model, model.ApplyManualDecay(s, amount, at))
				expectBounded(model, model.NewState(importance, at))
			},
			Entry("zero importance and strength", 0.0, 0.0, 0.0, 1.0, time.Hour),
			Entry("full importance at the ceiling", 1.0, 1.0, 1e6, 1e6, time.Hour),
			Entry("out-of-range stored values", 2.0, 5.0, -3.0, 10.0, 24*time.Hour),
			Entry("negative amount", 0.5, 0.5, 1.0, -4.0, time.Minute),
			Entry("clock running backwards", 0.5, 0.5, 1.0, 1.0, -time.Hour),
			Entry("years of neglect", 0.3, 0.9, 2.0, 1.0, 5*365*24*time.Hour),
		)

		It("hold across random sequences of operations", func() {
			r := rand.New(rand.NewPCG(7, 11))
			p := model.Params()
			for range 200 {
				importance := r.Float64()
				level := r.Float64() * p.MaxReinforcementLevel
				md := memory.Metadata{Strength: r.Float64(), ReinforcementLevel: &level, LastDecayAt: now}
				s := model.StateFromMetadata(md, importance)
				at := now
				for range 25 {
					at = at.Add(time.Duration(r.Int64N(int64(72 * time.Hour))))
					switch r.IntN(4) {
					case 0:
						s = model.ApplyPassiveDecay(s, at, nil)
					case 1:
						stale := time.Duration(r.Int64N(int64(30 * 24 * time.Hour)))
						s = model.ApplyPassiveDecay(s, at, &stale)
					case 2:
						s = model.ApplyReinforcement(s, r.Float64()*5, at)
					default:
						s = model.ApplyManualDecay(s, r.Float64()*5, at)
					}
					expectBounded(model, s)
				}
			}
		})
	})
})
