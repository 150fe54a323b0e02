package strength

import (
	"math"
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

// State is the per-item decay bookkeeping. It is derived from item metadata
// on read and written back with ApplyTo; it is never stored on its own.
type State struct {
	Strength           float64
	Importance         float64
	ReinforcementLevel float64
	ReinforcementCount int
	LastDecayAt        time.Time
	LastReinforcedAt   time.Time
}

// ApplyTo writes the state back into item metadata.
func (s State) ApplyTo(md *memory.Metadata) {
	level := s.ReinforcementLevel
	md.Strength = s.Strength
	md.ReinforcementLevel = &level
	md.ReinforcementCount = s.ReinforcementCount
	md.LastDecayAt = s.LastDecayAt
	md.LastReinforcedAt = s.LastReinforcedAt
}

// Model computes strength transitions. It performs no I/O and is safe for
// concurrent use.
type Model struct {
	p Params
}

// NewModel validates p and returns a Model.
func NewModel(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{p: p}, nil
}

// Params returns the model's parameters.
func (m *Model) Params() Params {
	return m.p
}

// NewState returns the state of a freshly stored item.
func (m *Model) NewState(importance float64, now time.Time) State {
	importance = clamp(importance, 0, 1)
	level := m.clampLevel(m.p.InitialReinforcement)
	return State{
		Strength:           m.strengthFor(level, importance),
		Importance:         importance,
		ReinforcementLevel: level,
		LastDecayAt:        now,
	}
}

// StateFromMetadata reconstructs state from item metadata. When the
// reinforcement level is absent it is back-derived from the stored strength
// by inverting the strength formula. Missing strength means baseline.
func (m *Model) StateFromMetadata(md memory.Metadata, importance float64) State {
	importance = clamp(importance, 0, 1)
	s := State{
		Importance:         importance,
		ReinforcementCount: md.ReinforcementCount,
		LastDecayAt:        md.LastDecayAt,
		LastReinforcedAt:   md.LastReinforcedAt,
	}

	switch {
	case md.ReinforcementLevel != nil:
		s.ReinforcementLevel = m.clampLevel(*md.ReinforcementLevel)
	case md.Strength > 0:
		s.ReinforcementLevel = m.levelFor(md.Strength, importance)
	}

	if md.Strength > 0 {
		s.Strength = m.clampStrength(md.Strength)
	} else {
		s.Strength = m.strengthFor(s.ReinforcementLevel, importance)
	}
	return s
}

// BaselineFor returns the importance-weighted baseline strength.
func (m *Model) BaselineFor(importance float64) float64 {
	return m.clampStrength(m.p.BaselineStrength + m.p.ImportanceWeight*clamp(importance, 0, 1))
}

// ApplyPassiveDecay decays the reinforcement level for the time elapsed since
// LastDecayAt and relaxes strength toward the resulting target. A non-nil
// staleness adds a second decay factor for the stale part of the elapsed
// window. Calling it twice with the same now is a no-op the second time.
func (m *Model) ApplyPassiveDecay(s State, now time.Time, staleness *time.Duration) State {
	if s.LastDecayAt.IsZero() {
		s.LastDecayAt = now
		return m.normalize(s)
	}

	elapsed := now.Sub(s.LastDecayAt)
	if elapsed <= 0 {
		return m.normalize(s)
	}

	level := s.ReinforcementLevel * halfLifeFactor(elapsed, m.p.ReinforcementHalfLife)
	if staleness != nil && *staleness > 0 {
		stale := min(*staleness, elapsed)
		level *= halfLifeFactor(stale, m.p.StalenessHalfLife)
	}
	s.ReinforcementLevel = m.clampLevel(level)

	target := m.strengthFor(s.ReinforcementLevel, s.Importance)
	relax := 1 - halfLifeFactor(elapsed, m.p.PassiveHalfLife)
	s.Strength = m.step(s.Strength, s.Strength+(target-s.Strength)*relax, m.p.MaxDecayPerCycle, m.p.MaxReinforcementStep)
	s.LastDecayAt = now
	return m.normalize(s)
}

// ApplyReinforcement applies passive decay up to now, then adds an
// importance-scaled delta to the reinforcement level. The strength increase
// of a single call is capped at MaxReinforcementStep.
func (m *Model) ApplyReinforcement(s State, amount float64, now time.Time) State {
	s = m.ApplyPassiveDecay(s, now, nil)
	if amount <= 0 {
		return s
	}

	multiplier := max(1+(s.Importance-0.5)*m.p.ImportanceWeight, 0.2)
	s.ReinforcementLevel = m.clampLevel(s.ReinforcementLevel + amount*m.p.ReinforcementUnit*multiplier)
	s.ReinforcementCount++
	s.LastReinforcedAt = now

	target := m.strengthFor(s.ReinforcementLevel, s.Importance)
	if target > s.Strength {
		s.Strength += min(target-s.Strength, m.p.MaxReinforcementStep)
	}
	return m.normalize(s)
}

// ApplyManualDecay is the explicit counterpart of ApplyReinforcement: it
// removes amount units from the reinforcement level and lowers strength by at
// most MaxDecayPerCycle * ManualDecayMultiplier.
func (m *Model) ApplyManualDecay(s State, amount float64, now time.Time) State {
	s = m.ApplyPassiveDecay(s, now, nil)
	if amount <= 0 {
		return s
	}

	s.ReinforcementLevel = m.clampLevel(s.ReinforcementLevel - amount*m.p.ReinforcementUnit)

	target := m.strengthFor(s.ReinforcementLevel, s.Importance)
	if target < s.Strength {
		limit := m.p.MaxDecayPerCycle * max(m.p.ManualDecayMultiplier, 1)
		s.Strength -= min(s.Strength-target, limit)
	}
	return m.normalize(s)
}

// ForgettingThresholdFor returns the forgetting threshold for importance.
func (m *Model) ForgettingThresholdFor(importance float64) float64 {
	t := m.p.ForgettingThreshold * (1 - m.p.ForgettingImportanceShift*clamp(importance, 0, 1))
	return m.clampStrength(t)
}

// ShouldForget reports whether the item has decayed past its threshold.
func (m *Model) ShouldForget(s State) bool {
	return s.Strength <= m.ForgettingThresholdFor(s.Importance)
}

func (m *Model) strengthFor(level, importance float64) float64 {
	base := m.BaselineFor(importance)
	return m.clampStrength(base + (m.p.MaxStrength-base)*(1-math.Exp(-level/m.p.ReinforcementScale)))
}

// levelFor inverts strengthFor.
func (m *Model) levelFor(strength, importance float64) float64 {
	base := m.BaselineFor(importance)
	span := m.p.MaxStrength - base
	if span <= 0 || strength <= base {
		return 0
	}
	ratio := (strength - base) / span
	if ratio >= 1 {
		return m.p.MaxReinforcementLevel
	}
	return m.clampLevel(-m.p.ReinforcementScale * math.Log(1-ratio))
}

// step moves from current toward next, bounded by maxDown and maxUp.
func (m *Model) step(current, next, maxDown, maxUp float64) float64 {
	delta := next - current
	switch {
	case delta < -maxDown:
		delta = -maxDown
	case delta > maxUp:
		delta = maxUp
	}
	return current + delta
}

func (m *Model) normalize(s State) State {
	s.Strength = m.clampStrength(s.Strength)
	s.ReinforcementLevel = m.clampLevel(s.ReinforcementLevel)
	s.Importance = clamp(s.Importance, 0, 1)
	return s
}

func (m *Model) clampStrength(v float64) float64 {
	return clamp(v, m.p.MinStrength, m.p.MaxStrength)
}

func (m *Model) clampLevel(v float64) float64 {
	return clamp(v, 0, m.p.MaxReinforcementLevel)
}

func halfLifeFactor(elapsed, halfLife time.Duration) float64 {
	return math.Pow(0.5, elapsed.Seconds()/halfLife.Seconds())
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
