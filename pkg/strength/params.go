// Package strength implements the closed-form strength and decay model used to
// decide how long a memory is retained.
//
// An item's strength is derived from a reinforcement accumulator:
//
//	base     = baseline + importance_weight * importance
//	strength = base + (max - base) * (1 - e^(-level / scale))
//
// The level decays exponentially over time and grows with reinforcement,
// which gives repeated reinforcement diminishing returns. Every single call
// moves strength by a bounded step so bursts of events never cause a
// discontinuity.
package strength

import (
	"errors"
	"fmt"
	"time"
)

// Params parameterizes a Model. One Model exists per tier.
type Params struct {
	MinStrength      float64
	MaxStrength      float64
	BaselineStrength float64

	// ImportanceWeight scales how much importance lifts the baseline and the
	// reinforcement delta.
	ImportanceWeight float64

	// PassiveHalfLife governs how fast strength relaxes toward its target.
	PassiveHalfLife time.Duration

	// ReinforcementHalfLife governs how fast the reinforcement level decays.
	ReinforcementHalfLife time.Duration

	// StalenessHalfLife is an extra decay applied while an item is stale.
	StalenessHalfLife time.Duration

	// ReinforcementScale is the level at which strength reaches ~63% of the
	// distance between base and max.
	ReinforcementScale float64

	// ReinforcementUnit is the level added by a reinforcement of amount 1.
	ReinforcementUnit float64

	// InitialReinforcement is the level given to newly stored items.
	InitialReinforcement float64

	MaxReinforcementLevel float64
	MaxReinforcementStep  float64
	MaxDecayPerCycle      float64

	// ManualDecayMultiplier scales MaxDecayPerCycle for ApplyManualDecay.
	ManualDecayMultiplier float64

	// ForgettingThreshold is the strength at or below which an item of
	// importance 0 is forgotten.
	ForgettingThreshold float64

	// ForgettingImportanceShift lowers the threshold for important items:
	// threshold = ForgettingThreshold * (1 - shift * importance).
	ForgettingImportanceShift float64
}

// DefaultParams returns the parameters used by the medium-term tier.
func DefaultParams() Params {
	return Params{
		MinStrength:               0.0,
		MaxStrength:               1.0,
		BaselineStrength:          0.05,
		ImportanceWeight:          0.25,
		PassiveHalfLife:           72 * time.Hour,
		ReinforcementHalfLife:     7 * 24 * time.Hour,
		StalenessHalfLife:         14 * 24 * time.Hour,
		ReinforcementScale:        2.0,
		ReinforcementUnit:         1.0,
		InitialReinforcement:      1.0,
		MaxReinforcementLevel:     10.0,
		MaxReinforcementStep:      0.25,
		MaxDecayPerCycle:          0.1,
		ManualDecayMultiplier:     2.0,
		ForgettingThreshold:       0.1,
		ForgettingImportanceShift: 0.5,
	}
}

// Validate reports parameter combinations the model cannot work with.
func (p Params) Validate() error {
	var errs []error
	if p.MaxStrength <= p.MinStrength {
		errs = append(errs, fmt.Errorf("max_strength %.3f must exceed min_strength %.3f", p.MaxStrength, p.MinStrength))
	}
	if p.BaselineStrength < p.MinStrength || p.BaselineStrength > p.MaxStrength {
		errs = append(errs, fmt.Errorf("baseline_strength %.3f outside [%.3f, %.3f]", p.BaselineStrength, p.MinStrength, p.MaxStrength))
	}
	if p.ReinforcementScale <= 0 {
		errs = append(errs, errors.New("reinforcement_scale must be positive"))
	}
	if p.MaxReinforcementLevel <= 0 {
		errs = append(errs, errors.New("max_reinforcement_level must be positive"))
	}
	if p.PassiveHalfLife <= 0 || p.ReinforcementHalfLife <= 0 || p.StalenessHalfLife <= 0 {
		errs = append(errs, errors.New("half-lives must be positive"))
	}
	if p.MaxReinforcementStep <= 0 || p.MaxDecayPerCycle <= 0 {
		errs = append(errs, errors.New("max_reinforcement_step and max_decay_per_cycle must be positive"))
	}
	return errors.Join(errs...)
}
