package tier

import (
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Policy holds the per-tier retention and promotion rules.
type Policy struct {
	// TTL sets ExpiresAt on items stored without one. Zero disables expiry.
	TTL time.Duration

	// Capacity bounds the item count. Store declines items once the tier is
	// full and Cleanup evicts the weakest items above it. Zero is unbounded.
	Capacity int

	// PromoteAccessCount makes items accessed at least this often promotion
	// candidates. Zero disables the rule.
	PromoteAccessCount int

	// PromoteImportance makes items at least this important promotion
	// candidates. Zero disables the rule.
	PromoteImportance float64

	// PromoteStrength makes items at least this strong promotion candidates.
	// Zero disables the rule.
	PromoteStrength float64

	// PromoteMinAge is how long an item must have lived in the tier before it
	// can be promoted.
	PromoteMinAge time.Duration

	// FailMaintenance makes Cleanup and Decay fail with ErrMaintenanceFault.
	FailMaintenance bool
}

// DefaultPolicy returns the policy for a tier name.
func DefaultPolicy(name memory.TierName) Policy {
	switch name {
	case memory.TierShortTerm:
		return Policy{
			TTL:                24 * time.Hour,
			Capacity:           1000,
			PromoteAccessCount: 3,
			PromoteImportance:  0.7,
		}
	case memory.TierMediumTerm:
		return Policy{
			Capacity:           5000,
			PromoteAccessCount: 10,
			PromoteStrength:    0.6,
			PromoteMinAge:      time.Hour,
		}
	default:
		return Policy{}
	}
}

// promotes reports whether any promotion rule is configured.
func (p Policy) promotes() bool {
	return p.PromoteAccessCount > 0 || p.PromoteImportance > 0 || p.PromoteStrength > 0
}
