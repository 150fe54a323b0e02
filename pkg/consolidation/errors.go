package consolidation

import (
	"errors"
	"fmt"
)

var (
	// ErrSkip aborts a transaction without counting it as a failure, e.g.
	// when the target tier declines the item.
	ErrSkip = errors.New("consolidation skipped")

	// ErrSourceGone means the item left the source tier before it could be
	// removed, so another consolidation already moved it.
	ErrSourceGone = errors.New("item no longer in source tier")
)

// Skip returns an ErrSkip carrying reason.
func Skip(reason string) error {
	return fmt.Errorf("%w: %s", ErrSkip, reason)
}

// IsSkip reports whether err is a skip signal.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}
