package memory

import "errors"

// ErrNilItem is returned when a nil item is passed to a tier.
var ErrNilItem = errors.New("nil memory item")
