package tier

import "errors"

// ErrMaintenanceFault is returned by Cleanup and Decay on tiers configured
// with FailMaintenance.
var ErrMaintenanceFault = errors.New("tier maintenance fault injected")

// ErrItemNotFound is returned by Apply when the item is not in the tier.
var ErrItemNotFound = errors.New("item not found")

// ErrUnknownSignal is returned by Apply for signal kinds it does not know.
var ErrUnknownSignal = errors.New("unknown signal")

// ErrNoStrength is returned by strength signals on tiers without a model.
var ErrNoStrength = errors.New("tier does not track strength")
