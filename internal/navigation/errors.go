package navigation

import "errors"

// ErrUnknownCycleStrategy is returned by ParseCycleStrategy for
// unrecognized names.
var ErrUnknownCycleStrategy = errors.New("unknown cycle strategy")
