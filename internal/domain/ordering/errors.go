package ordering

import "errors"

// ErrRankNotHeld indicates a move referenced a rank that no member holds.
var ErrRankNotHeld = errors.New("rank not held")
