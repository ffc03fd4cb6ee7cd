package replay

import "errors"

// ErrInvalidOrdering is returned when events are not in strictly increasing sequence order.
var ErrInvalidOrdering = errors.New("events are not in sequence order")

// ErrInvalidCall is returned when a call script line cannot be decoded.
var ErrInvalidCall = errors.New("invalid call")
