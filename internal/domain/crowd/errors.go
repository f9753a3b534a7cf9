package crowd

import "errors"

// ErrInvalidParams marks crowd tuning that breaks the threshold ordering or
// the value ranges.
var ErrInvalidParams = errors.New("invalid crowd params")
