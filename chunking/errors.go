package chunking

import "errors"

// ErrInvalidParameters indicates an unusable size/overlap combination.
var ErrInvalidParameters = errors.New("invalid chunking parameters")
