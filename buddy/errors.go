package buddy

import "github.com/vkngwrapper/buddy/memutils"

// Re-exported so callers of this package do not need to import memutils to inspect failures
var (
	ErrInvalidSize   = memutils.ErrInvalidSize
	ErrSizeTooLarge  = memutils.ErrSizeTooLarge
	ErrExhausted     = memutils.ErrExhausted
	ErrInvalidConfig = memutils.ErrInvalidConfig
)
