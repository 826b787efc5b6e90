package memutils

import "github.com/cockroachdb/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

var (
	// ErrInvalidSize is returned when an allocation is requested for fewer than one byte
	ErrInvalidSize = errors.New("allocation size must be at least one byte")
	// ErrSizeTooLarge is returned when an allocation is requested that is larger than the
	// largest block the allocator can produce. Retrying will never succeed.
	ErrSizeTooLarge = errors.New("allocation size exceeds the largest block")
	// ErrExhausted is returned when no free block large enough to satisfy an allocation exists.
	// Freeing memory may allow a retry to succeed.
	ErrExhausted = errors.New("no free block of sufficient size")
	// ErrInvalidConfig is returned when an allocator is created with block orders it cannot support
	ErrInvalidConfig = errors.New("invalid allocator configuration")
)
