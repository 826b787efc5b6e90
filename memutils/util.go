package memutils

import (
	"math/bits"

	"github.com/cockroachdb/errors"
)

type Number interface {
	~int | ~uint
}

func CheckPow2[T Number](number T, name string) error {
	if number == 0 || number&(number-1) != 0 {
		return errors.Wrapf(PowerOfTwoError, "%s is %d", name, number)
	}
	return nil
}

// Log2Ceil returns the smallest exponent e such that 1<<e >= value. Values below 2 return 0.
func Log2Ceil(value int) int {
	if value < 2 {
		return 0
	}
	return bits.Len(uint(value - 1))
}

// Log2Floor returns the index of the most significant set bit of value. The value must be positive.
func Log2Floor(value int) int {
	return bits.Len(uint(value)) - 1
}

func IsAligned(value int, alignment uint) bool {
	return value&int(alignment-1) == 0
}
