package main

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

var sizeSuffixes = map[byte]int{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
}

// parseSize reads a positive byte count with an optional binary K, M or G suffix
func parseSize(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, errors.New("empty size")
	}

	multiplier := 1
	if unit, ok := sizeSuffixes[strings.ToUpper(text[len(text)-1:])[0]]; ok {
		multiplier = unit
		text = text[:len(text)-1]
	}

	value, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid size %q", text)
	}
	if value < 0 {
		return 0, errors.Newf("size %d is negative", value)
	}
	if value > math.MaxInt/multiplier {
		return 0, errors.Newf("size %q is too large", text)
	}

	return value * multiplier, nil
}

// sizeValue is a pflag.Value accepting sizes in the format read by parseSize
type sizeValue struct {
	target *int
}

func newSizeValue(target *int) *sizeValue {
	return &sizeValue{target: target}
}

func (v *sizeValue) String() string {
	if v.target == nil {
		return "0"
	}
	return strconv.Itoa(*v.target)
}

func (v *sizeValue) Set(text string) error {
	size, err := parseSize(text)
	if err != nil {
		return err
	}
	*v.target = size
	return nil
}

func (v *sizeValue) Type() string {
	return "size"
}
