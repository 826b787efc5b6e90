package buddy

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

const (
	// DefaultMinOrder is the page order used by DefaultConfig: 4KiB pages
	DefaultMinOrder = 12
	// DefaultMaxOrder is the region order used by DefaultConfig: a 1MiB region
	DefaultMaxOrder = 20

	// MaxOrderLimit is the largest region order an Allocator will accept
	MaxOrderLimit = 30
)

// Config fixes the range of block sizes an Allocator manages. The smallest block (one page)
// is 2^MinOrder bytes and the region, which is also the largest block, is 2^MaxOrder bytes.
type Config struct {
	MinOrder int
	MaxOrder int
}

// DefaultConfig returns a configuration with 4KiB pages and a 1MiB region
func DefaultConfig() Config {
	return Config{
		MinOrder: DefaultMinOrder,
		MaxOrder: DefaultMaxOrder,
	}
}

// ConfigFromSizes builds a Config from a page size and region size in bytes. Both must be
// powers of two and the region may not be smaller than a page.
func ConfigFromSizes(pageSize, regionSize int) (Config, error) {
	if err := memutils.CheckPow2(pageSize, "pageSize"); err != nil {
		return Config{}, err
	}
	if err := memutils.CheckPow2(regionSize, "regionSize"); err != nil {
		return Config{}, err
	}

	config := Config{
		MinOrder: memutils.Log2Floor(pageSize),
		MaxOrder: memutils.Log2Floor(regionSize),
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if c.MinOrder < 0 {
		return errors.Wrapf(ErrInvalidConfig, "MinOrder is %d", c.MinOrder)
	}
	if c.MaxOrder < c.MinOrder {
		return errors.Wrapf(ErrInvalidConfig, "MaxOrder %d is smaller than MinOrder %d", c.MaxOrder, c.MinOrder)
	}
	if c.MaxOrder > MaxOrderLimit {
		return errors.Wrapf(ErrInvalidConfig, "MaxOrder %d exceeds the limit of %d", c.MaxOrder, MaxOrderLimit)
	}
	return nil
}

// PageSize is the size in bytes of the smallest block
func (c Config) PageSize() int {
	return 1 << c.MinOrder
}

// RegionSize is the size in bytes of the managed region
func (c Config) RegionSize() int {
	return 1 << c.MaxOrder
}

// PageCount is the number of pages in the region
func (c Config) PageCount() int {
	return 1 << (c.MaxOrder - c.MinOrder)
}

// OrderCount is the number of distinct block sizes, MinOrder through MaxOrder inclusive
func (c Config) OrderCount() int {
	return c.MaxOrder - c.MinOrder + 1
}
