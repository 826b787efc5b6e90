package allocator

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Allocation is a single live block handed out by an Allocator. It remains valid until Free is
// called on it or its Allocator is destroyed.
type Allocation struct {
	parent *Allocator

	offset        int
	size          int
	requestedSize int
	userData      any
}

// Offset returns the offset of the allocation within its allocator's region
func (a *Allocation) Offset() int { return a.offset }

// Size returns the size of the block backing this allocation, which is the requested size
// rounded up to a power of two no smaller than the page size
func (a *Allocation) Size() int { return a.size }

// RequestedSize returns the size that was passed to Allocate
func (a *Allocation) RequestedSize() int { return a.requestedSize }

func (a *Allocation) UserData() any { return a.userData }

func (a *Allocation) SetUserData(userData any) {
	a.userData = userData
}

// Bytes returns the memory backing this allocation. The slice aliases the allocator's region and
// must not be used after the allocation is freed.
func (a *Allocation) Bytes() ([]byte, error) {
	parent := a.parent
	if parent == nil {
		return nil, errors.Wrapf(ErrAllocationNotLive, "allocation at offset %d", a.offset)
	}

	parent.mutex.RLock()
	defer parent.mutex.RUnlock()

	if live, ok := parent.live.Get(a.offset); !ok || live != a {
		return nil, errors.Wrapf(ErrAllocationNotLive, "allocation at offset %d", a.offset)
	}

	return parent.metadata.Bytes(a.offset), nil
}

// Free returns this allocation's block to its allocator. Freeing an allocation more than once
// returns an error wrapping ErrAllocationNotLive.
func (a *Allocation) Free() error {
	if a.parent == nil {
		return errors.Wrapf(ErrAllocationNotLive, "allocation at offset %d", a.offset)
	}

	return a.parent.free(a)
}

func (a *Allocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Offset").Int(a.offset)
	json.Name("Size").Int(a.size)
	json.Name("RequestedSize").Int(a.requestedSize)

	if a.userData != nil {
		json.Name("UserData").String(fmt.Sprintf("%v", a.userData))
	}
}
