package allocator

// AllocateMemoryCallback is called after a block has been handed out by an Allocator
type AllocateMemoryCallback func(
	allocator *Allocator,
	offset int,
	size int,
	userData interface{},
)

// FreeMemoryCallback is called after a block has been returned to an Allocator
type FreeMemoryCallback func(
	allocator *Allocator,
	offset int,
	size int,
	userData interface{},
)

// MemoryCallbackOptions is an optional set of callbacks an Allocator executes as blocks are
// allocated and freed. The callbacks run while the allocator's lock is held and must not call
// back into the allocator.
type MemoryCallbackOptions struct {
	Allocate AllocateMemoryCallback
	Free     FreeMemoryCallback
	UserData interface{}
}

type memoryCallbacks struct {
	Callbacks *MemoryCallbackOptions
	Allocator *Allocator
}

func (c *memoryCallbacks) Allocate(offset int, size int) {
	if c.Callbacks != nil && c.Callbacks.Allocate != nil {
		c.Callbacks.Allocate(c.Allocator, offset, size, c.Callbacks.UserData)
	}
}

func (c *memoryCallbacks) Free(offset int, size int) {
	if c.Callbacks != nil && c.Callbacks.Free != nil {
		c.Callbacks.Free(c.Allocator, offset, size, c.Callbacks.UserData)
	}
}
