package allocator

import (
	"fmt"
	"io"
	"strings"

	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/buddy/buddy"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags uint32

const (
	// CreateExternallySynchronized ensures that this allocator and all allocations created from it
	// will not be synchronized internally. The consumer must guarantee they are used from only one
	// goroutine at a time or are synchronized by some other mechanism, but performance may improve
	// because internal mutexes are not used.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateValidateOperations causes the allocator to run a full consistency check of its
	// metadata after every allocation and free. This is very slow and is intended for tests and
	// diagnosing corruption.
	CreateValidateOperations
)

var createFlagsMapping = map[CreateFlags]string{
	CreateExternallySynchronized: "CreateExternallySynchronized",
	CreateValidateOperations:     "CreateValidateOperations",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = fmt.Sprintf("CreateFlags(0x%x)", uint32(bit))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// defaultLiveAllocationCapacity sizes the live allocation table when it is created. It grows
	// as needed.
	defaultLiveAllocationCapacity = 64
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags

	// MinOrder is the exponent of the smallest block size. MinOrder and MaxOrder are both
	// ignored, and buddy.DefaultConfig used instead, when MaxOrder is 0.
	MinOrder int
	// MaxOrder is the exponent of the region size, which is also the largest block size
	MaxOrder int

	// MemoryCallbackOptions is an optional set of callbacks that will be executed when blocks
	// are allocated and freed.
	MemoryCallbackOptions *MemoryCallbackOptions
}

func (o CreateOptions) config() buddy.Config {
	if o.MaxOrder == 0 {
		return buddy.DefaultConfig()
	}

	return buddy.Config{
		MinOrder: o.MinOrder,
		MaxOrder: o.MaxOrder,
	}
}

// New creates an Allocator managing a freshly created region. logger receives debug output for
// every operation; if it is nil, output is discarded.
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	config := options.config()
	metadata, err := buddy.New(config)
	if err != nil {
		return nil, err
	}

	a := &Allocator{
		logger:   logger,
		flags:    options.Flags,
		metadata: metadata,
		live:     swiss.NewMap[int, *Allocation](defaultLiveAllocationCapacity),
	}
	a.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0
	a.callbacks = memoryCallbacks{
		Callbacks: options.MemoryCallbackOptions,
		Allocator: a,
	}

	logger.Debug("Allocator::New",
		slog.Int("MinOrder", config.MinOrder),
		slog.Int("MaxOrder", config.MaxOrder),
		slog.String("Flags", options.Flags.String()),
	)

	return a, nil
}
