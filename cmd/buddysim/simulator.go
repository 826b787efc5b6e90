package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/allocator"
	"golang.org/x/exp/slog"
)

// simulator replays script commands against a single allocator, tracking allocations by name
type simulator struct {
	allocator *allocator.Allocator
	named     map[string]*allocator.Allocation
	out       io.Writer
	json      bool
}

func newSimulator(logger *slog.Logger, options allocator.CreateOptions, out io.Writer, json bool) (*simulator, error) {
	a, err := allocator.New(logger, options)
	if err != nil {
		return nil, err
	}

	return &simulator{
		allocator: a,
		named:     make(map[string]*allocator.Allocation),
		out:       out,
		json:      json,
	}, nil
}

// Run executes every command in script. Malformed commands stop the run with an error naming
// the line; allocation failures are reported and the run continues.
func (s *simulator) Run(script io.Reader) error {
	scanner := bufio.NewScanner(script)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := s.exec(strings.Fields(line)); err != nil {
			return errors.Wrapf(err, "line %d", lineNumber)
		}
	}

	return scanner.Err()
}

func (s *simulator) exec(fields []string) error {
	switch fields[0] {
	case "alloc":
		if len(fields) != 3 {
			return errors.New("usage: alloc <name> <size>")
		}
		size, err := parseSize(fields[2])
		if err != nil {
			return err
		}
		return s.alloc(fields[1], size)
	case "free":
		if len(fields) != 2 {
			return errors.New("usage: free <name>")
		}
		return s.free(fields[1])
	case "dump":
		return s.allocator.Dump(s.out)
	case "stats":
		return s.stats()
	case "defrag":
		return s.defrag()
	default:
		return errors.Newf("unknown command %q", fields[0])
	}
}

func (s *simulator) alloc(name string, size int) error {
	if _, exists := s.named[name]; exists {
		return errors.Newf("%s is already allocated", name)
	}

	alloc, err := s.allocator.Allocate(size, name)
	if err != nil {
		_, err = fmt.Fprintf(s.out, "%s: allocation of %d bytes failed: %v\n", name, size, err)
		return err
	}

	s.named[name] = alloc
	_, err = fmt.Fprintf(s.out, "%s: offset %d size %d\n", name, alloc.Offset(), alloc.Size())
	return err
}

func (s *simulator) free(name string) error {
	alloc, ok := s.named[name]
	if !ok {
		return errors.Newf("%s is not allocated", name)
	}

	if err := alloc.Free(); err != nil {
		return err
	}
	delete(s.named, name)

	_, err := fmt.Fprintf(s.out, "%s: freed\n", name)
	return err
}

func (s *simulator) defrag() error {
	stats, err := s.allocator.Defragment(allocator.DefragmentationInfo{})
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(s.out, "defrag: moved %d allocations (%d bytes)\n", stats.AllocationsMoved, stats.BytesMoved)
	return err
}

func (s *simulator) stats() error {
	if s.json {
		_, err := fmt.Fprintln(s.out, s.allocator.BuildStatsString(true))
		return err
	}

	stats := s.allocator.Statistics()
	_, err := fmt.Fprintf(s.out, "region %d bytes, %d allocations, %d bytes allocated, %d bytes free\n",
		stats.RegionBytes, stats.AllocationCount, stats.AllocationBytes, stats.FreeBytes())
	return err
}

// Close destroys the allocator. Allocations the script never freed are logged by the allocator
// and are not treated as a failure.
func (s *simulator) Close() error {
	err := s.allocator.Destroy()
	if errors.Is(err, allocator.ErrUnreleasedAllocations) {
		_, err = fmt.Fprintf(s.out, "%d allocations were never freed\n", len(s.named))
	}
	s.named = nil
	return err
}
