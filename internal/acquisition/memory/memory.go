// Package memory allocates page-aligned, page-locked host memory that a
// board can fill by DMA.
//
// New returns the allocator of the host platform. Platforms without the
// primitives return an allocator whose Supported method reports false and
// whose Alloc fails with ErrUnsupportedPlatform. NewHeap returns an
// allocator of ordinary page-aligned Go memory for simulated boards.
package memory

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/digitizerlab/ats-go/internal/errors"
)

// ErrUnsupportedPlatform is returned where pinned allocation is unavailable
var ErrUnsupportedPlatform = errors.NewStd("pinned memory is not supported on this platform")

// Allocator provides regions of host memory for DMA transfers
type Allocator interface {
	// Supported reports whether Alloc can succeed on this platform
	Supported() bool
	// Alloc returns a zeroed, page-aligned, read-write region of exactly size bytes
	Alloc(size int) ([]byte, error)
	// Free releases a region returned by Alloc
	Free(buf []byte) error
}

// New returns the pinned allocator of the host platform
func New() Allocator {
	return newPlatformAllocator()
}

// PageSize returns the host memory page size
func PageSize() int {
	return os.Getpagesize()
}

// IsAligned reports whether buf starts on a page boundary
func IsAligned(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	return uintptr(unsafe.Pointer(&buf[0]))%uintptr(PageSize()) == 0
}

func roundUp(size, page int) int {
	return (size + page - 1) / page * page
}

func checkSize(size int) error {
	if size <= 0 {
		return errors.Newf("invalid region size %d", size).
			Component("memory").
			Category(errors.CategoryValidation).
			Context("size", size).
			Build()
	}
	return nil
}

func osError(op string, size int, err error) error {
	return errors.New(fmt.Errorf("%s %d bytes: %w", op, size, err)).
		Component("memory").
		Category(errors.CategorySystem).
		Context("operation", op).
		Context("size", size).
		Build()
}

// heapAllocator hands out page-aligned Go memory. The memory is not locked.
type heapAllocator struct{}

// NewHeap returns an allocator of page-aligned, unlocked Go memory
func NewHeap() Allocator {
	return heapAllocator{}
}

func (heapAllocator) Supported() bool { return true }

func (heapAllocator) Alloc(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	page := PageSize()
	raw := make([]byte, size+page)
	offset := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(page)); rem != 0 {
		offset = page - rem
	}
	return raw[offset : offset+size : offset+size], nil
}

func (heapAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return errors.Newf("free of empty region").
			Component("memory").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
