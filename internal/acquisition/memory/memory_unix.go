//go:build unix

package memory

import (
	"golang.org/x/sys/unix"
)

// lockedAllocator maps anonymous memory and locks it into RAM
type lockedAllocator struct{}

func newPlatformAllocator() Allocator {
	return lockedAllocator{}
}

func (lockedAllocator) Supported() bool { return true }

func (lockedAllocator) Alloc(size int) ([]byte, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	length := roundUp(size, PageSize())

	mem, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, osError("mmap", length, err)
	}
	if err := unix.Mlock(mem); err != nil {
		_ = unix.Munmap(mem)
		return nil, osError("mlock", length, err)
	}
	return mem[:size], nil
}

func (lockedAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return checkSize(0)
	}
	mem := buf[:cap(buf)]
	if err := unix.Munlock(mem); err != nil {
		return osError("munlock", len(mem), err)
	}
	if err := unix.Munmap(mem); err != nil {
		return osError("munmap", len(mem), err)
	}
	return nil
}
