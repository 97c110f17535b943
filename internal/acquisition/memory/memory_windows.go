//go:build windows

package memory

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// lockedAllocator commits virtual memory and locks it into the working set
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

	addr, err := windows.VirtualAlloc(0, uintptr(length), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, osError("VirtualAlloc", length, err)
	}
	if err := windows.VirtualLock(addr, uintptr(length)); err != nil {
		_ = windows.VirtualFree(addr, 0, windows.MEM_RELEASE)
		return nil, osError("VirtualLock", length, err)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), length) //nolint:govet // address returned by VirtualAlloc
	return mem[:size], nil
}

func (lockedAllocator) Free(buf []byte) error {
	if len(buf) == 0 {
		return checkSize(0)
	}
	addr := uintptr(unsafe.Pointer(&buf[0]))
	if err := windows.VirtualUnlock(addr, uintptr(cap(buf))); err != nil {
		return osError("VirtualUnlock", cap(buf), err)
	}
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return osError("VirtualFree", cap(buf), err)
	}
	return nil
}
