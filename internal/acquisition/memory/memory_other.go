//go:build !unix && !windows

package memory

type unsupportedAllocator struct{}

func newPlatformAllocator() Allocator {
	return unsupportedAllocator{}
}

func (unsupportedAllocator) Supported() bool { return false }

func (unsupportedAllocator) Alloc(int) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}

func (unsupportedAllocator) Free([]byte) error {
	return ErrUnsupportedPlatform
}
