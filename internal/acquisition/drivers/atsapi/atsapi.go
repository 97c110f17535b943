// Package atsapi binds acquisition.Driver to the vendor ATSApi library.
//
// The binding needs cgo and the library headers, so it is only compiled
// with the atsapi build tag:
//
//	CGO_ENABLED=1 go build -tags atsapi ./...
//
// Without the tag New returns ErrNotBuilt. Buffers handed to
// PostAsyncBuffer stay with the board after the call returns, so they must
// come from the locked allocator of the memory package, never the Go heap.
package atsapi

import (
	"github.com/digitizerlab/ats-go/internal/errors"
)

// ErrNotBuilt is returned by New when the binary was built without the
// vendor library
var ErrNotBuilt = errors.NewStd("atsapi driver not built: rebuild with CGO_ENABLED=1 and -tags atsapi")

func notBuilt() error {
	return errors.New(ErrNotBuilt).
		Component("driver").
		Category(errors.CategoryUnsupported).
		Context("driver", "atsapi").
		Build()
}
