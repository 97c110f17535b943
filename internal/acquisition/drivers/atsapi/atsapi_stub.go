//go:build !atsapi || !cgo

package atsapi

import (
	"github.com/digitizerlab/ats-go/internal/acquisition"
	"github.com/digitizerlab/ats-go/internal/logger"
)

// Available reports whether the vendor binding is compiled in
const Available = false

// New always fails in builds without the vendor library
func New(logger.Logger) (acquisition.Driver, error) {
	return nil, notBuilt()
}
