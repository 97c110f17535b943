//go:build !atsapi || !cgo

package atsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitizerlab/ats-go/internal/errors"
)

func TestNewWithoutVendorLibrary(t *testing.T) {
	t.Parallel()

	assert.False(t, Available)
	drv, err := New(nil)
	require.ErrorIs(t, err, ErrNotBuilt)
	assert.Nil(t, drv)
	assert.True(t, errors.IsCategory(err, errors.CategoryUnsupported))
}
