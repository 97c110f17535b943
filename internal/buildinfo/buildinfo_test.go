package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestContext tests the accessors with set, empty and nil contexts
func TestContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       *Context
		version   string
		buildDate string
	}{
		{"nil context", nil, UnknownValue, UnknownValue},
		{"empty values", NewContext("", ""), UnknownValue, UnknownValue},
		{"set values", NewContext("1.2.0", "2026-10-01"), "1.2.0", "2026-10-01"},
		{"pre-release tag", NewContext("1.2.0-rc.1", ""), "1.2.0-rc.1", UnknownValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.version, tt.ctx.Version())
			assert.Equal(t, tt.buildDate, tt.ctx.BuildDate())
			assert.Equal(t, "atsdaq@"+tt.version, tt.ctx.Release())
		})
	}
}

// TestContextString tests the --version text
func TestContextString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "1.0.0 (built 2026-10-01)", NewContext("1.0.0", "2026-10-01").String())
	assert.Equal(t, "unknown (built unknown)", (*Context)(nil).String())
}
