package codes

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/acquisition"
)

// TestPrintTable tests the tabular listing
func TestPrintTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, false))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+len(acquisition.DefaultTaxonomy().Records()))
	assert.True(t, strings.HasPrefix(lines[0], "CODE"))
	assert.Contains(t, buf.String(), "ApiWaitTimeout")
	assert.Contains(t, buf.String(), "ApiBufferOverflow")
}

// TestPrintYAML tests that the YAML listing decodes back to the table
func TestPrintYAML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, true))

	var records []acquisition.DeviceErrorRecord
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &records))
	assert.Equal(t, acquisition.DefaultTaxonomy().Records(), records)
}

// TestCommand tests the cobra wiring
func TestCommand(t *testing.T) {
	t.Parallel()

	cmd := Command()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--yaml"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "name: ApiFailed")
}
