package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/digitizerlab/ats-go/internal/conf"
)

func loadDefaults(t *testing.T) *conf.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, conf.WriteDefaultConfig(path))
	settings, err := conf.Load(viper.New(), path)
	require.NoError(t, err)
	return settings
}

// TestPrint tests the registry snapshot output
func TestPrint(t *testing.T) {
	t.Parallel()

	settings := loadDefaults(t)
	settings.Acquisition.Mode = "ts"
	settings.Channels.A.Range = 0.4

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, settings, false))

	var views []FieldView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &views))
	byName := make(map[string]FieldView, len(views))
	for _, v := range views {
		byName[v.Name] = v
	}

	assert.Equal(t, "clock_source", views[0].Name)
	assert.Equal(t, "0x24", byName["sample_rate"].Code)
	assert.Equal(t, "0x7", byName["range1"].Code)
	assert.Equal(t, "0x400", byName["mode"].Code)
	assert.Equal(t, "ts", byName["mode"].Value)
	assert.Empty(t, byName["mode"].Accepts)
}

// TestPrintDescribe tests that --describe adds the accepted values
func TestPrintDescribe(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Print(&buf, loadDefaults(t), true))
	assert.Contains(t, buf.String(), "accepts:")
}

// TestPrintRejectsInvalidSettings tests that invalid values are reported
func TestPrintRejectsInvalidSettings(t *testing.T) {
	t.Parallel()

	settings := loadDefaults(t)
	settings.Clock.Edge = "sideways"

	var buf bytes.Buffer
	err := Print(&buf, settings, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clock_edge")
}

// TestInitCommand tests writing the default file
func TestInitCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "atsdaq", "config.yaml")
	cmd := Command(&conf.Settings{})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{InitCommandName, path})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), path)
	_, err := os.Stat(path)
	require.NoError(t, err)
}
