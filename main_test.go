package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"beacon-tracker.klederson.com/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCommandPrintsDefaults(t *testing.T) {
	out, err := runCmd(t, "config")
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, config.Default(), got)
}

func TestConfigCommandAppliesFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
targets: [MsgOne, MsgTwo]
min_sample_interval: 250ms
alerts:
  commands:
    MsgOne: paplay one.wav
`), 0o644))

	out, err := runCmd(t, "config", "--config", path, "--strategy", "linear", "--near", "70", "--adapter", "hci1")
	require.NoError(t, err)

	var got config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"MsgOne", "MsgTwo"}, got.Targets)
	assert.Equal(t, config.StrategyLinear, got.Strategy)
	assert.Equal(t, 70.0, got.NearThreshold)
	assert.Equal(t, "hci1", got.Adapter)
	assert.Equal(t, 250*time.Millisecond, got.MinSampleInterval)
	assert.Equal(t, "paplay one.wav", got.Alerts.Commands["MsgOne"])
}

func TestConfigCommandRejectsInvalid(t *testing.T) {
	_, err := runCmd(t, "config", "--strategy", "triangulate")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
