package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(fname, []byte(content), 0o600))
	return fname
}

func TestLoad_Yaml(t *testing.T) {
	fname := writeFile(t, "soratab.yml", `
coverage: japan
limit: 500
devices:
  sensor-1: "441200000050000"
  sensor-2: "441200000050001"
`)
	s, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "japan", s.Coverage)
	assert.Equal(t, uint32(500), s.Limit)
	assert.Equal(t, "441200000050000", s.Devices["sensor-1"])
}

func TestLoad_Toml(t *testing.T) {
	fname := writeFile(t, "soratab.toml", `
coverage = "global"
limit = 250

[devices]
sensor-1 = "441200000050000"
`)
	s, err := Load(fname)
	require.NoError(t, err)
	assert.Equal(t, "global", s.Coverage)
	assert.Equal(t, uint32(250), s.Limit)
	assert.Equal(t, "441200000050000", s.Devices["sensor-1"])
}

func TestLoad_Missing(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err, "missing settings file is not an error")
	assert.Equal(t, &Settings{}, s)
}

func TestLoad_BadContent(t *testing.T) {
	fname := writeFile(t, "soratab.yml", "coverage: [broken")
	_, err := Load(fname)
	require.Error(t, err)

	fname = writeFile(t, "soratab.yml", "unknown_field: 1")
	_, err = Load(fname)
	require.Error(t, err, "strict yaml rejects unknown fields")

	fname = writeFile(t, "soratab.json", "{}")
	_, err = Load(fname)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown settings format")
}

func TestSettings_ResolveIMSI(t *testing.T) {
	s := &Settings{Devices: map[string]string{"sensor-1": "441200000050000"}}
	assert.Equal(t, "441200000050000", s.ResolveIMSI("sensor-1"))
	assert.Equal(t, "001010000000001", s.ResolveIMSI("001010000000001"), "non-alias passes through")
}
