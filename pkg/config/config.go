// Package config loads the optional soratab settings file with query
// defaults and device aliases. Yaml and toml formats are supported, picked
// by the file extension.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings is the content of a soratab settings file. All fields are
// optional; command line flags win over file values.
type Settings struct {
	Coverage string            `yaml:"coverage" toml:"coverage"` // default coverage, global or japan
	Limit    uint32            `yaml:"limit" toml:"limit"`       // default data entries limit
	Devices  map[string]string `yaml:"devices" toml:"devices"`   // device name -> imsi aliases
}

// Load reads and parses a settings file. A missing file is not an error and
// yields empty settings, so callers can always point at the default path.
func Load(fname string) (*Settings, error) {
	data, err := os.ReadFile(fname) // nolint gosec // path comes from the user running the cli
	if err != nil {
		if os.IsNotExist(err) {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("can't read settings file %s: %w", fname, err)
	}

	res := &Settings{}
	switch {
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || !strings.Contains(fname, "."):
		yamlDecoder := yaml.NewDecoder(bytes.NewReader(data))
		yamlDecoder.KnownFields(true) // strict mode, fail on unknown fields
		if err = yamlDecoder.Decode(res); err != nil {
			return nil, fmt.Errorf("can't unmarshal yaml settings %s: %w", fname, err)
		}
	case strings.HasSuffix(fname, ".toml"):
		if err = toml.Unmarshal(data, res); err != nil {
			return nil, fmt.Errorf("can't unmarshal toml settings %s: %w", fname, err)
		}
	default:
		return nil, fmt.Errorf("unknown settings format %s", fname)
	}

	return res, nil
}

// ResolveIMSI maps a device alias to its imsi. Anything not matching an
// alias is assumed to be an imsi already and returned as is.
func (s *Settings) ResolveIMSI(device string) string {
	if imsi, ok := s.Devices[device]; ok {
		return imsi
	}
	return device
}
