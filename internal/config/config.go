// Package config loads the YAML configuration file describing the EPG
// cache directory, the three EPG tool commands, and the configured
// channels/tuners, as specified in SPEC_FULL.md §4.6 and generalized from
// the teacher's env-var Load idiom (defaults applied post-decode) into a
// YAML-sourced one.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const defaultEpgCacheDir = "./epg"

// Tools names the three external EPG collection commands.
type Tools struct {
	ScanServices string `yaml:"scanServices"`
	SyncClock    string `yaml:"syncClock"`
	CollectEits  string `yaml:"collectEits"`
}

// Config is the decoded YAML configuration document.
type Config struct {
	EpgCacheDir string                     `yaml:"epgCacheDir"`
	Tools       Tools                      `yaml:"tools"`
	Channels    []tunertypes.ChannelConfig `yaml:"channels"`
	Tuners      []tunertypes.TunerConfig   `yaml:"tuners"`
}

// Load reads and decodes path, applying defaults to any field left zero.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.EpgCacheDir == "" {
		c.EpgCacheDir = defaultEpgCacheDir
	}
}

// EnabledChannels returns Channels with disabled entries filtered out,
// matching Epg::new's `filter(|config| !config.disabled)`.
func (c *Config) EnabledChannels() []tunertypes.ChannelConfig {
	var out []tunertypes.ChannelConfig
	for _, ch := range c.Channels {
		if ch.Disabled {
			continue
		}
		out = append(out, ch)
	}
	return out
}
