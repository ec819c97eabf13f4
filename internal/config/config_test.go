package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mirakctl.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoad_DecodesChannelsAndTuners(t *testing.T) {
	path := writeConfig(t, `
epgCacheDir: /var/lib/mirakctl/epg
tools:
  scanServices: scan-services
  syncClock: sync-clock
  collectEits: collect-eits
channels:
  - name: ch1
    type: GR
    channel: "27"
  - name: ch2
    type: BS
    channel: "101"
    disabled: true
tuners:
  - name: tuner0
    channelTypes: [GR, BS]
    command: "recpt1 --device /dev/px4video2 {{.Channel}} - -"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EpgCacheDir != "/var/lib/mirakctl/epg" {
		t.Errorf("EpgCacheDir = %q", cfg.EpgCacheDir)
	}
	if cfg.Tools.ScanServices != "scan-services" || cfg.Tools.SyncClock != "sync-clock" || cfg.Tools.CollectEits != "collect-eits" {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(cfg.Channels))
	}
	if len(cfg.Tuners) != 1 || cfg.Tuners[0].Name != "tuner0" {
		t.Errorf("Tuners = %+v", cfg.Tuners)
	}
}

func TestLoad_AppliesEpgCacheDirDefault(t *testing.T) {
	path := writeConfig(t, `
channels: []
tuners: []
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EpgCacheDir != defaultEpgCacheDir {
		t.Errorf("EpgCacheDir = %q, want default %q", cfg.EpgCacheDir, defaultEpgCacheDir)
	}
}

func TestLoad_MissingFileIsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnabledChannels_FiltersDisabled(t *testing.T) {
	path := writeConfig(t, `
channels:
  - name: ch1
    type: GR
    channel: "27"
  - name: ch2
    type: BS
    channel: "101"
    disabled: true
tuners: []
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	enabled := cfg.EnabledChannels()
	if len(enabled) != 1 || enabled[0].Name != "ch1" {
		t.Errorf("EnabledChannels() = %+v", enabled)
	}
}
