// Package epgpersist atomically snapshots and restores the EPG engine's
// on-disk state: services.json, clocks.json and schedules.json under the
// configured cache directory (spec.md §4.5), grounded on
// internal/catalog/catalog.go's temp-file-then-rename Save and
// internal/gracenote/gracenote.go's missing-file-is-not-fatal Load.
package epgpersist

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const (
	servicesFile  = "services.json"
	clocksFile    = "clocks.json"
	schedulesFile = "schedules.json"
)

// Store is a cache-directory-backed persistence handle for the three EPG
// snapshot files.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. dir is neither created nor validated
// here or by the config loader; saving fails if the directory is missing.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// saveJSON marshals v and writes it to path via create-temp, write, chmod,
// rename, so a crash never leaves a half-written snapshot on disk.
func saveJSON(dir, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".epg-*.json.tmp")
	if err != nil {
		return fmt.Errorf("epgpersist: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("epgpersist: write: %w", writeErr)
		}
		return fmt.Errorf("epgpersist: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("epgpersist: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("epgpersist: rename: %w", err)
	}
	return nil
}

// loadJSON unmarshals the file at path into v. A missing file is not an error: it
// leaves v untouched and returns nil, matching gracenote's "no cache yet"
// convention, since the EPG engine must boot cleanly on an empty cache dir.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("epgpersist: %s not found, starting empty", path)
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// SaveServices persists the full set of known services.
func (s *Store) SaveServices(services map[tunertypes.ServiceTriple]epgmodel.Service) error {
	list := make([]epgmodel.Service, 0, len(services))
	for _, sv := range services {
		list = append(list, sv)
	}
	return saveJSON(s.dir, s.path(servicesFile), list)
}

// LoadServices restores services previously saved by SaveServices.
func (s *Store) LoadServices() (map[tunertypes.ServiceTriple]epgmodel.Service, error) {
	var list []epgmodel.Service
	if err := loadJSON(s.path(servicesFile), &list); err != nil {
		return nil, err
	}
	out := make(map[tunertypes.ServiceTriple]epgmodel.Service, len(list))
	for _, sv := range list {
		out[sv.Triple()] = sv
	}
	return out, nil
}

// SaveClocks persists the last-synced clock per service.
func (s *Store) SaveClocks(clocks map[tunertypes.ServiceTriple]epgmodel.Clock) error {
	list := make([]epgmodel.SyncClock, 0, len(clocks))
	for triple, c := range clocks {
		list = append(list, epgmodel.SyncClock{NetworkID: triple.NetworkID, TSID: triple.TSID, ServiceID: triple.ServiceID, Clock: c})
	}
	return saveJSON(s.dir, s.path(clocksFile), list)
}

// LoadClocks restores clocks previously saved by SaveClocks.
func (s *Store) LoadClocks() (map[tunertypes.ServiceTriple]epgmodel.Clock, error) {
	var list []epgmodel.SyncClock
	if err := loadJSON(s.path(clocksFile), &list); err != nil {
		return nil, err
	}
	out := make(map[tunertypes.ServiceTriple]epgmodel.Clock, len(list))
	for _, sc := range list {
		out[sc.Triple()] = sc.Clock
	}
	return out, nil
}

// SaveSchedules persists the full set of per-service schedule matrices.
func (s *Store) SaveSchedules(schedules map[tunertypes.ServiceTriple]*epgmodel.Schedule) error {
	list := make([]*epgmodel.Schedule, 0, len(schedules))
	for _, sc := range schedules {
		list = append(list, sc)
	}
	return saveJSON(s.dir, s.path(schedulesFile), list)
}

// LoadSchedules restores schedules previously saved by SaveSchedules.
func (s *Store) LoadSchedules() (map[tunertypes.ServiceTriple]*epgmodel.Schedule, error) {
	var list []*epgmodel.Schedule
	if err := loadJSON(s.path(schedulesFile), &list); err != nil {
		return nil, err
	}
	out := make(map[tunertypes.ServiceTriple]*epgmodel.Schedule, len(list))
	for _, sc := range list {
		out[sc.ServiceTriple] = sc
	}
	return out, nil
}
