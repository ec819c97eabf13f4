package epgmodel

import (
	"log"
	"time"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const (
	numTables   = 32
	numSegments = 32
	numSections = 8
)

// Section is the stored form of one EIT section: just the bits a schedule
// needs to keep (version + chronological events), matching
// original_source/src/epg.rs's EpgSection / `From<EitSection> for EpgSection`.
type Section struct {
	Version uint8      `json:"version"`
	Events  []EitEvent `json:"events"`
}

func sectionFromEit(s EitSection) Section {
	return Section{Version: s.VersionNumber, Events: s.Events}
}

// Segment is a fixed array of 8 optional sections (3 hours of schedule).
type Segment struct {
	Sections [numSections]*Section `json:"sections"`
}

// update stores section at its section index and clears every slot past the
// segment's current last-section index, expressing section-count shrinkage
// across a version bump (spec.md §4.1).
func (seg *Segment) update(s EitSection) {
	last := s.LastSectionIndex()
	for i := last + 1; i < numSections; i++ {
		seg.Sections[i] = nil
	}
	sec := sectionFromEit(s)
	seg.Sections[s.SectionIndex()] = &sec
}

func (seg *Segment) collectOvernightEvents(midnight time.Time, events []EitEvent) []EitEvent {
	for _, sec := range seg.Sections {
		if sec == nil {
			continue
		}
		for _, ev := range sec.Events {
			if ev.IsOvernight(midnight) {
				events = append(events, ev)
			}
		}
	}
	return events
}

func (seg *Segment) collectPrograms(triple tunertypes.ServiceTriple, programs map[tunertypes.EventQuad]*ProgramModel) {
	for _, sec := range seg.Sections {
		if sec == nil {
			continue
		}
		for _, ev := range sec.Events {
			applyEvent(triple, ev, programs)
		}
	}
}

// Table is a fixed array of 32 segments (4 days of schedule).
type Table struct {
	Segments [numSegments]Segment `json:"segments"`
}

func (t *Table) update(s EitSection) {
	t.Segments[s.SegmentIndex()].update(s)
}

func (t *Table) collectOvernightEvents(midnight time.Time, events []EitEvent) []EitEvent {
	for i := range t.Segments {
		events = t.Segments[i].collectOvernightEvents(midnight, events)
	}
	return events
}

func (t *Table) collectPrograms(triple tunertypes.ServiceTriple, programs map[tunertypes.EventQuad]*ProgramModel) {
	for i := range t.Segments {
		t.Segments[i].collectPrograms(triple, programs)
	}
}

// Schedule is the per-service EIT reassembly matrix: 32 lazily-allocated
// tables, a snapshot of overnight events, and the last-touched timestamp.
type Schedule struct {
	ServiceTriple   tunertypes.ServiceTriple `json:"serviceTriple"`
	Tables          [numTables]*Table        `json:"tables"`
	OvernightEvents []EitEvent               `json:"overnightEvents"`
	UpdatedAt       time.Time                `json:"updatedAt"`
}

// NewSchedule creates an empty schedule for triple, timestamped now.
func NewSchedule(triple tunertypes.ServiceTriple, now time.Time) *Schedule {
	return &Schedule{
		ServiceTriple: triple,
		UpdatedAt:     now,
	}
}

// Update routes section to its table (allocating on first use), then to the
// segment/section within it.
func (s *Schedule) Update(section EitSection) {
	i := section.TableIndex()
	if i < 0 || i >= numTables {
		return
	}
	if s.Tables[i] == nil {
		s.Tables[i] = &Table{}
	}
	s.Tables[i].update(section)
}

// SaveOvernightEvents walks every table/segment/section collecting events
// that strictly cross midnight, and replaces OvernightEvents wholesale.
// Must be called before a later full-table overwrite so those events are
// not lost (spec.md §4.1).
func (s *Schedule) SaveOvernightEvents(midnight time.Time) {
	var events []EitEvent
	for _, t := range s.Tables {
		if t == nil {
			continue
		}
		events = t.collectOvernightEvents(midnight, events)
	}
	log.Printf("schedule#%s: saved %d overnight events", s.ServiceTriple, len(events))
	s.OvernightEvents = events
}

// CollectPrograms emits one ProgramModel per known event into programs,
// overnight events first (seeding), then every section's events in table
// order then segment order then section order — later writes win
// (spec.md §4.1, §9).
func (s *Schedule) CollectPrograms(programs map[tunertypes.EventQuad]*ProgramModel) {
	triple := s.ServiceTriple
	for _, ev := range s.OvernightEvents {
		applyEvent(triple, ev, programs)
	}
	for _, t := range s.Tables {
		if t == nil {
			continue
		}
		t.collectPrograms(triple, programs)
	}
}
