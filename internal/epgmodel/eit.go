// Package epgmodel holds the EIT value types and the sparse 32-table ×
// 32-segment × 8-section schedule matrix that reassembles EIT sections into
// a per-service program schedule, as specified in spec.md §3/§4.1 and
// grounded on original_source/src/epg.rs's EpgSchedule/EpgTable/EpgSegment/
// EpgSection/EitSection/EitEvent.
package epgmodel

import (
	"time"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// EitSection is one decoded EIT section, as produced by collect-eits.
type EitSection struct {
	Triple                   tunertypes.ServiceTriple `json:"triple"`
	TableID                  uint8                    `json:"tableId"`
	SectionNumber            uint8                    `json:"sectionNumber"`
	LastSectionNumber        uint8                    `json:"lastSectionNumber"`
	SegmentLastSectionNumber uint8                    `json:"segmentLastSectionNumber"`
	VersionNumber            uint8                    `json:"versionNumber"`
	Events                   []EitEvent               `json:"events"`
}

// TableIndex, SegmentIndex, SectionIndex and LastSectionIndex are the
// derived lattice coordinates described in spec.md §3.
func (s EitSection) TableIndex() int      { return int(s.TableID) - 0x50 }
func (s EitSection) SegmentIndex() int    { return int(s.SectionNumber) / 8 }
func (s EitSection) SectionIndex() int    { return int(s.SectionNumber) % 8 }
func (s EitSection) LastSectionIndex() int { return int(s.SegmentLastSectionNumber) % 8 }

// EitEvent is one decoded program entry within an EIT section.
type EitEvent struct {
	EventID     uint16          `json:"eventId"`
	StartTime   time.Time       `json:"startTime"`
	Duration    time.Duration   `json:"duration"`
	Scrambled   bool            `json:"scrambled"`
	Descriptors []EitDescriptor `json:"descriptors"`
}

// EndTime is StartTime + Duration.
func (e EitEvent) EndTime() time.Time { return e.StartTime.Add(e.Duration) }

// IsOvernight reports whether e's interval strictly crosses midnight m:
// start < m && end > m.
func (e EitEvent) IsOvernight(midnight time.Time) bool {
	return e.StartTime.Before(midnight) && e.EndTime().After(midnight)
}

// DescriptorKind tags the variant of EitDescriptor present.
type DescriptorKind string

const (
	DescShortEvent     DescriptorKind = "ShortEvent"
	DescComponent      DescriptorKind = "Component"
	DescAudioComponent DescriptorKind = "AudioComponent"
	DescContent        DescriptorKind = "Content"
	DescExtendedEvent  DescriptorKind = "ExtendedEvent"
)

// ContentNibble is one entry of an EIT content descriptor: two content
// genre nibbles (level 1 and 2) followed by two user nibbles.
type ContentNibble struct {
	ContentNibbleLevel1 uint8 `json:"contentNibbleLevel1"`
	ContentNibbleLevel2 uint8 `json:"contentNibbleLevel2"`
	UserNibble1         uint8 `json:"userNibble1"`
	UserNibble2         uint8 `json:"userNibble2"`
}

// ExtendedEventItem is one ordered key/value pair from an extended_event
// descriptor; order is preserved on purpose (spec.md §4.1).
type ExtendedEventItem struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// EitDescriptor is a tagged union over the five descriptor kinds this
// system interprets. Only the fields matching Kind are meaningful.
type EitDescriptor struct {
	Kind DescriptorKind `json:"$type"`

	// ShortEvent
	EventName string `json:"eventName,omitempty"`
	Text      string `json:"text,omitempty"`

	// Component
	StreamContent uint8 `json:"streamContent,omitempty"`
	ComponentType uint8 `json:"componentType,omitempty"`

	// AudioComponent
	SamplingRate uint8 `json:"samplingRate,omitempty"`

	// Content
	Nibbles []ContentNibble `json:"nibbles,omitempty"`

	// ExtendedEvent
	Items []ExtendedEventItem `json:"items,omitempty"`
}
