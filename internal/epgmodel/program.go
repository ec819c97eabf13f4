package epgmodel

import (
	"time"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// VideoComponent summarizes an EIT Component descriptor.
type VideoComponent struct {
	StreamContent uint8 `json:"streamContent"`
	ComponentType uint8 `json:"componentType"`
}

// AudioComponent summarizes an EIT AudioComponent descriptor.
type AudioComponent struct {
	ComponentType uint8 `json:"componentType"`
	SamplingRate  uint8 `json:"samplingRate"`
}

// ProgramModel is the flattened, externally-published view of one program,
// the unit collect_epg_programs assembles (spec.md §4.1) and the shape fed
// to the registry's UpdateEpg message (spec.md §6).
type ProgramModel struct {
	ID          uint64                 `json:"id"`
	EventID     uint16                 `json:"eventId"`
	ServiceID   uint16                 `json:"serviceId"`
	NetworkID   uint16                 `json:"networkId"`
	StartAt     time.Time              `json:"startAt"`
	Duration    time.Duration          `json:"duration"`
	IsFree      bool                   `json:"isFree"`
	Name        *string                `json:"name,omitempty"`
	Description *string                `json:"description,omitempty"`
	Video       *VideoComponent        `json:"video,omitempty"`
	Audio       *AudioComponent        `json:"audio,omitempty"`
	Genres      []uint8                `json:"genres,omitempty"`
	ExtendedRaw []ExtendedEventItem    `json:"extended,omitempty"`
}

func newProgramModel(quad tunertypes.EventQuad) *ProgramModel {
	return &ProgramModel{
		ID:        tunertypes.MirakurunProgramID(quad),
		EventID:   quad.EventID,
		ServiceID: quad.ServiceID,
		NetworkID: quad.NetworkID,
	}
}

// update overwrites every field touched by event's descriptors, following
// original_source/src/epg.rs's ProgramModel::update: later calls always win
// for the fields they touch (spec.md §9).
func (p *ProgramModel) update(event EitEvent) {
	p.StartAt = event.StartTime
	p.Duration = event.Duration
	p.IsFree = !event.Scrambled
	for _, d := range event.Descriptors {
		switch d.Kind {
		case DescShortEvent:
			name := d.EventName
			desc := d.Text
			p.Name = &name
			p.Description = &desc
		case DescComponent:
			p.Video = &VideoComponent{StreamContent: d.StreamContent, ComponentType: d.ComponentType}
		case DescAudioComponent:
			p.Audio = &AudioComponent{ComponentType: d.ComponentType, SamplingRate: d.SamplingRate}
		case DescContent:
			genres := make([]uint8, 0, len(d.Nibbles))
			for _, n := range d.Nibbles {
				genres = append(genres, n.ContentNibbleLevel1)
			}
			p.Genres = genres
		case DescExtendedEvent:
			items := make([]ExtendedEventItem, len(d.Items))
			copy(items, d.Items)
			p.ExtendedRaw = items
		}
	}
}

func applyEvent(triple tunertypes.ServiceTriple, ev EitEvent, programs map[tunertypes.EventQuad]*ProgramModel) {
	quad := tunertypes.EventQuad{ServiceTriple: triple, EventID: ev.EventID}
	pm, ok := programs[quad]
	if !ok {
		pm = newProgramModel(quad)
		programs[quad] = pm
	}
	pm.update(ev)
}

// ServiceModel is the flattened, externally-published view of one service.
type ServiceModel struct {
	ID                 uint64                   `json:"id"`
	ServiceID          uint16                   `json:"serviceId"`
	NetworkID          uint16                   `json:"networkId"`
	ServiceType        uint16                   `json:"serviceType"`
	LogoID             int16                    `json:"logoId"`
	RemoteControlKeyID uint16                   `json:"remoteControlKeyId"`
	Name               string                   `json:"name"`
	Channel            ServiceChannelModel      `json:"channel"`
}

// ServiceChannelModel is the channel-type/channel pair embedded in a ServiceModel.
type ServiceChannelModel struct {
	ChannelType tunertypes.ChannelType `json:"type"`
	Channel     string                 `json:"channel"`
}
