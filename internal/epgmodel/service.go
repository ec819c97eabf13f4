package epgmodel

import (
	"encoding/json"

	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// TsService is the raw JSON record scan-services emits on stdout, one per
// discovered service (spec.md §6).
type TsService struct {
	NetworkID          uint16 `json:"nid"`
	TSID               uint16 `json:"tsid"`
	ServiceID          uint16 `json:"sid"`
	ServiceType        uint16 `json:"type"`
	LogoID             int16  `json:"logoId"`
	RemoteControlKeyID uint16 `json:"remoteControlKeyId"`
	Name               string `json:"name"`
}

func (s TsService) Triple() tunertypes.ServiceTriple {
	return tunertypes.ServiceTriple{NetworkID: s.NetworkID, TSID: s.TSID, ServiceID: s.ServiceID}
}

// Service is the persisted, channel-attributed form of a scanned service —
// the unit stored in services.json (spec.md §4.5) and grounded on
// original_source/src/epg.rs's EpgService.
type Service struct {
	NetworkID          uint16                `json:"nid"`
	TSID               uint16                `json:"tsid"`
	ServiceID          uint16                `json:"sid"`
	ServiceType        uint16                `json:"type"`
	LogoID             int16                 `json:"logoId"`
	RemoteControlKeyID uint16                `json:"remoteControlKeyId"`
	Name               string                `json:"name"`
	Channel            tunertypes.EpgChannel `json:"channel"`
}

func (s Service) Triple() tunertypes.ServiceTriple {
	return tunertypes.ServiceTriple{NetworkID: s.NetworkID, TSID: s.TSID, ServiceID: s.ServiceID}
}

// NewService builds a Service by attributing a raw TsService to the channel
// it was scanned from, matching `From<(&EpgChannel, &TsService)> for EpgService`.
func NewService(ch tunertypes.EpgChannel, sv TsService) Service {
	return Service{
		NetworkID:          sv.NetworkID,
		TSID:               sv.TSID,
		ServiceID:          sv.ServiceID,
		ServiceType:        sv.ServiceType,
		LogoID:             sv.LogoID,
		RemoteControlKeyID: sv.RemoteControlKeyID,
		Name:               sv.Name,
		Channel:            ch,
	}
}

// ToModel flattens a Service into its externally-published ServiceModel form.
func (s Service) ToModel() ServiceModel {
	triple := s.Triple()
	return ServiceModel{
		ID:                 tunertypes.MirakurunServiceID(triple),
		ServiceID:          s.ServiceID,
		NetworkID:          s.NetworkID,
		ServiceType:        s.ServiceType,
		LogoID:             s.LogoID,
		RemoteControlKeyID: s.RemoteControlKeyID,
		Name:               s.Name,
		Channel:            ServiceChannelModel{ChannelType: s.Channel.ChannelType, Channel: s.Channel.Channel},
	}
}

// Clock is an opaque PCR/clock descriptor published by sync-clock. Its
// internal fields are never interpreted by this system, only stored and
// republished, so it is kept as a raw JSON payload.
type Clock struct {
	Raw json.RawMessage
}

// MarshalJSON emits Raw verbatim (encoding/json compacts it), so a compact
// Clock payload round-trips through clocks.json byte-for-byte instead of
// being reinterpreted.
func (c Clock) MarshalJSON() ([]byte, error) {
	if c.Raw == nil {
		return []byte("null"), nil
	}
	return c.Raw, nil
}

// UnmarshalJSON stores data as-is without interpreting its shape.
func (c *Clock) UnmarshalJSON(data []byte) error {
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// SyncClock is the raw JSON record sync-clock emits on stdout, one per service.
type SyncClock struct {
	NetworkID uint16 `json:"nid"`
	TSID      uint16 `json:"tsid"`
	ServiceID uint16 `json:"sid"`
	Clock     Clock  `json:"clock"`
}

func (s SyncClock) Triple() tunertypes.ServiceTriple {
	return tunertypes.ServiceTriple{NetworkID: s.NetworkID, TSID: s.TSID, ServiceID: s.ServiceID}
}
