// Package tunertypes holds the plain identifier and channel value types
// shared by the tuner manager and the EPG engine.
package tunertypes

import "fmt"

// ChannelType is the broadcast stack a channel belongs to.
type ChannelType string

const (
	GR    ChannelType = "GR"
	BS    ChannelType = "BS"
	CS    ChannelType = "CS"
	SKY   ChannelType = "SKY"
	Other ChannelType = "OTHER"
)

// ServiceTriple uniquely identifies a broadcast service.
type ServiceTriple struct {
	NetworkID uint16 `json:"nid"`
	TSID      uint16 `json:"tsid"`
	ServiceID uint16 `json:"sid"`
}

func (t ServiceTriple) String() string {
	return fmt.Sprintf("%d.%d.%d", t.NetworkID, t.TSID, t.ServiceID)
}

// EventQuad uniquely identifies a program (one EIT event within a service).
type EventQuad struct {
	ServiceTriple
	EventID uint16 `json:"eventId"`
}

func (q EventQuad) String() string {
	return fmt.Sprintf("%s.%d", q.ServiceTriple, q.EventID)
}

// MirakurunServiceID packs a ServiceTriple into the stable numeric ID shape
// downstream Mirakurun-compatible consumers expect.
func MirakurunServiceID(t ServiceTriple) uint64 {
	return uint64(t.NetworkID)*100000 + uint64(t.ServiceID)
}

// MirakurunProgramID packs an EventQuad into the stable numeric program ID.
func MirakurunProgramID(q EventQuad) uint64 {
	return MirakurunServiceID(q.ServiceTriple)*100000 + uint64(q.EventID)
}

// ChannelConfig is one configured channel (GR/BS/other), as loaded from the
// tuners/channels configuration file.
type ChannelConfig struct {
	Name             string      `json:"name" yaml:"name"`
	Type             ChannelType `json:"type" yaml:"type"`
	Channel          string      `json:"channel" yaml:"channel"`
	ExcludedServices []uint16    `json:"excludedServices" yaml:"excludedServices"`
	Disabled         bool        `json:"disabled" yaml:"disabled"`
}

// EpgChannel is the runtime (post-disabled-filter) view of a configured
// channel, as consumed by the EPG engine's three periodic tasks.
type EpgChannel struct {
	Name             string
	ChannelType      ChannelType
	Channel          string
	ExcludedServices []uint16
}

func (c ChannelConfig) ToEpgChannel() EpgChannel {
	excluded := make([]uint16, len(c.ExcludedServices))
	copy(excluded, c.ExcludedServices)
	return EpgChannel{
		Name:             c.Name,
		ChannelType:      c.Type,
		Channel:          c.Channel,
		ExcludedServices: excluded,
	}
}

// TunerConfig is one configured physical tuner.
type TunerConfig struct {
	Name         string        `json:"name" yaml:"name"`
	ChannelTypes []ChannelType `json:"channelTypes" yaml:"channelTypes"`
	Command      string        `json:"command" yaml:"command"`
	Disabled     bool          `json:"disabled" yaml:"disabled"`
}

// TunerSessionID identifies one continuous activation of a tuner.
type TunerSessionID struct {
	TunerIndex int
	PID        int
}

func (id TunerSessionID) String() string {
	return fmt.Sprintf("tuner#%d.%d", id.TunerIndex, id.PID)
}

// TunerSubscriptionID identifies one subscriber within a session.
type TunerSubscriptionID struct {
	SessionID    TunerSessionID
	SerialNumber uint32
}

func (id TunerSubscriptionID) String() string {
	return fmt.Sprintf("%s.%d", id.SessionID, id.SerialNumber)
}

// TunerUserPriority is a subscriber's preemption priority. Grab is a
// sentinel that always wins, even against equal-priority peers.
type TunerUserPriority int32

const Grab TunerUserPriority = 1<<31 - 1 // i32::MAX

func (p TunerUserPriority) IsGrab() bool { return p == Grab }

// TunerUserInfo distinguishes the kind of caller that opened a tuner.
type TunerUserInfo struct {
	Web     *WebUser
	Job     *JobUser
	Tracker *TrackerUser
}

type WebUser struct {
	Remote string
	Agent  string
}

type JobUser struct {
	Name string
}

type TrackerUser struct {
	StreamID TunerSubscriptionID
}

// TunerUser is a request's caller identity plus preemption priority.
type TunerUser struct {
	Info     TunerUserInfo
	Priority TunerUserPriority
}

// Background constructs the well-known user the EPG engine uses when it
// opens a tuner for its own periodic tasks.
func Background(name string) TunerUser {
	return TunerUser{
		Info:     TunerUserInfo{Job: &JobUser{Name: name}},
		Priority: 0,
	}
}

func (u TunerUser) String() string {
	switch {
	case u.Info.Web != nil:
		return fmt.Sprintf("web(remote=%s,agent=%s)", u.Info.Web.Remote, u.Info.Web.Agent)
	case u.Info.Job != nil:
		return fmt.Sprintf("job(%s)", u.Info.Job.Name)
	case u.Info.Tracker != nil:
		return fmt.Sprintf("tracker(%s)", u.Info.Tracker.StreamID)
	default:
		return "user(unknown)"
	}
}
