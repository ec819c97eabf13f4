// Package tunermgr implements the per-tuner state machine and the
// TunerManager selection policy: reuse, free-activation, priority grab, and
// tracker pinning, as specified in spec.md §4.3/§4.4 and grounded on
// original_source/src/tuner.rs's activate_tuner/Tuner/TunerActivity.
package tunermgr

import (
	"log"

	"github.com/mirakctl/mirakctl/internal/mirakerr"
	"github.com/mirakctl/mirakctl/internal/tunerproc"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// TunerModel is the externally-queryable snapshot of one tuner's state,
// mirroring original_source/src/tuner.rs's get_model/MirakurunTuner.
type TunerModel struct {
	Index        int
	Name         string
	ChannelTypes []tunertypes.ChannelType
	Command      string
	PID          int
	Users        []tunertypes.TunerUser
	IsFree       bool
}

// tuner is one physical tuner slot: immutable configuration plus at most one
// active session.
type tuner struct {
	index        int
	name         string
	channelTypes []tunertypes.ChannelType
	commandTmpl  string
	session      *tunerproc.Session // nil when Inactive
}

func newTuner(index int, cfg tunertypes.TunerConfig) *tuner {
	return &tuner{
		index:        index,
		name:         cfg.Name,
		channelTypes: cfg.ChannelTypes,
		commandTmpl:  cfg.Command,
	}
}

func (t *tuner) isActive() bool { return t.session != nil }

func (t *tuner) supportsType(ct tunertypes.ChannelType) bool {
	for _, s := range t.channelTypes {
		if s == ct {
			return true
		}
	}
	return false
}

func (t *tuner) isAvailableFor(ct tunertypes.ChannelType) bool {
	return !t.isActive() && t.supportsType(ct)
}

func (t *tuner) isReusable(ct tunertypes.ChannelType, channel string) bool {
	return t.isActive() && t.session.IsReusable(ct, channel)
}

func (t *tuner) canGrab(p tunertypes.TunerUserPriority) bool {
	if !t.isActive() {
		return true
	}
	return t.session.CanGrab(p)
}

// activate spawns a new session, replacing any previous one. Callers must
// have already deactivated an active session (or confirmed the tuner is
// inactive) before calling.
func (t *tuner) activate(ct tunertypes.ChannelType, channel string) error {
	if t.isActive() {
		panic("tuner: must be deactivated before activating")
	}
	session, err := tunerproc.Activate(t.index, ct, channel, t.commandTmpl)
	if err != nil {
		return err
	}
	t.session = session
	return nil
}

// deactivate kills the active session's child process, if any, and clears it.
func (t *tuner) deactivate() {
	if t.session != nil {
		t.session.Close()
		t.session = nil
	}
}

func (t *tuner) subscribe(user tunertypes.TunerUser) (tunertypes.TunerSubscriptionID, <-chan []byte) {
	if !t.isActive() {
		panic("tuner: must be activated before subscribing")
	}
	return t.session.Subscribe(user)
}

func (t *tuner) stopStreaming(id tunertypes.TunerSubscriptionID) (int, error) {
	if !t.isActive() {
		return 0, mirakerr.ErrSessionNotFound
	}
	n, err := t.session.StopStreaming(id)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		t.deactivate()
	}
	return n, nil
}

func (t *tuner) model() TunerModel {
	m := TunerModel{
		Index:        t.index,
		Name:         t.name,
		ChannelTypes: t.channelTypes,
		IsFree:       !t.isActive(),
	}
	if t.session != nil {
		m.Command = t.session.Command
		m.PID = t.session.PID()
		m.Users = t.session.Subscribers()
	}
	return m
}

func logTunerEvent(index int, format string, args ...any) {
	log.Printf("tuner#%d: "+format, append([]any{index}, args...)...)
}
