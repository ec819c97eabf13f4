package tunermgr

import (
	"context"
	"fmt"

	"github.com/mirakctl/mirakctl/internal/mirakerr"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// Subscription is returned to a successful open-tuner request: the
// subscription's ID plus a channel of raw TS byte chunks.
type Subscription struct {
	ID     tunertypes.TunerSubscriptionID
	Stream <-chan []byte
}

// openRequest/stopRequest/queryRequest are the request envelopes the single
// manager goroutine drains from its mailbox, each carrying a one-shot reply
// channel — the Go expression of "send message and await reply" (spec.md §9).
type openRequest struct {
	channelType tunertypes.ChannelType
	channel     string
	user        tunertypes.TunerUser
	tracker     *tunertypes.TunerSubscriptionID // non-nil for Tracker users
	reply       chan openResult
}

type openResult struct {
	sub Subscription
	err error
}

type stopRequest struct {
	id    tunertypes.TunerSubscriptionID
	reply chan error
}

type queryRequest struct {
	reply chan []TunerModel
}

// Manager owns the tuner vector exclusively; all mutation happens inside
// its single run goroutine, matching spec.md §5's single-threaded actor
// model and mirroring original_source/src/tuner.rs's TunerManager actor.
type Manager struct {
	tuners []*tuner

	openCh  chan openRequest
	stopCh  chan stopRequest
	queryCh chan queryRequest
	done    chan struct{}
}

// New constructs a manager over the given tuner configs, filtering disabled
// entries, matching Epg::new / TunerManager::load_tuners.
func New(configs []tunertypes.TunerConfig) *Manager {
	var tuners []*tuner
	idx := 0
	for _, cfg := range configs {
		if cfg.Disabled {
			continue
		}
		tuners = append(tuners, newTuner(idx, cfg))
		idx++
	}
	return &Manager{
		tuners:  tuners,
		openCh:  make(chan openRequest),
		stopCh:  make(chan stopRequest),
		queryCh: make(chan queryRequest),
		done:    make(chan struct{}),
	}
}

// Run drives the manager's single mailbox loop until ctx is cancelled. On
// cancellation every active tuner is deactivated (sessions killed), mirroring
// TunerManager::stopped.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			for _, t := range m.tuners {
				t.deactivate()
			}
			return
		case req := <-m.openCh:
			sub, err := m.handleOpen(req)
			req.reply <- openResult{sub: sub, err: err}
		case req := <-m.stopCh:
			req.reply <- m.handleStop(req.id)
		case req := <-m.queryCh:
			req.reply <- m.handleQuery()
		}
	}
}

// OpenTuner requests a stream for (channelType, channel) on behalf of user.
func (m *Manager) OpenTuner(ctx context.Context, channelType tunertypes.ChannelType, channel string, user tunertypes.TunerUser) (Subscription, error) {
	reply := make(chan openResult, 1)
	req := openRequest{channelType: channelType, channel: channel, user: user, reply: reply}
	if user.Info.Tracker != nil {
		sid := user.Info.Tracker.StreamID
		req.tracker = &sid
	}
	select {
	case m.openCh <- req:
	case <-ctx.Done():
		return Subscription{}, ctx.Err()
	case <-m.done:
		return Subscription{}, fmt.Errorf("tunermgr: manager stopped")
	}
	select {
	case res := <-reply:
		return res.sub, res.err
	case <-ctx.Done():
		return Subscription{}, ctx.Err()
	}
}

// StopStreaming ends subscription id.
func (m *Manager) StopStreaming(ctx context.Context, id tunertypes.TunerSubscriptionID) error {
	reply := make(chan error, 1)
	select {
	case m.stopCh <- stopRequest{id: id, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return fmt.Errorf("tunermgr: manager stopped")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueryTuners returns a snapshot model of every tuner.
func (m *Manager) QueryTuners(ctx context.Context) ([]TunerModel, error) {
	reply := make(chan []TunerModel, 1)
	select {
	case m.queryCh <- queryRequest{reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.done:
		return nil, fmt.Errorf("tunermgr: manager stopped")
	}
	select {
	case models := <-reply:
		return models, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) handleQuery() []TunerModel {
	models := make([]TunerModel, len(m.tuners))
	for i, t := range m.tuners {
		models[i] = t.model()
	}
	return models
}

func (m *Manager) handleStop(id tunertypes.TunerSubscriptionID) error {
	idx := id.SessionID.TunerIndex
	if idx < 0 || idx >= len(m.tuners) {
		return mirakerr.ErrSessionNotFound
	}
	logTunerEvent(idx, "stop streaming %s", id)
	_, err := m.tuners[idx].stopStreaming(id)
	return err
}

// handleOpen implements the selection policy of spec.md §4.3, in order:
// tracker pin, reuse, free activation, grab, unavailable.
func (m *Manager) handleOpen(req openRequest) (Subscription, error) {
	if req.tracker != nil {
		idx := req.tracker.SessionID.TunerIndex
		if idx < 0 || idx >= len(m.tuners) {
			return Subscription{}, mirakerr.ErrTunerUnavailable
		}
		t := m.tuners[idx]
		if !t.isActive() {
			return Subscription{}, mirakerr.ErrTunerUnavailable
		}
		return m.subscribeOn(t, req.user)
	}

	for _, t := range m.tuners {
		if t.isReusable(req.channelType, req.channel) {
			logTunerEvent(t.index, "reuse tuner already activated with %s %s", req.channelType, req.channel)
			return m.subscribeOn(t, req.user)
		}
	}

	for _, t := range m.tuners {
		if t.isAvailableFor(req.channelType) {
			logTunerEvent(t.index, "activate with %s %s", req.channelType, req.channel)
			if err := t.activate(req.channelType, req.channel); err != nil {
				return Subscription{}, err
			}
			return m.subscribeOn(t, req.user)
		}
	}

	for _, t := range m.tuners {
		if t.supportsType(req.channelType) && t.canGrab(req.user.Priority) {
			logTunerEvent(t.index, "grab tuner, reactivate with %s %s", req.channelType, req.channel)
			t.deactivate()
			if err := t.activate(req.channelType, req.channel); err != nil {
				return Subscription{}, err
			}
			return m.subscribeOn(t, req.user)
		}
	}

	return Subscription{}, mirakerr.ErrTunerUnavailable
}

// subscribeOn subscribes user on an already-active tuner t. The broadcaster
// in this module never fails to subscribe once the session exists, so
// subscribeOn always succeeds and has no rollback path.
func (m *Manager) subscribeOn(t *tuner, user tunertypes.TunerUser) (Subscription, error) {
	id, stream := t.subscribe(user)
	return Subscription{ID: id, Stream: stream}, nil
}
