// Package epgengine implements the EPG periodic driver: the three
// self-rescheduling tasks (scan_services, sync_clocks, update_schedules)
// that keep the shared registry's services/clocks/programs up to date, as
// specified in SPEC_FULL.md §4.2 and grounded on original_source/src/epg.rs's
// Epg actor. Task bodies are plain goroutine-driven closures posted on
// time.Timer, the same self-rescheduling idea as the original's
// ctx.run_later, adapted to Go without an actor framework.
package epgengine

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirakctl/mirakctl/internal/config"
	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/epgpersist"
	"github.com/mirakctl/mirakctl/internal/metrics"
	"github.com/mirakctl/mirakctl/internal/registry"
	"github.com/mirakctl/mirakctl/internal/tunermgr"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const debugDisableEnv = "MIRAKC_DEBUG_DISABLE_EPG_TASKS"

// Engine owns every piece of EPG state exclusively; all mutation happens on
// its own goroutines, serialized against each other by sweepLock so only one
// tuner-consuming task runs at a time (SPEC_FULL.md §5).
type Engine struct {
	cfg      *config.Config
	tunerMgr *tunermgr.Manager
	store    *epgpersist.Store
	reg      *registry.Registry
	metrics  *metrics.Metrics

	channels []tunertypes.EpgChannel

	// channelPace rations how fast the engine opens successive tuners within
	// one sweep, avoiding a thundering-herd of simultaneous tuner activations
	// when a sweep has many configured channels.
	channelPace *rate.Limiter

	sweepLock sync.Mutex

	mu         sync.Mutex
	services   map[tunertypes.ServiceTriple]epgmodel.Service
	clocks     map[tunertypes.ServiceTriple]epgmodel.Clock
	schedules  map[tunertypes.ServiceTriple]*epgmodel.Schedule
	maxElapsed time.Duration
}

// New constructs an Engine. tunerMgr is used to open tuners for every
// extractor sweep; reg is the shared registry published to readers.
func New(cfg *config.Config, tunerMgr *tunermgr.Manager, reg *registry.Registry, m *metrics.Metrics) *Engine {
	return &Engine{
		cfg:         cfg,
		tunerMgr:    tunerMgr,
		store:       epgpersist.New(cfg.EpgCacheDir),
		reg:         reg,
		metrics:     m,
		channels:    toEpgChannels(cfg.EnabledChannels()),
		channelPace: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		services:    map[tunertypes.ServiceTriple]epgmodel.Service{},
		clocks:      map[tunertypes.ServiceTriple]epgmodel.Clock{},
		schedules:   map[tunertypes.ServiceTriple]*epgmodel.Schedule{},
	}
}

func toEpgChannels(configs []tunertypes.ChannelConfig) []tunertypes.EpgChannel {
	out := make([]tunertypes.EpgChannel, len(configs))
	for i, c := range configs {
		out[i] = c.ToEpgChannel()
	}
	return out
}

func disabled() bool {
	_, set := os.LookupEnv(debugDisableEnv)
	return set
}

// Run bootstraps the engine from disk, publishes the loaded state, and
// schedules the first run of all three tasks (t+0s, t+5s, t+10s), then
// blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.bootstrap()

	if disabled() {
		log.Printf("epgengine: %s set, periodic tasks disabled", debugDisableEnv)
		<-ctx.Done()
		return
	}

	e.scheduleIn(ctx, 0, e.runScanServices)
	e.scheduleIn(ctx, 5*time.Second, e.runSyncClocks)
	e.scheduleIn(ctx, 10*time.Second, e.runUpdateSchedules)

	<-ctx.Done()
}

func (e *Engine) bootstrap() {
	if services, err := e.store.LoadServices(); err != nil {
		log.Printf("epgengine: load services.json: %v", err)
	} else {
		e.mu.Lock()
		e.services = services
		e.mu.Unlock()
	}

	if clocks, err := e.store.LoadClocks(); err != nil {
		log.Printf("epgengine: load clocks.json: %v", err)
	} else {
		e.mu.Lock()
		e.clocks = clocks
		e.mu.Unlock()
		e.reg.UpdateClocks(clocks)
	}

	if schedules, err := e.store.LoadSchedules(); err != nil {
		log.Printf("epgengine: load schedules.json: %v", err)
	} else {
		e.mu.Lock()
		e.schedules = schedules
		e.mu.Unlock()
	}

	e.mu.Lock()
	services := e.services
	e.mu.Unlock()
	e.reg.UpdateServices(services)
	e.publishPrograms()
}

func (e *Engine) publishPrograms() {
	e.mu.Lock()
	schedules := e.schedules
	e.mu.Unlock()
	programs := make(map[tunertypes.EventQuad]*epgmodel.ProgramModel)
	for _, sc := range schedules {
		sc.CollectPrograms(programs)
	}
	e.reg.UpdateEpg(programs)
}

// scheduleIn arranges for fn to run once, after delay, unless ctx is already
// done. fn is responsible for scheduling its own next run.
func (e *Engine) scheduleIn(ctx context.Context, delay time.Duration, fn func(context.Context)) {
	timer := time.AfterFunc(delay, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		fn(ctx)
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
}

func scanTimeLimit(ct tunertypes.ChannelType) time.Duration {
	switch ct {
	case tunertypes.GR:
		return 10 * time.Second
	case tunertypes.BS:
		return 20 * time.Second
	default:
		return 30 * time.Second
	}
}

func collectEitsTimeLimit(ct tunertypes.ChannelType) time.Duration {
	switch ct {
	case tunertypes.GR:
		return 70 * time.Second
	case tunertypes.BS:
		return 6*time.Minute + 30*time.Second
	default:
		return 10 * time.Minute
	}
}

// decodeJSONList unmarshals JSON list output from an extractor. A parse
// failure is reported, not fatal: callers treat it as an empty sweep result
// for that one channel and continue (SPEC_FULL.md §4.2 step 3).
func decodeJSONList[T any](data []byte) ([]T, error) {
	var out []T
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
