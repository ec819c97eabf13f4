package epgengine

import (
	"context"
	"log"
	"time"

	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/metrics"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const (
	syncClocksRerunSuccess = 17 * time.Hour
	syncClocksRerunFailure = 1 * time.Hour
)

// runSyncClocks sweeps every enabled channel through sync-clock, no tuner
// time limit, and publishes the resulting clock map (SPEC_FULL.md §4.2).
func (e *Engine) runSyncClocks(ctx context.Context) {
	e.sweepLock.Lock()
	defer e.sweepLock.Unlock()

	start := time.Now()
	next := e.syncClocksOnce(ctx)
	e.observe(metrics.TaskSyncClocks, start, next == syncClocksRerunFailure)

	e.scheduleIn(ctx, next, e.runSyncClocks)
}

func (e *Engine) syncClocksOnce(ctx context.Context) time.Duration {
	newClocks := make(map[tunertypes.ServiceTriple]epgmodel.Clock)

	for _, ch := range e.channels {
		if err := e.channelPace.Wait(ctx); err != nil {
			return syncClocksRerunFailure
		}
		data, err := e.openAndExtract(ctx, ch.ChannelType, ch.Channel, e.cfg.Tools.SyncClock, 0)
		if err != nil {
			log.Printf("epgengine: sync_clocks: %s %s: broadcast suspended: %v", ch.ChannelType, ch.Channel, err)
			continue
		}
		list, err := decodeJSONList[epgmodel.SyncClock](data)
		if err != nil {
			log.Printf("epgengine: sync_clocks: %s %s: broadcast suspended: %v", ch.ChannelType, ch.Channel, err)
			continue
		}
		for _, sc := range list {
			newClocks[sc.Triple()] = sc.Clock
		}
	}

	e.mu.Lock()
	e.clocks = newClocks
	e.mu.Unlock()

	if err := e.store.SaveClocks(newClocks); err != nil {
		log.Printf("epgengine: sync_clocks: save clocks.json: %v", err)
		return syncClocksRerunFailure
	}
	e.reg.UpdateClocks(newClocks)
	return syncClocksRerunSuccess
}
