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
	scanRerunSuccess = 23 * time.Hour
	scanRerunFailure = 1 * time.Hour
)

// runScanServices sweeps every enabled channel, rebuilds the service table,
// and reschedules itself (SPEC_FULL.md §4.2). Only one scan runs at a time,
// enforced by sweepLock.
func (e *Engine) runScanServices(ctx context.Context) {
	e.sweepLock.Lock()
	defer e.sweepLock.Unlock()

	start := time.Now()
	next := e.scanServicesOnce(ctx)
	e.observe(metrics.TaskScanServices, start, next == scanRerunFailure)

	e.scheduleIn(ctx, next, e.runScanServices)
}

func (e *Engine) scanServicesOnce(ctx context.Context) time.Duration {
	newServices := make(map[tunertypes.ServiceTriple]epgmodel.Service)

	for _, ch := range e.channels {
		if err := e.channelPace.Wait(ctx); err != nil {
			return scanRerunFailure
		}
		data, err := e.openAndExtract(ctx, ch.ChannelType, ch.Channel, e.cfg.Tools.ScanServices, scanTimeLimit(ch.ChannelType))
		if err != nil {
			log.Printf("epgengine: scan_services: %s %s: broadcast suspended: %v", ch.ChannelType, ch.Channel, err)
			continue
		}
		list, err := decodeJSONList[epgmodel.TsService](data)
		if err != nil {
			log.Printf("epgengine: scan_services: %s %s: broadcast suspended: %v", ch.ChannelType, ch.Channel, err)
			continue
		}
		for _, sv := range list {
			newServices[sv.Triple()] = epgmodel.NewService(ch, sv)
		}
	}

	e.mu.Lock()
	e.services = newServices
	e.mu.Unlock()

	if err := e.store.SaveServices(newServices); err != nil {
		log.Printf("epgengine: scan_services: save services.json: %v", err)
		return scanRerunFailure
	}
	e.reg.UpdateServices(newServices)
	return scanRerunSuccess
}

func (e *Engine) observe(task string, start time.Time, failed bool) {
	if e.metrics == nil {
		return
	}
	e.metrics.EpgTaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
	if failed {
		e.metrics.EpgTaskFailures.WithLabelValues(task).Inc()
	}
}
