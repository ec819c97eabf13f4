package main

import (
	"context"
	"time"

	"github.com/mirakctl/mirakctl/internal/metrics"
	"github.com/mirakctl/mirakctl/internal/tunermgr"
)

const tunerPollInterval = 10 * time.Second

// pollTunerMetrics periodically queries the tuner manager and feeds its
// snapshot into the tuner gauges, since the manager itself has no
// subscriber-push mechanism for metrics.
func pollTunerMetrics(ctx context.Context, mgr *tunermgr.Manager, m *metrics.Metrics) {
	ticker := time.NewTicker(tunerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			models, err := mgr.QueryTuners(ctx)
			if err != nil {
				continue
			}
			m.ObserveTuners(models)
		}
	}
}
