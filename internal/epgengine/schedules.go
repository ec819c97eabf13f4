package epgengine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/metrics"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

const (
	schedulesRerunSuccess = 15 * time.Minute
	schedulesRerunFailure = 5 * time.Minute

	estimateTimeDefault = 1 * time.Hour
	estimateTimeMargin  = 30 * time.Second
	postponeMargin      = 10 * time.Second
)

// estimateTime returns how long a full update_schedules sweep is expected to
// take: the longest observed sweep plus a margin, or a conservative default
// before any sweep has ever succeeded.
func (e *Engine) estimateTime() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.maxElapsed == 0 {
		return estimateTimeDefault
	}
	return e.maxElapsed + estimateTimeMargin
}

func (e *Engine) updateMaxElapsed(elapsed time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if elapsed > e.maxElapsed {
		e.maxElapsed = elapsed
	}
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	if !now.Before(midnight) {
		midnight = midnight.Add(24 * time.Hour)
	}
	return midnight
}

func todayMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// runUpdateSchedules reassembles every per-service schedule from EIT data
// and publishes the flattened program set, deferring itself near midnight
// when a full sweep wouldn't finish in time (SPEC_FULL.md §4.2).
func (e *Engine) runUpdateSchedules(ctx context.Context) {
	e.sweepLock.Lock()
	defer e.sweepLock.Unlock()

	now := time.Now()
	remaining := nextMidnight(now).Sub(now)
	if remaining < e.estimateTime() {
		e.scheduleIn(ctx, remaining+postponeMargin, e.runUpdateSchedules)
		return
	}

	start := now
	next, ok := e.updateSchedulesOnce(ctx, now)
	e.observe(metrics.TaskUpdateSchedules, start, !ok)
	if ok {
		e.updateMaxElapsed(time.Since(start))
	}

	e.scheduleIn(ctx, next, e.runUpdateSchedules)
}

func (e *Engine) updateSchedulesOnce(ctx context.Context, now time.Time) (time.Duration, bool) {
	e.prepareSchedules(now)

	channels := e.deriveChannelsByNetwork()

	e.mu.Lock()
	services := e.services
	e.mu.Unlock()

	for _, nc := range channels {
		if err := e.channelPace.Wait(ctx); err != nil {
			return schedulesRerunFailure, false
		}
		data, err := e.openAndExtract(ctx, nc.channelType, nc.channel, e.cfg.Tools.CollectEits, collectEitsTimeLimit(nc.channelType))
		if err != nil {
			log.Printf("epgengine: update_schedules: network %d: broadcast suspended: %v", nc.networkID, err)
			continue
		}
		e.applyEitSections(data, nc, services)
	}

	e.mu.Lock()
	schedules := e.schedules
	e.mu.Unlock()

	if err := e.store.SaveSchedules(schedules); err != nil {
		log.Printf("epgengine: update_schedules: save schedules.json: %v", err)
		return schedulesRerunFailure, false
	}

	e.publishPrograms()
	return schedulesRerunSuccess, true
}

// applyEitSections parses one line-delimited-JSON EitSection per line and
// routes it to the matching schedule, skipping unknown or excluded triples.
func (e *Engine) applyEitSections(data []byte, nc networkChannel, services map[tunertypes.ServiceTriple]epgmodel.Service) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var section epgmodel.EitSection
		if err := json.Unmarshal(line, &section); err != nil {
			log.Printf("epgengine: update_schedules: network %d: malformed EIT section: %v", nc.networkID, err)
			continue
		}
		if _, known := services[section.Triple]; !known {
			continue
		}
		if nc.excluded[section.Triple.ServiceID] {
			continue
		}
		e.mu.Lock()
		sc := e.schedules[section.Triple]
		e.mu.Unlock()
		if sc == nil {
			continue
		}
		sc.Update(section)
	}
}

// prepareSchedules creates a schedule for every known service missing one,
// saves overnight events for any schedule not yet touched today, and drops
// schedules whose triple no longer appears in services.
func (e *Engine) prepareSchedules(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	midnight := todayMidnight(now)

	for triple := range e.services {
		if _, ok := e.schedules[triple]; !ok {
			e.schedules[triple] = epgmodel.NewSchedule(triple, now)
		}
	}

	for triple, sc := range e.schedules {
		if _, known := e.services[triple]; !known {
			delete(e.schedules, triple)
			continue
		}
		if sc.UpdatedAt.Before(midnight) {
			sc.SaveOvernightEvents(midnight)
			sc.UpdatedAt = now
		}
	}
}

// networkChannel is one network_id's derived tuning target: the channel
// used to receive it, plus every excluded service id merged from the
// services sharing that network (SPEC_FULL.md §4.2 step 3).
type networkChannel struct {
	networkID   uint16
	channelType tunertypes.ChannelType
	channel     string
	excluded    map[uint16]bool
}

func (e *Engine) deriveChannelsByNetwork() []networkChannel {
	e.mu.Lock()
	services := e.services
	e.mu.Unlock()

	byNetwork := make(map[uint16]*networkChannel)
	for _, sv := range services {
		nc, ok := byNetwork[sv.NetworkID]
		if !ok {
			nc = &networkChannel{
				networkID:   sv.NetworkID,
				channelType: sv.Channel.ChannelType,
				channel:     sv.Channel.Channel,
				excluded:    map[uint16]bool{},
			}
			byNetwork[sv.NetworkID] = nc
		}
		for _, id := range sv.Channel.ExcludedServices {
			nc.excluded[id] = true
		}
	}

	out := make([]networkChannel, 0, len(byNetwork))
	for _, nc := range byNetwork {
		out = append(out, *nc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].networkID < out[j].networkID })
	return out
}
