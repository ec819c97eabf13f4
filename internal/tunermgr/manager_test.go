package tunermgr

import (
	"context"
	"errors"
	"testing"

	"github.com/mirakctl/mirakctl/internal/mirakerr"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

func startManager(t *testing.T, configs []tunertypes.TunerConfig) (*Manager, context.Context, context.CancelFunc) {
	t.Helper()
	mgr := New(configs)
	ctx, cancel := context.WithCancel(context.Background())
	go mgr.Run(ctx)
	t.Cleanup(cancel)
	return mgr, ctx, cancel
}

func TestManager_ReuseSameChannel(t *testing.T) {
	mgr, ctx, _ := startManager(t, []tunertypes.TunerConfig{
		{Name: "t0", ChannelTypes: []tunertypes.ChannelType{tunertypes.GR}, Command: "sleep 5"},
	})

	sub1, err := mgr.OpenTuner(ctx, tunertypes.GR, "27", tunertypes.TunerUser{Priority: 0})
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	sub2, err := mgr.OpenTuner(ctx, tunertypes.GR, "27", tunertypes.TunerUser{Priority: 0})
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	if sub1.ID.SessionID != sub2.ID.SessionID {
		t.Errorf("expected both subscriptions to share a session, got %+v and %+v", sub1.ID, sub2.ID)
	}
	if sub1.ID.SerialNumber == sub2.ID.SerialNumber {
		t.Errorf("expected distinct serial numbers, both got %d", sub1.ID.SerialNumber)
	}
}

func TestManager_UnavailableWhenNoTunerSupportsType(t *testing.T) {
	mgr, ctx, _ := startManager(t, []tunertypes.TunerConfig{
		{Name: "t0", ChannelTypes: []tunertypes.ChannelType{tunertypes.BS}, Command: "sleep 5"},
	})

	_, err := mgr.OpenTuner(ctx, tunertypes.GR, "27", tunertypes.TunerUser{Priority: 0})
	if !errors.Is(err, mirakerr.ErrTunerUnavailable) {
		t.Errorf("expected ErrTunerUnavailable, got %v", err)
	}
}

func TestManager_GrabPreemptsLowerPriority(t *testing.T) {
	mgr, ctx, _ := startManager(t, []tunertypes.TunerConfig{
		{Name: "t0", ChannelTypes: []tunertypes.ChannelType{tunertypes.GR}, Command: "sleep 5"},
	})

	_, err := mgr.OpenTuner(ctx, tunertypes.GR, "27", tunertypes.TunerUser{Priority: 0})
	if err != nil {
		t.Fatalf("open channel 27: %v", err)
	}

	// Different channel, higher priority: must grab and reassign the tuner.
	sub, err := mgr.OpenTuner(ctx, tunertypes.GR, "28", tunertypes.TunerUser{Priority: 1})
	if err != nil {
		t.Fatalf("grab open: %v", err)
	}

	models, err := mgr.QueryTuners(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(models) != 1 {
		t.Fatalf("expected 1 tuner model, got %d", len(models))
	}
	if models[0].IsFree {
		t.Error("tuner should be active after grab")
	}
	if sub.ID.SessionID.PID == 0 {
		t.Error("expected a real spawned session pid")
	}
}

func TestManager_DeactivatesOnZeroSubscribers(t *testing.T) {
	mgr, ctx, _ := startManager(t, []tunertypes.TunerConfig{
		{Name: "t0", ChannelTypes: []tunertypes.ChannelType{tunertypes.GR}, Command: "sleep 5"},
	})

	sub, err := mgr.OpenTuner(ctx, tunertypes.GR, "27", tunertypes.TunerUser{Priority: 0})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := mgr.StopStreaming(ctx, sub.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}

	models, err := mgr.QueryTuners(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !models[0].IsFree {
		t.Error("tuner should be free once its only subscriber stops")
	}
}

func TestManager_StopStreamingUnknownID(t *testing.T) {
	mgr, ctx, _ := startManager(t, []tunertypes.TunerConfig{
		{Name: "t0", ChannelTypes: []tunertypes.ChannelType{tunertypes.GR}, Command: "sleep 5"},
	})

	bogus := tunertypes.TunerSubscriptionID{SessionID: tunertypes.TunerSessionID{TunerIndex: 99}}
	if err := mgr.StopStreaming(ctx, bogus); !errors.Is(err, mirakerr.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for out-of-range tuner index, got %v", err)
	}
}
