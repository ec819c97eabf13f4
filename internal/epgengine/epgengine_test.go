package epgengine

import (
	"testing"
	"time"

	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

func TestScanTimeLimit(t *testing.T) {
	cases := []struct {
		ct   tunertypes.ChannelType
		want time.Duration
	}{
		{tunertypes.GR, 10 * time.Second},
		{tunertypes.BS, 20 * time.Second},
		{tunertypes.CS, 30 * time.Second},
	}
	for _, c := range cases {
		if got := scanTimeLimit(c.ct); got != c.want {
			t.Errorf("scanTimeLimit(%v) = %v, want %v", c.ct, got, c.want)
		}
	}
}

func TestCollectEitsTimeLimit(t *testing.T) {
	cases := []struct {
		ct   tunertypes.ChannelType
		want time.Duration
	}{
		{tunertypes.GR, 70 * time.Second},
		{tunertypes.BS, 6*time.Minute + 30*time.Second},
		{tunertypes.SKY, 10 * time.Minute},
	}
	for _, c := range cases {
		if got := collectEitsTimeLimit(c.ct); got != c.want {
			t.Errorf("collectEitsTimeLimit(%v) = %v, want %v", c.ct, got, c.want)
		}
	}
}

func TestNextMidnight(t *testing.T) {
	noon := time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)
	want := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := nextMidnight(noon); !got.Equal(want) {
		t.Errorf("nextMidnight(noon) = %v, want %v", got, want)
	}

	exact := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	want2 := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	if got := nextMidnight(exact); !got.Equal(want2) {
		t.Errorf("nextMidnight(midnight) = %v, want %v (must roll to the *next* midnight)", got, want2)
	}
}

func TestTodayMidnight(t *testing.T) {
	noon := time.Date(2020, 1, 1, 12, 30, 0, 0, time.UTC)
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := todayMidnight(noon); !got.Equal(want) {
		t.Errorf("todayMidnight(noon) = %v, want %v", got, want)
	}
}

func TestEstimateTime_DefaultsBeforeAnySuccess(t *testing.T) {
	e := &Engine{}
	if got := e.estimateTime(); got != estimateTimeDefault {
		t.Errorf("estimateTime() with no prior sweep = %v, want default %v", got, estimateTimeDefault)
	}
}

func TestEstimateTime_TracksMaxElapsedPlusMargin(t *testing.T) {
	e := &Engine{}
	e.updateMaxElapsed(2 * time.Minute)
	e.updateMaxElapsed(1 * time.Minute) // smaller: must not regress the max
	want := 2*time.Minute + estimateTimeMargin
	if got := e.estimateTime(); got != want {
		t.Errorf("estimateTime() = %v, want %v", got, want)
	}

	e.updateMaxElapsed(3 * time.Minute)
	want = 3*time.Minute + estimateTimeMargin
	if got := e.estimateTime(); got != want {
		t.Errorf("estimateTime() after a larger elapsed = %v, want %v", got, want)
	}
}

func TestDecodeJSONList(t *testing.T) {
	out, err := decodeJSONList[epgmodel.TsService]([]byte(`[{"nid":1,"tsid":2,"sid":3,"name":"Example"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "Example" {
		t.Errorf("decodeJSONList = %+v", out)
	}

	empty, err := decodeJSONList[epgmodel.TsService](nil)
	if err != nil || empty != nil {
		t.Errorf("decodeJSONList(nil) = %+v, %v; want nil, nil", empty, err)
	}

	if _, err := decodeJSONList[epgmodel.TsService]([]byte(`not json`)); err == nil {
		t.Error("expected an error decoding malformed JSON")
	}
}

func newChannel(ct tunertypes.ChannelType, channel string, excluded ...uint16) tunertypes.EpgChannel {
	return tunertypes.EpgChannel{Name: channel, ChannelType: ct, Channel: channel, ExcludedServices: excluded}
}

func TestPrepareSchedules_CreatesAndGarbageCollects(t *testing.T) {
	triple1 := tunertypes.ServiceTriple{NetworkID: 1, TSID: 1, ServiceID: 1}
	triple2 := tunertypes.ServiceTriple{NetworkID: 1, TSID: 1, ServiceID: 2}

	now := time.Date(2020, 6, 1, 10, 0, 0, 0, time.UTC)
	e := &Engine{
		services: map[tunertypes.ServiceTriple]epgmodel.Service{
			triple1: {NetworkID: 1, TSID: 1, ServiceID: 1, Channel: newChannel(tunertypes.GR, "27")},
		},
		schedules: map[tunertypes.ServiceTriple]*epgmodel.Schedule{
			// A stale schedule for a service that no longer exists; must be GC'd.
			triple2: epgmodel.NewSchedule(triple2, now.Add(-24*time.Hour)),
		},
	}

	e.prepareSchedules(now)

	if _, ok := e.schedules[triple2]; ok {
		t.Error("expected schedule for a removed service to be garbage collected")
	}
	sc, ok := e.schedules[triple1]
	if !ok {
		t.Fatal("expected a schedule to be created for a known service with none yet")
	}
	if !sc.UpdatedAt.Equal(now) {
		t.Errorf("new schedule UpdatedAt = %v, want %v", sc.UpdatedAt, now)
	}
}

func TestPrepareSchedules_SavesOvernightOncePerDay(t *testing.T) {
	triple := tunertypes.ServiceTriple{NetworkID: 1, TSID: 1, ServiceID: 1}
	yesterday := time.Date(2020, 6, 1, 9, 0, 0, 0, time.UTC)
	sc := epgmodel.NewSchedule(triple, yesterday)
	sc.UpdatedAt = yesterday

	today := time.Date(2020, 6, 2, 10, 0, 0, 0, time.UTC)
	e := &Engine{
		services: map[tunertypes.ServiceTriple]epgmodel.Service{
			triple: {NetworkID: 1, TSID: 1, ServiceID: 1, Channel: newChannel(tunertypes.GR, "27")},
		},
		schedules: map[tunertypes.ServiceTriple]*epgmodel.Schedule{triple: sc},
	}

	e.prepareSchedules(today)

	if !e.schedules[triple].UpdatedAt.Equal(today) {
		t.Errorf("UpdatedAt = %v, want bumped to %v", e.schedules[triple].UpdatedAt, today)
	}

	// Calling again the same day must not re-trigger a stale-since-midnight save.
	sameLaterToday := today.Add(time.Hour)
	e.prepareSchedules(sameLaterToday)
	if e.schedules[triple].UpdatedAt.Equal(sameLaterToday) {
		t.Error("prepareSchedules should not touch UpdatedAt again within the same day")
	}
}

func TestDeriveChannelsByNetwork_MergesExcludedServices(t *testing.T) {
	e := &Engine{
		services: map[tunertypes.ServiceTriple]epgmodel.Service{
			{NetworkID: 1, TSID: 1, ServiceID: 1}: {
				NetworkID: 1,
				Channel:   newChannel(tunertypes.GR, "27", 10),
			},
			{NetworkID: 1, TSID: 1, ServiceID: 2}: {
				NetworkID: 1,
				Channel:   newChannel(tunertypes.GR, "27", 20),
			},
			{NetworkID: 2, TSID: 2, ServiceID: 1}: {
				NetworkID: 2,
				Channel:   newChannel(tunertypes.BS, "101"),
			},
		},
	}

	channels := e.deriveChannelsByNetwork()
	if len(channels) != 2 {
		t.Fatalf("expected one networkChannel per distinct network id, got %d", len(channels))
	}

	byNetwork := make(map[uint16]networkChannel)
	for _, nc := range channels {
		byNetwork[nc.networkID] = nc
	}

	nc1, ok := byNetwork[1]
	if !ok {
		t.Fatal("expected an entry for network 1")
	}
	if !nc1.excluded[10] || !nc1.excluded[20] {
		t.Errorf("expected excluded services from both network-1 services to merge, got %+v", nc1.excluded)
	}

	nc2, ok := byNetwork[2]
	if !ok {
		t.Fatal("expected an entry for network 2")
	}
	if len(nc2.excluded) != 0 {
		t.Errorf("expected no excluded services for network 2, got %+v", nc2.excluded)
	}
}
