// Package registry holds the process-wide, externally-queryable snapshot of
// EPG state (services, programs, clocks) behind a single atomic pointer, so
// readers (the HTTP query surface) never block on the EPG engine's writers
// (spec.md §5's lock-free-read requirement; see DESIGN.md's Open Question
// decision on why this departs from the teacher's sync.RWMutex).
package registry

import (
	"sync/atomic"

	"github.com/mirakctl/mirakctl/internal/epgmodel"
	"github.com/mirakctl/mirakctl/internal/tunertypes"
)

// Snapshot is one immutable, fully-built view of EPG state. A writer never
// mutates a published Snapshot; it builds a new one and swaps it in.
type Snapshot struct {
	Services map[tunertypes.ServiceTriple]epgmodel.ServiceModel
	Programs map[tunertypes.EventQuad]*epgmodel.ProgramModel
	Clocks   map[tunertypes.ServiceTriple]epgmodel.Clock
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Services: map[tunertypes.ServiceTriple]epgmodel.ServiceModel{},
		Programs: map[tunertypes.EventQuad]*epgmodel.ProgramModel{},
		Clocks:   map[tunertypes.ServiceTriple]epgmodel.Clock{},
	}
}

// Registry is the lock-free holder for the current Snapshot.
type Registry struct {
	current atomic.Pointer[Snapshot]
}

// New returns a Registry initialized to an empty snapshot.
func New() *Registry {
	r := &Registry{}
	r.current.Store(emptySnapshot())
	return r
}

// Snapshot returns the currently published snapshot. Safe for concurrent
// use; never blocks on a writer.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// UpdateServices replaces the published service set, leaving programs and
// clocks untouched, by building and swapping in an entirely new Snapshot.
func (r *Registry) UpdateServices(services map[tunertypes.ServiceTriple]epgmodel.Service) {
	prev := r.current.Load()
	next := &Snapshot{
		Services: make(map[tunertypes.ServiceTriple]epgmodel.ServiceModel, len(services)),
		Programs: prev.Programs,
		Clocks:   prev.Clocks,
	}
	for triple, sv := range services {
		next.Services[triple] = sv.ToModel()
	}
	r.current.Store(next)
}

// UpdateClocks replaces the published clock set, leaving services and
// programs untouched.
func (r *Registry) UpdateClocks(clocks map[tunertypes.ServiceTriple]epgmodel.Clock) {
	prev := r.current.Load()
	next := &Snapshot{
		Services: prev.Services,
		Programs: prev.Programs,
		Clocks:   clocks,
	}
	r.current.Store(next)
}

// UpdateEpg replaces the published program set, leaving services and clocks
// untouched. Callers build programs by calling Schedule.CollectPrograms
// across every known schedule (spec.md §4.2's update_schedules task).
func (r *Registry) UpdateEpg(programs map[tunertypes.EventQuad]*epgmodel.ProgramModel) {
	prev := r.current.Load()
	next := &Snapshot{
		Services: prev.Services,
		Programs: programs,
		Clocks:   prev.Clocks,
	}
	r.current.Store(next)
}
