package storage

import (
	"sort"
	"sync"

	"github.com/sentinelwatch/sentinel/types"
)

// Phase tracks where an entity is in the check lifecycle. Exactly one
// request is in flight per entity at a time.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmittingCheck
	PhaseAwaitingCheckResult
	PhaseSubmittingReveal
	PhaseAwaitingRevealResult
	PhaseResolvedSafe
	PhaseResolvedAtRisk
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmittingCheck:
		return "submitting-check"
	case PhaseAwaitingCheckResult:
		return "awaiting-check"
	case PhaseSubmittingReveal:
		return "submitting-reveal"
	case PhaseAwaitingRevealResult:
		return "awaiting-reveal"
	case PhaseResolvedSafe:
		return "resolved-safe"
	case PhaseResolvedAtRisk:
		return "resolved-at-risk"
	}
	return "unknown"
}

// EntityState is the registry's view of one monitored entity.
type EntityState struct {
	Entity      types.MonitoredEntity
	Phase       Phase
	RequestID   uint64
	SubmittedAt int64
}

// EntityRegistry implements a thread-safe registry of monitored entities
// and their lifecycle state.
type EntityRegistry struct {
	*sync.RWMutex
	store map[uint32]*EntityState
}

func NewEntityRegistry() *EntityRegistry {
	r := EntityRegistry{
		RWMutex: &sync.RWMutex{},
		store:   map[uint32]*EntityState{},
	}
	return &r
}

// Put inserts or replaces the state of an entity.
func (r *EntityRegistry) Put(state *EntityState) {
	r.Lock()
	defer r.Unlock()
	r.store[state.Entity.ID] = state
}

// Get returns a copy of the entity's state.
func (r *EntityRegistry) Get(id uint32) (EntityState, bool) {
	r.RLock()
	defer r.RUnlock()
	state, ok := r.store[id]
	if !ok {
		return EntityState{}, false
	}
	return *state, true
}

// Del drops an entity that is no longer reported by the position source.
func (r *EntityRegistry) Del(id uint32) {
	r.Lock()
	defer r.Unlock()
	delete(r.store, id)
}

// SetPhase transitions the entity's lifecycle phase, recording the request
// identifier that drove the transition.
func (r *EntityRegistry) SetPhase(id uint32, phase Phase, requestID uint64, submittedAt int64) {
	r.Lock()
	defer r.Unlock()
	state, ok := r.store[id]
	if !ok {
		return
	}
	state.Phase = phase
	state.RequestID = requestID
	state.SubmittedAt = submittedAt
}

// Touch refreshes the entity metadata in place, leaving the lifecycle
// fields untouched.
func (r *EntityRegistry) Touch(entity types.MonitoredEntity) {
	r.Lock()
	defer r.Unlock()
	state, ok := r.store[entity.ID]
	if !ok {
		return
	}
	state.Entity = entity
}

// All returns a snapshot of all tracked states ordered by entity id, so a
// monitoring cycle visits entities deterministically.
func (r *EntityRegistry) All() []EntityState {
	r.RLock()
	defer r.RUnlock()
	states := make([]EntityState, 0, len(r.store))
	for _, state := range r.store {
		states = append(states, *state)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].Entity.ID < states[j].Entity.ID
	})
	return states
}

// Len returns the number of tracked entities.
func (r *EntityRegistry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.store)
}
