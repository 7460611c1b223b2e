package state

import (
	"errors"
	"sync"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// 阶段状态机
//
// Phases only move forward along lobby→countdown→prep→explore→result.
// Skipping ahead is allowed (a dropped connection can force result from
// any running phase); the single backward edge is result→lobby for a
// rematch. Extra conditions can be attached per edge with AddTransition.
type Machine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	onEnter      map[Phase][]func(from Phase)
	onExit       map[Phase][]func(to Phase)
	mutex        sync.RWMutex
}

func NewMachine(initial Phase) *Machine {
	return &Machine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
		onEnter:      make(map[Phase][]func(Phase)),
		onExit:       make(map[Phase][]func(Phase)),
	}
}

// CanTransition reports whether from→to is an edge of the phase graph.
func CanTransition(from, to Phase) bool {
	if from == PhaseResult && to == PhaseLobby {
		return true
	}
	return from.Valid() && to.Valid() && to.order() > from.order()
}

func (sm *Machine) ChangeState(newState Phase) error {
	sm.mutex.Lock()
	current := sm.currentState
	if !CanTransition(current, newState) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	// 检查是否有转换条件
	if conditions, exists := sm.transitions[current]; exists {
		if condition, exists := conditions[newState]; exists {
			if condition != nil && !condition() {
				sm.mutex.Unlock()
				return ErrTransitionNotAllowed
			}
		}
	}

	sm.currentState = newState
	exits := sm.onExit[current]
	enters := sm.onEnter[newState]
	sm.mutex.Unlock()

	// hooks run without the lock so they may read Current
	for _, fn := range exits {
		fn(newState)
	}
	for _, fn := range enters {
		fn(current)
	}
	return nil
}

func (sm *Machine) Current() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Restore sets the phase without validation or hooks. Used when a room is
// rebuilt from a checkpoint.
func (sm *Machine) Restore(p Phase) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.currentState = p
}

func (sm *Machine) AddTransition(from, to Phase, condition func() bool) error {
	if !CanTransition(from, to) {
		return ErrTransitionNotAllowed
	}
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnEnter registers fn to run after the machine enters p.
func (sm *Machine) OnEnter(p Phase, fn func(from Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.onEnter[p] = append(sm.onEnter[p], fn)
}

// OnExit registers fn to run after the machine leaves p.
func (sm *Machine) OnExit(p Phase, fn func(to Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.onExit[p] = append(sm.onExit[p], fn)
}
