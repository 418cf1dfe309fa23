package fsm

import (
	"fmt"
	"sync"
)

type State string
type Event string

// Handler is executed when a transition occurs
type Handler func(event Event, args ...interface{}) error

type StateMachine struct {
	mu          sync.RWMutex
	current     State
	transitions map[State]map[Event]State
	callbacks   map[State]map[Event]Handler
}

func New(initial State) *StateMachine {
	return &StateMachine{
		current:     initial,
		transitions: make(map[State]map[Event]State),
		callbacks:   make(map[State]map[Event]Handler),
	}
}

func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *StateMachine) AddTransition(from, to State, event Event, callback Handler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.transitions[from]; !ok {
		sm.transitions[from] = make(map[Event]State)
		sm.callbacks[from] = make(map[Event]Handler)
	}
	sm.transitions[from][event] = to
	sm.callbacks[from][event] = callback
}

// Fire triggers a state transition. It is thread-safe, and the transition
// callback runs outside the lock so it may Fire follow-up events itself.
// The state is committed before the callback runs; a callback error is
// returned to the caller but does not roll the state back.
func (sm *StateMachine) Fire(event Event, args ...interface{}) error {
	sm.mu.Lock()

	next, ok := sm.transitions[sm.current][event]
	if !ok {
		current := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("invalid transition from %s via %s", current, event)
	}

	handler := sm.callbacks[sm.current][event]
	sm.current = next
	sm.mu.Unlock()

	if handler != nil {
		return handler(event, args...)
	}
	return nil
}

// Personal.AI order the ending
