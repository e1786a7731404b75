// Package screen tracks the lifecycle of a single chat screen, from first
// subscription to dismissal.
package screen

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mrezende/courier/internal/bus"
)

// State represents a chat screen lifecycle state.
type State string

const (
	// Idle is the initial state before any subscription exists.
	Idle State = "IDLE"
	// Loading means the thread subscription is being established.
	Loading State = "LOADING"
	// Live means messages render and sends go through the orchestrator.
	Live State = "LIVE"
	// Transitioning covers the first send in a brand-new chat: the
	// conversation is being created and the screen re-subscribes under
	// the new conversation id.
	Transitioning State = "TRANSITIONING"
	// Closed is terminal; reached only when the screen is dismissed and
	// its subscriptions are torn down.
	Closed State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Idle:          {Loading, Closed},
	Loading:       {Live, Closed},
	Live:          {Transitioning, Closed},
	Transitioning: {Live, Closed},
	Closed:        {},
}

// Machine tracks and enforces one chat screen's state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Idle. The bus may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Key:       "screen/state_changed",
			Timestamp: time.Now(),
			Value: StateChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StateChange is the payload for state change events.
type StateChange struct {
	From State
	To   State
}
