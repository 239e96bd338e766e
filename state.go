package authflow

import (
	"fmt"
	"sync"
)

// StateKind is the discriminant of [AuthState].
type StateKind uint8

const (
	// StateLoading is the initial state and the state while an action is in flight.
	StateLoading StateKind = iota
	// StateUnauthenticated means no session is active.
	StateUnauthenticated
	// StateAuthenticated means a session is active.
	StateAuthenticated
	// StateError means the last action failed; see AuthState.Err and Message.
	StateError
)

func (k StateKind) String() string {
	switch k {
	case StateLoading:
		return "Loading"
	case StateUnauthenticated:
		return "Unauthenticated"
	case StateAuthenticated:
		return "Authenticated"
	case StateError:
		return "Error"
	default:
		return "StateKind(" + fmt.Sprint(uint8(k)) + ")"
	}
}

// AuthState is the observable state of a [Coordinator]. Err and Message are set
// only when Kind is StateError.
type AuthState struct {
	Kind    StateKind
	Err     ErrorKind
	Message string
}

func (s AuthState) String() string {
	if s.Kind == StateError {
		return fmt.Sprintf("Error(%s, %q)", s.Err, s.Message)
	}
	return s.Kind.String()
}

var (
	stateLoading         = AuthState{Kind: StateLoading}
	stateUnauthenticated = AuthState{Kind: StateUnauthenticated}
	stateAuthenticated   = AuthState{Kind: StateAuthenticated}
)

func errorState(kind ErrorKind, message string) AuthState {
	return AuthState{Kind: StateError, Err: kind, Message: message}
}

// allowedTransitions is the state graph. Unauthenticated and Error may move to
// Error directly because pre-flight rejections (offline, invalid input, rate
// limited) happen before the Loading step.
var allowedTransitions = map[StateKind][]StateKind{
	StateLoading:         {StateAuthenticated, StateUnauthenticated, StateError},
	StateUnauthenticated: {StateLoading, StateError},
	StateError:           {StateLoading, StateUnauthenticated, StateError},
	StateAuthenticated:   {StateUnauthenticated},
}

func canTransition(from, to StateKind) bool {
	for _, k := range allowedTransitions[from] {
		if k == to {
			return true
		}
	}
	return false
}

// stateMachine holds the current state and fans transitions out to
// subscribers. Subscriber channels keep only the most recent states: when a
// subscriber falls behind, the oldest pending state is discarded.
type stateMachine struct {
	mu      sync.Mutex
	current AuthState
	subs    map[uint64]chan AuthState
	nextID  uint64
	closed  bool
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: stateLoading,
		subs:    make(map[uint64]chan AuthState),
	}
}

func (m *stateMachine) get() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// transition moves to next if the graph allows it and reports whether it did.
func (m *stateMachine) transition(next AuthState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !canTransition(m.current.Kind, next.Kind) {
		return false
	}
	m.setLocked(next)
	return true
}

// transitionFrom moves to next only when the current kind is from.
func (m *stateMachine) transitionFrom(from StateKind, next AuthState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current.Kind != from || !canTransition(from, next.Kind) {
		return false
	}
	m.setLocked(next)
	return true
}

// force sets next regardless of the graph. Sign-out uses it: local session
// clearing must win over whatever state the machine is in.
func (m *stateMachine) force(next AuthState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(next)
}

func (m *stateMachine) setLocked(next AuthState) {
	m.current = next
	for _, ch := range m.subs {
		publish(ch, next)
	}
}

func publish(ch chan AuthState, s AuthState) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (m *stateMachine) subscribe(buffer int) (<-chan AuthState, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan AuthState, buffer)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	ch <- m.current

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if sub, ok := m.subs[id]; ok {
				delete(m.subs, id)
				close(sub)
			}
		})
	}
}

func (m *stateMachine) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.subs {
		delete(m.subs, id)
		close(ch)
	}
}
