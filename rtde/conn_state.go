package rtde

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-rtde/logger"
)

// ConnState represents the stages of an RTDE session.
//
// DisconnectedState, ConnectedState, StartedState and PausedState are ordered, in
// that order. ErrorState is outside the ordering: it is not "at least" any other
// state, and no ordered state is at least ErrorState.
type ConnState uint32

// RTDE session states.
const (
	// DisconnectedState indicates that no TCP connection is established.
	DisconnectedState ConnState = iota
	// ConnectedState indicates that the connection is established and negotiation or recipe setup may run.
	ConnectedState
	// StartedState indicates that data synchronization is running.
	StartedState
	// PausedState indicates that data synchronization is paused; recipes may be replaced.
	PausedState
	// ErrorState indicates an I/O failure that the session is recovering from.
	ErrorState
)

// AtLeast reports whether cs is at or beyond s in the state ordering.
func (cs ConnState) AtLeast(s ConnState) bool {
	if cs == ErrorState || s == ErrorState {
		return cs == s
	}

	return cs >= s
}

// CanSetup reports whether recipes may be negotiated in this state.
func (cs ConnState) CanSetup() bool {
	return cs == ConnectedState || cs == PausedState
}

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case DisconnectedState:
		return "disconnected"
	case ConnectedState:
		return "connected"
	case StartedState:
		return "started"
	case PausedState:
		return "paused"
	case ErrorState:
		return "error"
	default:
		return "unknown"
	}
}

var validTransitions = map[ConnState][]ConnState{
	DisconnectedState: {ConnectedState},
	ConnectedState:    {StartedState, PausedState, ErrorState, DisconnectedState},
	StartedState:      {PausedState, ErrorState, DisconnectedState},
	PausedState:       {StartedState, ErrorState, DisconnectedState},
	ErrorState:        {StartedState, PausedState, DisconnectedState},
}

// CanTransition reports whether the state machine allows moving from cs to next.
// A self transition is always allowed.
func (cs ConnState) CanTransition(next ConnState) bool {
	if cs == next {
		return true
	}
	for _, s := range validTransitions[cs] {
		if s == next {
			return true
		}
	}

	return false
}

// ConnStateChangeHandler is invoked after the session state changed.
//
// Note: the handler runs synchronously inside the transition. Take care with long-running implementations,
// and do not trigger another transition from it.
type ConnStateChangeHandler func(prevState ConnState, newState ConnState)

// ConnStateMgr manages the state of an RTDE session.
//
// It validates transitions, notifies handlers and lets goroutines wait for a state.
// It is safe for concurrent use.
type ConnStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ConnStateChangeHandler
}

// NewConnStateMgr creates a ConnStateMgr in DisconnectedState.
//
// A nil logger falls back to the package default logger.
func NewConnStateMgr(l logger.Logger, handlers ...ConnStateChangeHandler) *ConnStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &ConnStateMgr{
		logger:   l,
		handlers: make([]ConnStateChangeHandler, 0, len(handlers)),
	}
	mgr.cond = sync.NewCond(&mgr.mu)
	mgr.state.Store(uint32(DisconnectedState))
	mgr.AddHandler(handlers...)

	return mgr
}

// State returns the current state.
func (m *ConnStateMgr) State() ConnState {
	return ConnState(m.state.Load())
}

// AddHandler adds one or more handlers to be invoked on state changes.
func (m *ConnStateMgr) AddHandler(handlers ...ConnStateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// To transitions to newState.
//
// It returns an error wrapping ErrInvalidTransition when newState is not reachable from
// the current state. Moving to the current state is a no-op.
func (m *ConnStateMgr) To(newState ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	curState := m.State()
	if curState == newState {
		return nil
	}

	if !curState.CanTransition(newState) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, curState, newState)
	}

	m.setState(newState)
	m.invokeHandlers(curState, newState)

	return nil
}

// ToDisconnected transitions to DisconnectedState. It is allowed from any state.
func (m *ConnStateMgr) ToDisconnected() {
	_ = m.To(DisconnectedState)
}

// WaitState waits until the state equals state or ctx is done.
// It returns nil if the state is reached, or ctx.Err() otherwise.
func (m *ConnStateMgr) WaitState(ctx context.Context, state ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == state {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	for m.State() != state {
		if err := ctx.Err(); err != nil {
			m.logger.Debug("wait session state canceled", "cur_state", m.State(), "desired_state", state)
			return err
		}
		m.cond.Wait()
	}

	return nil
}

// IsConnected reports whether the session is connected and not in ErrorState.
func (m *ConnStateMgr) IsConnected() bool {
	return m.State().AtLeast(ConnectedState)
}

// IsStarted reports whether data synchronization is running.
func (m *ConnStateMgr) IsStarted() bool {
	return m.State() == StartedState
}

// setState stores newState and wakes every waiter. Callers hold m.mu.
func (m *ConnStateMgr) setState(newState ConnState) {
	m.state.Store(uint32(newState))
	m.cond.Broadcast()
}

func (m *ConnStateMgr) invokeHandlers(prevState ConnState, newState ConnState) {
	for _, handler := range m.handlers {
		handler(prevState, newState)
	}
}
