package spk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-spk/logger"
)

// ThreadState represents the lifecycle phase of a speech driver thread.
type ThreadState uint32

// Driver thread states, in lifecycle order.
const (
	// ConstructingState indicates that the handle exists but its thread has not started.
	ConstructingState ThreadState = iota
	// StartingState indicates that the thread runs and the backend is being constructed.
	StartingState
	// ReadyState indicates that the backend is constructed and commands are processed.
	ReadyState
	// StoppingState indicates that the backend is being torn down.
	StoppingState
	// FinishedState is terminal: the thread body has completed or is about to return.
	FinishedState
)

// String returns string representation of the state.
func (s ThreadState) String() string {
	switch s {
	case ConstructingState:
		return "constructing"
	case StartingState:
		return "starting"
	case ReadyState:
		return "ready"
	case StoppingState:
		return "stopping"
	case FinishedState:
		return "finished"
	default:
		return "unknown"
	}
}

// CanTransitionTo reports whether next may directly follow s.
//
// Transitions are monotonic; StoppingState is reachable from ReadyState
// (normal shutdown) and from StartingState (construction failure).
func (s ThreadState) CanTransitionTo(next ThreadState) bool {
	switch s {
	case ConstructingState:
		return next == StartingState
	case StartingState:
		return next == ReadyState || next == StoppingState
	case ReadyState:
		return next == StoppingState
	case StoppingState:
		return next == FinishedState
	case FinishedState:
		return false
	default:
		return false
	}
}

// ThreadStateChangeHandler is invoked after every state transition, on the
// goroutine performing it. A panicking handler is recovered and logged.
type ThreadStateChangeHandler func(prevState ThreadState, newState ThreadState)

// ThreadStateMgr manages the lifecycle state of a driver thread.
//
// The state is written by exactly one goroutine, the driver thread itself, and
// may be read from any goroutine. WaitState lets other goroutines block until a
// given state is reached.
type ThreadStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []ThreadStateChangeHandler
}

// NewThreadStateMgr creates a ThreadStateMgr in ConstructingState.
func NewThreadStateMgr(l logger.Logger, handlers ...ThreadStateChangeHandler) *ThreadStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &ThreadStateMgr{logger: l}
	mgr.cond = sync.NewCond(&mgr.mu)
	mgr.state.Store(uint32(ConstructingState))
	mgr.AddHandler(handlers...)

	return mgr
}

// State returns the current state.
func (m *ThreadStateMgr) State() ThreadState {
	return ThreadState(m.state.Load())
}

// AddHandler adds state change handlers. Nil handlers are ignored.
func (m *ThreadStateMgr) AddHandler(handlers ...ThreadStateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			m.handlers = append(m.handlers, h)
		}
	}
}

// IsReady reports whether the driver thread accepts commands.
func (m *ThreadStateMgr) IsReady() bool { return m.State() == ReadyState }

// IsFinished reports whether the driver thread reached its terminal state.
func (m *ThreadStateMgr) IsFinished() bool { return m.State() == FinishedState }

// ToStarting moves from ConstructingState to StartingState.
func (m *ThreadStateMgr) ToStarting() error { return m.transition(StartingState) }

// ToReady moves from StartingState to ReadyState.
func (m *ThreadStateMgr) ToReady() error { return m.transition(ReadyState) }

// ToStopping moves from ReadyState, or from StartingState after a failed
// construction, to StoppingState.
func (m *ThreadStateMgr) ToStopping() error { return m.transition(StoppingState) }

// ToFinished moves from StoppingState to FinishedState.
func (m *ThreadStateMgr) ToFinished() error { return m.transition(FinishedState) }

func (m *ThreadStateMgr) transition(next ThreadState) error {
	m.mu.Lock()
	cur := m.State()
	if !cur.CanTransitionTo(next) {
		m.mu.Unlock()
		m.logger.Warn("invalid driver thread transition", "cur_state", cur, "desired_state", next)

		return ErrInvalidTransition
	}

	m.state.Store(uint32(next))
	m.cond.Broadcast()
	handlers := m.handlers
	m.mu.Unlock()

	m.logger.Debug("driver thread " + next.String())

	var err error
	for _, h := range handlers {
		if herr := m.callHandler(h, cur, next); herr != nil && err == nil {
			err = herr
		}
	}

	return err
}

// callHandler runs h, turning a panic into ErrStateHandlerPanic so the
// remaining handlers still run.
func (m *ThreadStateMgr) callHandler(h ThreadStateChangeHandler, prev, next ThreadState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic in state change handler", "prev_state", prev, "new_state", next, "panic", r)
			err = fmt.Errorf("%w: %v", ErrStateHandlerPanic, r)
		}
	}()

	h(prev, next)

	return nil
}

// WaitState waits for the state to reach at least the specified state, or
// until the context is done.
//
// Because states are monotonic, waiting for StoppingState also returns once
// the thread is finished. It returns nil if the desired state is reached, or
// the context error otherwise.
func (m *ThreadStateMgr) WaitState(ctx context.Context, state ThreadState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() >= state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stopFunc()

	for m.State() < state {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.cond.Wait()
	}

	return nil
}
