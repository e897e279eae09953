package spkthread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-spk/internal/pool"
	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
)

// DriverThread runs one speech synthesizer backend on a dedicated goroutine
// locked to a single OS thread.
//
// All backend calls happen on that goroutine. Callers talk to it through
// commands (SayText, MuteSpeech, ...), one outstanding command at a time, and
// receive speech progress through the notification outbox.
//
// A DriverThread is created by Start and must be released with Stop.
type DriverThread struct {
	cfg    *Config
	synth  spk.Synthesizer
	params spk.Parameters

	logger   logger.Logger
	stateMgr *spk.ThreadStateMgr
	taskMgr  *spk.TaskManager
	metrics  DriverMetrics

	// startup handshake, answered once by the worker
	startReply chan int
	// closed when the worker body returns
	done     chan struct{}
	threadID atomic.Int64

	// inbox carries commands to the worker; nil is the stop sentinel
	inbox       chan *spk.Command
	inboxMu     sync.RWMutex
	inboxClosed bool

	// issueMu serializes Call so a handle has at most one outstanding command
	issueMu sync.Mutex
	replies *xsync.MapOf[uint32, chan int]

	outbox       chan *spk.Notification
	outboxMu     sync.RWMutex
	outboxClosed bool
	// number of running ServeNotifications loops
	serving atomic.Int32

	stopped atomic.Bool
}

// Start creates a driver thread for synth and waits until the backend is
// constructed.
//
// ctx bounds only the start handshake; the worker itself runs until Stop.
// If construction fails, or does not complete within the start timeout, the
// worker is told to quit and joined before Start returns the error
// (spk.ErrConstructFailed or spk.ErrStartTimeout).
func Start(ctx context.Context, synth spk.Synthesizer, params spk.Parameters, opts ...Option) (*DriverThread, error) {
	if synth == nil {
		return nil, fmt.Errorf("%w: nil synthesizer", spk.ErrConstructFailed)
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	dt := newDriverThread(ctx, cfg, synth, params)

	if err := dt.taskMgr.Start("driver-thread", dt.run); err != nil {
		dt.shutdown()

		return nil, fmt.Errorf("%w: %w", spk.ErrConstructFailed, err)
	}

	timer := pool.GetTimer(cfg.startTimeout)
	defer pool.PutTimer(timer)

	select {
	case ok := <-dt.startReply:
		if ok != 0 {
			dt.logger.Info("driver thread started", "tid", dt.ThreadID())
			return dt, nil
		}

		dt.shutdown()
		dt.logger.Error("speech driver construction failed")

		return nil, spk.ErrConstructFailed

	case <-timer.C:
		dt.logger.Error("driver thread start timeout", "timeout", cfg.startTimeout)
		dt.taskMgr.Stop()
		dt.shutdown()

		return nil, spk.ErrStartTimeout

	case <-ctx.Done():
		dt.taskMgr.Stop()
		dt.shutdown()

		return nil, fmt.Errorf("%w: %w", spk.ErrStartTimeout, ctx.Err())
	}
}

func newDriverThread(ctx context.Context, cfg *Config, synth spk.Synthesizer, params spk.Parameters) *DriverThread {
	l := cfg.logger.With("component", "spkthread", "driver", cfg.driverName)

	dt := &DriverThread{
		cfg:        cfg,
		synth:      synth,
		params:     params,
		logger:     l,
		stateMgr:   spk.NewThreadStateMgr(l, cfg.stateHandlers...),
		taskMgr:    spk.NewTaskManager(context.WithoutCancel(ctx), l),
		startReply: make(chan int, 1),
		done:       make(chan struct{}),
		inbox:      make(chan *spk.Command, 1),
		replies:    xsync.NewMapOf[uint32, chan int](),
		outbox:     make(chan *spk.Notification, cfg.notificationQueueSize),
	}

	return dt
}

// Stop stops the driver thread and releases the handle.
//
// It queues the stop sentinel, waits up to the stop timeout for the worker to
// finish, then cancels the worker's context if it has not and always joins
// the worker before returning. A backend call already in progress is not
// interrupted, so Stop returns only after it does.
//
// Stop returns spk.ErrStopTimeout when the worker had to be cancelled.
// Calling Stop again returns nil.
func (dt *DriverThread) Stop(ctx context.Context) error {
	if !dt.stopped.CompareAndSwap(false, true) {
		return nil
	}

	dt.logger.Debug("stopping driver thread", "state", dt.State())

	var stopErr error
	if err := dt.queueCommand(ctx, nil); err != nil {
		dt.logger.Warn("failed to queue stop command", "error", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, dt.cfg.stopTimeout)
	err := dt.stateMgr.WaitState(waitCtx, spk.FinishedState)
	cancel()

	if err != nil {
		dt.logger.Warn("driver thread stop timeout, cancelling worker",
			"timeout", dt.cfg.stopTimeout, "state", dt.State())
		dt.taskMgr.Stop()
		stopErr = spk.ErrStopTimeout
	}

	dt.shutdown()
	dt.logger.Info("driver thread stopped")

	return stopErr
}

// shutdown joins the worker and releases what it left behind.
func (dt *DriverThread) shutdown() {
	dt.stopped.Store(true)
	dt.taskMgr.Wait()
	dt.taskMgr.Stop()

	dt.closeInbox()
	dt.closeOutbox()
}

// State returns the lifecycle state of the driver thread.
func (dt *DriverThread) State() spk.ThreadState {
	return dt.stateMgr.State()
}

// ThreadID returns the OS thread the worker is locked to, or 0 when it is
// unknown (non-Linux platforms, or before the worker started).
func (dt *DriverThread) ThreadID() int {
	return int(dt.threadID.Load())
}

// DriverName returns the configured driver name.
func (dt *DriverThread) DriverName() string {
	return dt.cfg.driverName
}

// GetLogger returns the driver thread logger.
func (dt *DriverThread) GetLogger() logger.Logger {
	return dt.logger
}

// GetMetrics returns the driver thread metrics.
func (dt *DriverThread) GetMetrics() *DriverMetrics {
	return &dt.metrics
}

// Done returns a channel closed when the worker has returned.
func (dt *DriverThread) Done() <-chan struct{} {
	return dt.done
}
