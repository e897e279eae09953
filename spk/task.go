package spk

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-spk/logger"
)

// taskStartTimeout bounds the wait for a new goroutine to report that it runs.
const taskStartTimeout = 5 * time.Second

// TaskFunc is the body of a task started by TaskManager.Start. It should
// return when ctx is done.
type TaskFunc func(ctx context.Context)

// TaskManager manages the lifecycle of goroutines (tasks): a driver thread's
// worker, and the main loop's notification consumer.
//
// The TaskManager uses a context.Context to manage the lifecycle of the
// goroutines. When Stop is called, the context handed to every task is
// canceled. Wait blocks until all tasks have returned, which is the join of
// a driver thread.
//
// Example Usage:
//
//	taskMgr := spk.NewTaskManager(ctx, logger)
//
//	taskMgr.Start("notifications", func(ctx context.Context) {
//	    dt.ServeNotifications(ctx, handler)
//	})
//
//	// ... other operations ...
//
//	taskMgr.Stop()
//	taskMgr.Wait()
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewTaskManager creates a new TaskManager with the given context as the parent context and logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	if l == nil {
		l = logger.GetLogger()
	}

	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context currently handed to new tasks.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start starts a goroutine running taskFunc once.
//
// It returns after the goroutine has started. A panic in taskFunc is
// recovered and logged; the task then counts as terminated.
func (mgr *TaskManager) Start(name string, taskFunc TaskFunc) error {
	mgr.logger.Debug("start task", "name", name)

	starter, err := mgr.newTaskStarter(name)
	if err != nil {
		return err
	}

	starter.startTask(func(ctx context.Context) {
		mgr.callWithRecover(name, func() { taskFunc(ctx) })
	})

	return starter.waitForStart()
}

// callWithRecover calls a function with panic protection
func (mgr *TaskManager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

// Stop signals all running goroutines by canceling their context.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.cancel != nil {
		mgr.cancel()
	}
}

// Wait waits for all goroutines to terminate.
//
// Afterwards a fresh context is derived from the parent so the manager can
// start new tasks.
func (mgr *TaskManager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.cancel()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}

// taskStarter encapsulates common startup logic
type taskStarter struct {
	mgr     *TaskManager
	name    string
	ctx     context.Context
	started chan struct{}
}

func (mgr *TaskManager) newTaskStarter(name string) (*taskStarter, error) {
	ctx := mgr.Context()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("task manager already stopped")
	default:
	}

	return &taskStarter{
		mgr:     mgr,
		name:    name,
		ctx:     ctx,
		started: make(chan struct{}),
	}, nil
}

// startTask runs the common startup sequence for all tasks
func (s *taskStarter) startTask(taskBody func(ctx context.Context)) {
	s.mgr.taskMu.RLock()
	defer s.mgr.taskMu.RUnlock()

	s.mgr.wg.Add(1)
	s.mgr.count.Add(1)

	go func() {
		defer s.mgr.wg.Done()
		defer func() {
			s.mgr.count.Add(-1)
			s.mgr.logger.Debug(fmt.Sprintf("%s task terminated", s.name), "task_count", s.mgr.TaskCount())
		}()

		close(s.started)
		taskBody(s.ctx)
	}()
}

// waitForStart waits for the task goroutine to be scheduled.
func (s *taskStarter) waitForStart() error {
	select {
	case <-s.started:
		return nil
	case <-time.After(taskStartTimeout):
		return fmt.Errorf("timeout waiting for %s to start", s.name)
	}
}
