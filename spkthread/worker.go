package spkthread

import (
	"context"
	"runtime"
	"time"

	"github.com/arloliu/go-spk/internal/osthread"
	"github.com/arloliu/go-spk/spk"
)

// run is the worker body. It is the only code that calls the backend.
//
// The goroutine stays locked to its OS thread until it exits, so the thread
// is discarded with the goroutine instead of being reused with whatever
// thread-local state the backend left behind.
//
// Teardown is deferred: however run leaves, a constructed backend is
// destructed once, the thread ends Finished and Start gets an answer.
func (dt *DriverThread) run(ctx context.Context) {
	runtime.LockOSThread()
	defer close(dt.done)

	dt.threadID.Store(int64(osthread.ID()))

	constructed, answered := false, false
	defer func() {
		_ = dt.stateMgr.ToStopping()

		if constructed {
			dt.destruct()
		}

		dt.dropAllReplies()
		_ = dt.stateMgr.ToFinished()

		if !answered {
			dt.startReply <- 0
		}
	}()

	if err := dt.stateMgr.ToStarting(); err != nil {
		dt.logger.Error("driver thread start aborted", "error", err)
		return
	}

	if constructed = dt.construct(); !constructed {
		return
	}

	if err := dt.stateMgr.ToReady(); err != nil {
		dt.logger.Error("driver thread start aborted", "error", err)
		return
	}

	answered = true
	dt.startReply <- 1

	dt.commandLoop(ctx)
}

func (dt *DriverThread) construct() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			dt.logger.Error("panic in speech driver construction", "panic", r)
			ok = false
		}
	}()

	if err := dt.synth.Construct(&driverNotifier{dt: dt}, dt.params); err != nil {
		dt.logger.Error("speech driver construction failure", "error", err)
		return false
	}

	return true
}

func (dt *DriverThread) destruct() {
	defer func() {
		if r := recover(); r != nil {
			dt.logger.Error("panic in speech driver destruction", "panic", r)
		}
	}()

	dt.synth.Destruct()
}

// commandLoop executes commands until the stop sentinel arrives or ctx is done.
func (dt *DriverThread) commandLoop(ctx context.Context) {
	idle := time.NewTicker(dt.cfg.idleInterval)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			dt.logger.Debug("driver thread cancelled")
			return

		case cmd := <-dt.inbox:
			if cmd == nil {
				dt.logger.Debug("stop command received")
				return
			}

			dt.executeCommand(cmd)
			idle.Reset(dt.cfg.idleInterval)

		case <-idle.C:
			dt.metrics.incIdleTickCount()
		}
	}
}

// executeCommand performs one backend call, releases cmd and answers its caller.
func (dt *DriverThread) executeCommand(cmd *spk.Command) {
	id, kind := cmd.ID(), cmd.Kind()

	result := dt.dispatch(cmd)
	cmd.Release()

	dt.respond(id, kind, result)
}

func (dt *DriverThread) dispatch(cmd *spk.Command) (result int) {
	defer func() {
		if r := recover(); r != nil {
			dt.logger.Error("panic in speech driver call", "command", cmd.Kind(), "panic", r)
			result = 0
		}
	}()

	switch kind := cmd.Kind(); kind {
	case spk.SayTextCommand:
		dt.synth.Say(cmd.Text(), cmd.Count(), cmd.Attributes())
		return 1

	case spk.MuteSpeechCommand:
		dt.synth.Mute()
		return 1

	case spk.DoTrackCommand:
		t, ok := dt.synth.(spk.Tracker)
		if !ok {
			return dt.unsupported(kind)
		}
		t.DoTrack()

		return 1

	case spk.GetTrackCommand:
		t, ok := dt.synth.(spk.Tracker)
		if !ok {
			return dt.unsupported(kind)
		}

		return t.GetTrack()

	case spk.IsSpeakingCommand:
		t, ok := dt.synth.(spk.Tracker)
		if !ok {
			return dt.unsupported(kind)
		}
		if t.IsSpeaking() {
			return 1
		}

		return 0

	case spk.SetVolumeCommand:
		s, ok := dt.synth.(spk.VolumeSetter)
		if !ok {
			return dt.unsupported(kind)
		}
		s.SetVolume(cmd.Setting())

		return 1

	case spk.SetRateCommand:
		s, ok := dt.synth.(spk.RateSetter)
		if !ok {
			return dt.unsupported(kind)
		}
		s.SetRate(cmd.Setting())

		return 1

	case spk.SetPitchCommand:
		s, ok := dt.synth.(spk.PitchSetter)
		if !ok {
			return dt.unsupported(kind)
		}
		s.SetPitch(cmd.Setting())

		return 1

	case spk.SetPunctuationCommand:
		s, ok := dt.synth.(spk.PunctuationSetter)
		if !ok {
			return dt.unsupported(kind)
		}
		s.SetPunctuation(cmd.Punctuation())

		return 1

	default:
		dt.logger.Warn("unimplemented driver command type", "command", kind, "error", spk.ErrUnknownCommand)
		return 0
	}
}

func (dt *DriverThread) unsupported(kind spk.CommandKind) int {
	dt.logger.Debug("command not supported by speech driver", "command", kind, "error", spk.ErrUnsupportedByDriver)
	return 0
}

// respond hands result to the caller waiting for command id. Responses whose
// caller already gave up are dropped.
func (dt *DriverThread) respond(id uint32, kind spk.CommandKind, result int) {
	replyCh, ok := dt.replies.LoadAndDelete(id)
	if !ok || replyCh == nil {
		dt.metrics.incLateResponseCount()
		dt.logger.Warn("late driver response dropped", "command", kind, "id", id, "result", result)

		return
	}

	replyCh <- result
}

// dropAllReplies wakes every caller still waiting when the worker exits.
func (dt *DriverThread) dropAllReplies() {
	dt.replies.Range(func(id uint32, _ chan int) bool {
		if ch, ok := dt.replies.LoadAndDelete(id); ok && ch != nil {
			close(ch)
		}

		return true
	})
}
