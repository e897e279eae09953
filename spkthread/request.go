package spkthread

import (
	"context"
	"errors"
	"fmt"

	"github.com/arloliu/go-spk/internal/pool"
	"github.com/arloliu/go-spk/spk"
)

// SayText speaks text. attributes is optional and, when given, holds one byte
// per character of text.
func (dt *DriverThread) SayText(ctx context.Context, text []byte, attributes []byte) bool {
	cmd, err := spk.NewSayTextCommandWithPacker(dt.cfg.packer, text, attributes)
	return dt.callInt(ctx, spk.SayTextCommand, cmd, err) != 0
}

// MuteSpeech silences speech immediately.
func (dt *DriverThread) MuteSpeech(ctx context.Context) bool {
	cmd, err := spk.NewMuteSpeechCommand()
	return dt.callInt(ctx, spk.MuteSpeechCommand, cmd, err) != 0
}

// DoTrack asks the backend to update its speech tracking position.
func (dt *DriverThread) DoTrack(ctx context.Context) bool {
	cmd, err := spk.NewDoTrackCommand()
	return dt.callInt(ctx, spk.DoTrackCommand, cmd, err) != 0
}

// GetTrack returns the index of the character being spoken, or 0.
func (dt *DriverThread) GetTrack(ctx context.Context) int {
	cmd, err := spk.NewGetTrackCommand()
	return dt.callInt(ctx, spk.GetTrackCommand, cmd, err)
}

// IsSpeaking reports whether an utterance is in progress.
func (dt *DriverThread) IsSpeaking(ctx context.Context) bool {
	cmd, err := spk.NewIsSpeakingCommand()
	return dt.callInt(ctx, spk.IsSpeakingCommand, cmd, err) != 0
}

// SetVolume sets the speech volume, see spk.SettingMin and spk.SettingMax.
func (dt *DriverThread) SetVolume(ctx context.Context, setting byte) bool {
	cmd, err := spk.NewSetVolumeCommand(setting)
	return dt.callInt(ctx, spk.SetVolumeCommand, cmd, err) != 0
}

// SetRate sets the speech rate.
func (dt *DriverThread) SetRate(ctx context.Context, setting byte) bool {
	cmd, err := spk.NewSetRateCommand(setting)
	return dt.callInt(ctx, spk.SetRateCommand, cmd, err) != 0
}

// SetPitch sets the speech pitch.
func (dt *DriverThread) SetPitch(ctx context.Context, setting byte) bool {
	cmd, err := spk.NewSetPitchCommand(setting)
	return dt.callInt(ctx, spk.SetPitchCommand, cmd, err) != 0
}

// SetPunctuation sets how much punctuation is spoken.
func (dt *DriverThread) SetPunctuation(ctx context.Context, mode spk.Punctuation) bool {
	cmd, err := spk.NewSetPunctuationCommand(mode)
	return dt.callInt(ctx, spk.SetPunctuationCommand, cmd, err) != 0
}

// callInt runs cmd and converts every failure into the zero result.
func (dt *DriverThread) callInt(ctx context.Context, kind spk.CommandKind, cmd *spk.Command, err error) int {
	if err != nil {
		dt.metrics.incCommandErrCount()
		dt.logger.Error("failed to create driver command", "command", kind, "error", err)

		return 0
	}

	result, err := dt.Call(ctx, cmd)
	if err != nil {
		dt.logger.Warn("driver command failed", "command", kind, "error", err)
		return 0
	}

	return result
}

// Call sends cmd to the worker and waits for its integer response.
//
// Call takes ownership of cmd: it is released exactly once, by the worker after
// the backend call or by Call when the command could not be queued. Only one
// command is outstanding per driver thread; concurrent callers are served one
// after another.
//
// When the response timeout expires the backend call is not interrupted; its
// eventual response is dropped and counted in LateResponseCount.
func (dt *DriverThread) Call(ctx context.Context, cmd *spk.Command) (int, error) {
	if cmd == nil {
		dt.metrics.incCommandErrCount()
		return 0, fmt.Errorf("%w: nil command", spk.ErrUnknownCommand)
	}

	dt.issueMu.Lock()
	defer dt.issueMu.Unlock()

	if !dt.stateMgr.IsReady() {
		cmd.Release()
		dt.metrics.incCommandErrCount()

		return 0, spk.ErrThreadNotReady
	}

	id := cmd.ID()
	replyCh := dt.addPendingReply(id)

	if err := dt.queueCommand(ctx, cmd); err != nil {
		dt.removePendingReply(id)
		cmd.Release()
		dt.metrics.incCommandErrCount()

		return 0, err
	}

	dt.metrics.incCommandSendCount()
	dt.metrics.incCommandInflightCount()
	defer dt.metrics.decCommandInflightCount()

	timer := pool.GetTimer(dt.cfg.responseTimeout)
	defer pool.PutTimer(timer)

	select {
	case result, ok := <-replyCh:
		if !ok {
			return 0, spk.ErrThreadStopped
		}

		return result, nil

	case <-timer.C:
		dt.metrics.incCommandTimeoutCount()
		return dt.abandonReply(id, replyCh, spk.ErrCommandTimeout)

	case <-ctx.Done():
		return dt.abandonReply(id, replyCh, ctx.Err())

	case <-dt.done:
		return dt.abandonReply(id, replyCh, spk.ErrThreadStopped)
	}
}

// abandonReply unregisters the waiter of command id. If the worker answered
// concurrently, its response wins over cause.
func (dt *DriverThread) abandonReply(id uint32, replyCh <-chan int, cause error) (int, error) {
	if _, ok := dt.replies.LoadAndDelete(id); ok {
		return 0, cause
	}

	if result, ok := <-replyCh; ok {
		return result, nil
	}

	return 0, spk.ErrThreadStopped
}

// queueCommand puts cmd, or the nil stop sentinel, on the inbox.
func (dt *DriverThread) queueCommand(ctx context.Context, cmd *spk.Command) error {
	dt.inboxMu.RLock()
	defer dt.inboxMu.RUnlock()

	if dt.inboxClosed {
		return spk.ErrThreadStopped
	}

	timer := pool.GetTimer(dt.cfg.sendTimeout)
	defer pool.PutTimer(timer)

	select {
	case dt.inbox <- cmd:
		return nil
	case <-dt.done:
		return spk.ErrThreadStopped
	case <-timer.C:
		return spk.ErrSendCommandTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeInbox refuses further commands and releases any the worker never took.
func (dt *DriverThread) closeInbox() {
	dt.inboxMu.Lock()
	defer dt.inboxMu.Unlock()

	if dt.inboxClosed {
		return
	}
	dt.inboxClosed = true

	for {
		select {
		case cmd := <-dt.inbox:
			if cmd != nil {
				dt.logger.Debug("releasing unexecuted command", "command", cmd)
				cmd.Release()
			}
		default:
			return
		}
	}
}

func (dt *DriverThread) addPendingReply(id uint32) <-chan int {
	ch := make(chan int, 1)
	dt.replies.Store(id, ch)

	return ch
}

func (dt *DriverThread) removePendingReply(id uint32) {
	dt.replies.Delete(id)
}

// IsErrTimeout reports whether err is a command send or response timeout.
func IsErrTimeout(err error) bool {
	return errors.Is(err, spk.ErrCommandTimeout) || errors.Is(err, spk.ErrSendCommandTimeout)
}
