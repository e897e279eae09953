package spk

import "errors"

var (
	// ErrThreadNotReady indicates that a command was issued to a driver thread
	// that is not in the ready state.
	ErrThreadNotReady = errors.New("spk: driver thread is not ready")

	// ErrThreadStopped indicates that the driver thread has been stopped.
	ErrThreadStopped = errors.New("spk: driver thread stopped")

	// ErrInvalidTransition is returned when an attempt is made to move the
	// driver thread to a state that does not follow its current one.
	ErrInvalidTransition = errors.New("spk: invalid driver thread state transition")

	// ErrStateHandlerPanic is returned by a transition whose state change
	// handler panicked. The transition itself has taken place.
	ErrStateHandlerPanic = errors.New("spk: state change handler panic")
)

var (
	// ErrStartTimeout indicates that the driver thread did not report the
	// outcome of backend construction within the start timeout.
	ErrStartTimeout = errors.New("spk: driver thread start timeout")

	// ErrConstructFailed indicates that the backend could not be constructed.
	ErrConstructFailed = errors.New("spk: speech driver construction failure")

	// ErrStopTimeout indicates that the driver thread did not finish within the stop timeout.
	// The thread is still joined before Stop returns.
	ErrStopTimeout = errors.New("spk: driver thread stop timeout")
)

var (
	// ErrSendCommandTimeout indicates that the driver thread inbox did not
	// accept a command within the send timeout.
	ErrSendCommandTimeout = errors.New("spk: send command timeout")

	// ErrCommandTimeout indicates that no response arrived within the response timeout.
	// The backend call, if already running, is not interrupted.
	ErrCommandTimeout = errors.New("spk: command response timeout")

	// ErrUnsupportedByDriver indicates that the backend does not implement the
	// capability a command needs.
	ErrUnsupportedByDriver = errors.New("spk: not supported by driver")

	// ErrUnknownCommand indicates a command kind the driver thread cannot dispatch.
	ErrUnknownCommand = errors.New("spk: unknown command kind")
)

var (
	// ErrAttributeCount indicates that a text's attribute array does not hold
	// exactly one byte per character.
	ErrAttributeCount = errors.New("spk: attribute count does not match character count")

	// ErrInvalidPunctuation indicates an unknown punctuation mode.
	ErrInvalidPunctuation = errors.New("spk: invalid punctuation mode")

	// ErrInvalidParameter indicates a malformed driver parameter.
	ErrInvalidParameter = errors.New("spk: invalid driver parameter")
)
