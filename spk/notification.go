package spk

import (
	"fmt"
	"math"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/payload"
)

// NotificationKind identifies an asynchronous speech progress event.
type NotificationKind uint8

const (
	// SpeechLocationNotification reports the index of the character being spoken.
	SpeechLocationNotification NotificationKind = iota + 1
	// SpeechFinishedNotification reports the end of the current utterance.
	SpeechFinishedNotification
)

// String returns the name of the notification kind.
func (k NotificationKind) String() string {
	switch k {
	case SpeechLocationNotification:
		return "speech-location"
	case SpeechFinishedNotification:
		return "speech-finished"
	default:
		return fmt.Sprintf("notification(%d)", uint8(k))
	}
}

// notification header layout
const (
	ntfKindOffset  = 0
	ntfIndexOffset = 4
)

// Notification is a progress event travelling from a driver thread to the
// main loop. It is consumed, and released, exactly once.
type Notification struct {
	block *payload.Block
}

// NewSpeechLocationNotification creates a notification reporting index.
// The index is carried as an int32; values outside its range are clamped.
func NewSpeechLocationNotification(index int) (*Notification, error) {
	n, err := newNotification(SpeechLocationNotification)
	if err != nil {
		return nil, err
	}
	n.block.PutInt32(ntfIndexOffset, int32(max(math.MinInt32, min(index, math.MaxInt32))))

	return n, nil
}

// NewSpeechFinishedNotification creates a notification reporting the end of an utterance.
func NewSpeechFinishedNotification() (*Notification, error) {
	return newNotification(SpeechFinishedNotification)
}

func newNotification(kind NotificationKind) (*Notification, error) {
	block, err := payload.Pack()
	if err != nil {
		return nil, err
	}
	block.PutUint8(ntfKindOffset, uint8(kind))

	return &Notification{block: block}, nil
}

// Kind returns the notification kind.
func (n *Notification) Kind() NotificationKind {
	return NotificationKind(n.block.Uint8At(ntfKindOffset))
}

// Index returns the character index of a speech-location notification.
func (n *Notification) Index() int { return int(n.block.Int32At(ntfIndexOffset)) }

// Release frees the notification payload. It reports false if the
// notification was already released.
func (n *Notification) Release() bool { return n.block.Release() }

// NotificationHandler is the main loop side of the notification channel.
type NotificationHandler interface {
	// SpeechIndex reports a new spoken index position.
	SpeechIndex(index int)
	// SpeechFinished reports the completion of an utterance.
	SpeechFinished()
}

// NotificationHandlerFuncs adapts a pair of functions to NotificationHandler.
// Nil functions are ignored.
type NotificationHandlerFuncs struct {
	OnSpeechIndex    func(index int)
	OnSpeechFinished func()
}

var _ NotificationHandler = NotificationHandlerFuncs{}

func (h NotificationHandlerFuncs) SpeechIndex(index int) {
	if h.OnSpeechIndex != nil {
		h.OnSpeechIndex(index)
	}
}

func (h NotificationHandlerFuncs) SpeechFinished() {
	if h.OnSpeechFinished != nil {
		h.OnSpeechFinished()
	}
}

// DispatchNotification delivers n to h and releases n.
//
// Unknown kinds are logged to l and released without calling h. A nil n is ignored.
func DispatchNotification(n *Notification, h NotificationHandler, l logger.Logger) {
	if n == nil {
		return
	}
	defer n.Release()

	switch kind := n.Kind(); kind {
	case SpeechLocationNotification:
		h.SpeechIndex(n.Index())
	case SpeechFinishedNotification:
		h.SpeechFinished()
	default:
		if l != nil {
			l.Warn("unimplemented driver notification type", "kind", kind)
		}
	}
}
