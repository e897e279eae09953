package spk

import (
	"fmt"
	"strings"
)

// Synthesizer is the contract of a speech synthesizer backend.
//
// Implementations are not required to be safe for concurrent use: a driver
// thread calls every method from one goroutine that stays locked to one OS
// thread, starting with Construct and ending with Destruct.
type Synthesizer interface {
	// Construct prepares the backend. n is used by the backend to report
	// speech progress and remains valid until Destruct returns.
	Construct(n Notifier, params Parameters) error
	// Destruct releases every resource held by the backend. It is called
	// once, and only if Construct succeeded.
	Destruct()
	// Say speaks text. count is the number of characters in text and,
	// when attributes is non-nil, the number of attribute bytes. Both slices
	// are valid only until Say returns; copy them to keep them longer.
	Say(text []byte, count int, attributes []byte)
	// Mute stops speech immediately.
	Mute()
}

// Optional capabilities. A command whose capability the backend lacks is
// answered with a zero result.
type (
	// Tracker reports the position reached in the current utterance.
	Tracker interface {
		DoTrack()
		GetTrack() int
		IsSpeaking() bool
	}

	VolumeSetter interface{ SetVolume(setting byte) }
	RateSetter   interface{ SetRate(setting byte) }
	PitchSetter  interface{ SetPitch(setting byte) }

	PunctuationSetter interface {
		SetPunctuation(mode Punctuation)
	}
)

// Notifier is handed to a backend at construction to report speech progress
// back to the main loop.
//
// Delivery is best effort: each method returns false when the notification
// could not be queued and was dropped. Methods are safe to call from any goroutine.
type Notifier interface {
	// SpeechLocation reports that the character at index has been reached.
	SpeechLocation(index int) bool
	// SpeechFinished reports that the current utterance has been spoken completely.
	SpeechFinished() bool
}

// Setting range shared by volume, rate and pitch.
const (
	SettingMin     byte = 0
	SettingDefault byte = 10
	SettingMax     byte = 20
)

// Punctuation selects how much punctuation is spoken.
type Punctuation uint8

const (
	PunctuationNone Punctuation = iota
	PunctuationSome
	PunctuationAll
)

// String returns the name of the punctuation mode.
func (p Punctuation) String() string {
	switch p {
	case PunctuationNone:
		return "none"
	case PunctuationSome:
		return "some"
	case PunctuationAll:
		return "all"
	default:
		return "unknown"
	}
}

// Valid reports whether p is a known punctuation mode.
func (p Punctuation) Valid() bool { return p <= PunctuationAll }

// ParsePunctuation parses a punctuation mode name ("none", "some" or "all").
func ParsePunctuation(name string) (Punctuation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return PunctuationNone, nil
	case "some":
		return PunctuationSome, nil
	case "all":
		return PunctuationAll, nil
	default:
		return PunctuationNone, fmt.Errorf("%w: %q", ErrInvalidPunctuation, name)
	}
}
