// Package mocksynth is an in-memory speech synthesizer.
//
// It records every call it receives and "speaks" an utterance on its own
// goroutine by reporting the start of each word, one word per interval,
// followed by a speech-finished notification. It supports every optional
// backend capability and is useful for tests and for running the daemon
// without audio hardware.
package mocksynth

import (
	"fmt"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/arloliu/go-spk/internal/queue"
	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
)

// DefaultWordInterval is the time spent "speaking" one word.
const DefaultWordInterval = 100 * time.Millisecond

// Call is one recorded backend call.
type Call struct {
	Method string
	Text   string
	Count  int
	Value  int
}

// String formats the call for logs and test failures.
func (c Call) String() string {
	switch c.Method {
	case "Say":
		return fmt.Sprintf("Say(%q, %d)", c.Text, c.Count)
	case "SetVolume", "SetRate", "SetPitch", "SetPunctuation":
		return fmt.Sprintf("%s(%d)", c.Method, c.Value)
	default:
		return c.Method + "()"
	}
}

// Synth is the in-memory synthesizer.
type Synth struct {
	interval time.Duration
	logger   logger.Logger

	mu       sync.Mutex
	notifier spk.Notifier
	calls    []Call

	volume      byte
	rate        byte
	pitch       byte
	punctuation spk.Punctuation

	words    *queue.Queue[int] // character index of every word still to speak
	track    int
	speaking bool
	abort    chan struct{} // closed to abort the current utterance
	wg       sync.WaitGroup
}

var (
	_ spk.Synthesizer       = (*Synth)(nil)
	_ spk.Tracker           = (*Synth)(nil)
	_ spk.VolumeSetter      = (*Synth)(nil)
	_ spk.RateSetter        = (*Synth)(nil)
	_ spk.PitchSetter       = (*Synth)(nil)
	_ spk.PunctuationSetter = (*Synth)(nil)
)

// Option configures a Synth.
type Option func(*Synth)

// WithWordInterval sets the time spent on each word.
func WithWordInterval(d time.Duration) Option {
	return func(s *Synth) { s.interval = d }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synth) { s.logger = l }
}

// New creates a Synth.
func New(opts ...Option) *Synth {
	s := &Synth{
		interval:    DefaultWordInterval,
		logger:      logger.GetLogger(),
		volume:      spk.SettingDefault,
		rate:        spk.SettingDefault,
		pitch:       spk.SettingDefault,
		punctuation: spk.PunctuationSome,
		words:       queue.New[int](16),
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mocksynth")

	return s
}

// Construct stores n. The "interval" parameter, a Go duration, overrides the
// word interval.
func (s *Synth) Construct(n spk.Notifier, params spk.Parameters) error {
	if v, ok := params.Get("interval"); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: interval=%q", spk.ErrInvalidParameter, v)
		}
		s.interval = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.notifier = n
	s.record(Call{Method: "Construct"})
	s.logger.Debug("mock synthesizer constructed", "interval", s.interval)

	return nil
}

// Destruct aborts speech and waits for the speaking goroutine to return.
func (s *Synth) Destruct() {
	s.mu.Lock()
	s.stopLocked()
	s.record(Call{Method: "Destruct"})
	s.mu.Unlock()

	s.wg.Wait()
}

// Say replaces the current utterance with text.
func (s *Synth) Say(text []byte, count int, _ []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{Method: "Say", Text: string(text), Count: count})
	s.stopLocked()

	s.words.Enqueue(wordStarts(text)...)
	s.track = 0
	s.speaking = true
	s.abort = make(chan struct{})

	s.wg.Add(1)
	go s.speak(s.abort, s.interval)
}

// Mute aborts the current utterance without reporting it finished.
func (s *Synth) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.record(Call{Method: "Mute"})
	s.stopLocked()
}

func (s *Synth) stopLocked() {
	if s.abort != nil {
		close(s.abort)
		s.abort = nil
	}
	s.words.Reset()
	s.speaking = false
}

// speak reports one word per interval until the utterance ends or abort is closed.
func (s *Synth) speak(abort <-chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-abort:
			return
		case <-timer.C:
		}

		s.mu.Lock()
		select {
		case <-abort:
			s.mu.Unlock()
			return
		default:
		}

		index, ok := s.words.Dequeue()
		if !ok {
			s.speaking = false
			s.abort = nil
			n := s.notifier
			s.mu.Unlock()

			n.SpeechFinished()

			return
		}
		s.track = index
		n := s.notifier
		s.mu.Unlock()

		n.SpeechLocation(index)
		timer.Reset(interval)
	}
}

// wordStarts returns the character index of the first character of every word.
func wordStarts(text []byte) []int {
	var starts []int
	inWord := false

	for i := 0; len(text) > 0; i++ {
		r, size := utf8.DecodeRune(text)
		text = text[size:]

		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			starts = append(starts, i)
			inWord = true
		}
	}

	return starts
}

func (s *Synth) DoTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "DoTrack"})
}

func (s *Synth) GetTrack() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "GetTrack"})

	return s.track
}

func (s *Synth) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "IsSpeaking"})

	return s.speaking
}

func (s *Synth) SetVolume(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "SetVolume", Value: int(setting)})
	s.volume = setting
}

func (s *Synth) SetRate(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "SetRate", Value: int(setting)})
	s.rate = setting
}

func (s *Synth) SetPitch(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "SetPitch", Value: int(setting)})
	s.pitch = setting
}

func (s *Synth) SetPunctuation(mode spk.Punctuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(Call{Method: "SetPunctuation", Value: int(mode)})
	s.punctuation = mode
}

func (s *Synth) record(c Call) {
	s.calls = append(s.calls, c)
}

// Calls returns a copy of the recorded calls.
func (s *Synth) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Call(nil), s.calls...)
}

// Settings returns the current volume, rate, pitch and punctuation mode.
func (s *Synth) Settings() (volume, rate, pitch byte, punctuation spk.Punctuation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.volume, s.rate, s.pitch, s.punctuation
}
