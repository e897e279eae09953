// Package execsynth speaks through an external command, such as
// "espeak-ng --stdin" or "say".
//
// One process is started per utterance and receives the text on its
// standard input. Speech settings are exported to the process as the
// SPK_VOLUME, SPK_RATE, SPK_PITCH and SPK_PUNCTUATION environment variables
// and can also be spliced into the command line with the {volume}, {rate},
// {pitch} and {punctuation} placeholders:
//
//	espeak-ng --stdin -a {volume}0 -s 1{rate}0
//
// Process exit is reported as speech finished unless the process was
// stopped by Mute or by a newer utterance.
package execsynth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
)

// ParamCommand is the driver parameter that holds the speech command line.
const ParamCommand = "command"

// ErrNoCommand indicates that no speech command was configured.
var ErrNoCommand = errors.New("execsynth: speech command empty")

// process is one running utterance.
type process struct {
	cmd     *exec.Cmd
	stopped bool // killed by Mute, Say or Destruct
}

// Synth is the exec backed synthesizer.
type Synth struct {
	command string
	argv    []string
	logger  logger.Logger

	mu          sync.Mutex
	notifier    spk.Notifier
	volume      byte
	rate        byte
	pitch       byte
	punctuation spk.Punctuation
	current     *process
	wg          sync.WaitGroup
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

// WithCommand sets the default speech command line. The "command" driver
// parameter overrides it.
func WithCommand(command string) Option {
	return func(s *Synth) { s.command = command }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Synth) { s.logger = l }
}

// New creates a Synth.
func New(opts ...Option) *Synth {
	s := &Synth{
		logger:      logger.GetLogger(),
		volume:      spk.SettingDefault,
		rate:        spk.SettingDefault,
		pitch:       spk.SettingDefault,
		punctuation: spk.PunctuationSome,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "execsynth")

	return s
}

// Construct parses the command line and checks that its program exists.
func (s *Synth) Construct(n spk.Notifier, params spk.Parameters) error {
	command := params.Lookup(ParamCommand, s.command)

	argv, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return fmt.Errorf("%w: parse speech command: %w", spk.ErrInvalidParameter, err)
	}
	if len(argv) == 0 {
		return ErrNoCommand
	}

	if _, err := exec.LookPath(argv[0]); err != nil {
		return fmt.Errorf("execsynth: speech command: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.argv = argv
	s.notifier = n
	s.logger.Info("speech command configured", "command", argv[0], "args", len(argv)-1)

	return nil
}

// Destruct stops the running utterance and waits for its process to exit.
func (s *Synth) Destruct() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()

	s.wg.Wait()
}

// Say stops the current utterance and starts a process speaking text.
func (s *Synth) Say(text []byte, _ int, _ []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	argv := s.expandArgs()
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	cmd.Env = append(os.Environ(), s.environ()...)
	cmd.Stdin = bytes.NewReader(bytes.Clone(text))

	if err := cmd.Start(); err != nil {
		s.logger.Error("failed to start speech command", "command", argv[0], "error", err)
		return
	}

	proc := &process{cmd: cmd}
	s.current = proc

	s.wg.Add(1)
	go s.wait(proc)
}

func (s *Synth) wait(proc *process) {
	defer s.wg.Done()

	err := proc.cmd.Wait()

	s.mu.Lock()
	if s.current == proc {
		s.current = nil
	}
	stopped := proc.stopped
	n := s.notifier
	s.mu.Unlock()

	if stopped {
		return
	}

	if err != nil {
		s.logger.Warn("speech command failed", "error", err)
	}
	n.SpeechFinished()
}

// Mute kills the running utterance.
func (s *Synth) Mute() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

func (s *Synth) stopLocked() {
	proc := s.current
	if proc == nil {
		return
	}

	proc.stopped = true
	s.current = nil

	if err := proc.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("failed to kill speech command", "error", err)
	}
}

// expandArgs substitutes the setting placeholders of the command line.
func (s *Synth) expandArgs() []string {
	r := strings.NewReplacer(
		"{volume}", strconv.Itoa(int(s.volume)),
		"{rate}", strconv.Itoa(int(s.rate)),
		"{pitch}", strconv.Itoa(int(s.pitch)),
		"{punctuation}", s.punctuation.String(),
	)

	argv := make([]string, len(s.argv))
	for i, arg := range s.argv {
		argv[i] = r.Replace(arg)
	}

	return argv
}

func (s *Synth) environ() []string {
	return []string{
		"SPK_VOLUME=" + strconv.Itoa(int(s.volume)),
		"SPK_RATE=" + strconv.Itoa(int(s.rate)),
		"SPK_PITCH=" + strconv.Itoa(int(s.pitch)),
		"SPK_PUNCTUATION=" + s.punctuation.String(),
	}
}

// DoTrack does nothing; external commands do not report their position.
func (s *Synth) DoTrack() {}

// GetTrack always returns 0.
func (s *Synth) GetTrack() int { return 0 }

// IsSpeaking reports whether an utterance process is running.
func (s *Synth) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current != nil
}

func (s *Synth) SetVolume(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = setting
}

func (s *Synth) SetRate(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rate = setting
}

func (s *Synth) SetPitch(setting byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pitch = setting
}

func (s *Synth) SetPunctuation(mode spk.Punctuation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.punctuation = mode
}
