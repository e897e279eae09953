package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/arloliu/go-spk/logger"
	"github.com/arloliu/go-spk/spk"
)

// Speaker is the part of a driver thread the console drives.
type Speaker interface {
	SayText(ctx context.Context, text []byte, attributes []byte) bool
	MuteSpeech(ctx context.Context) bool
	DoTrack(ctx context.Context) bool
	GetTrack(ctx context.Context) int
	IsSpeaking(ctx context.Context) bool
	SetVolume(ctx context.Context, setting byte) bool
	SetRate(ctx context.Context, setting byte) bool
	SetPitch(ctx context.Context, setting byte) bool
	SetPunctuation(ctx context.Context, mode spk.Punctuation) bool
}

var errQuit = errors.New("quit")

const consoleHelp = `plain text is spoken; commands:
  /mute                  stop speaking
  /volume N  /rate N  /pitch N   set a level (0-20)
  /punct none|some|all   set punctuation mode
  /track                 update the tracking position
  /where                 print the tracking position
  /speaking              print whether speech is in progress
  /help                  show this help
  /quit                  exit`

// console reads lines and turns them into driver thread commands.
// It also prints speech notifications and implements spk.NotificationHandler.
type console struct {
	speaker Speaker
	logger  logger.Logger

	mu  sync.Mutex
	out io.Writer
}

var _ spk.NotificationHandler = (*console)(nil)

func newConsole(speaker Speaker, out io.Writer, l logger.Logger) *console {
	return &console{speaker: speaker, out: out, logger: l.With("component", "console")}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) SpeechIndex(index int) {
	c.logger.Debug("speech index", "index", index)
	c.printf("@%d", index)
}

func (c *console) SpeechFinished() {
	c.logger.Debug("speech finished")
	c.printf("@done")
}

// Run handles lines from r until EOF, /quit, or ctx is done.
func (c *console) Run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			if err := c.handleLine(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				c.printf("error: %v", err)
			}
		}
	}
}

// handleLine executes one console line. It returns errQuit for /quit.
func (c *console) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		return c.result(c.speaker.SayText(ctx, []byte(line), nil))
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit":
		return errQuit

	case "help":
		c.printf("%s", consoleHelp)
		return nil

	case "mute":
		return c.result(c.speaker.MuteSpeech(ctx))

	case "volume", "rate", "pitch":
		setting, err := parseSetting(arg)
		if err != nil {
			return fmt.Errorf("/%s: %w", name, err)
		}

		return c.result(c.setLevel(ctx, strings.ToLower(name), setting))

	case "punct", "punctuation":
		mode, err := spk.ParsePunctuation(arg)
		if err != nil {
			return fmt.Errorf("/%s: %w", name, err)
		}

		return c.result(c.speaker.SetPunctuation(ctx, mode))

	case "track":
		return c.result(c.speaker.DoTrack(ctx))

	case "where":
		c.printf("track %d", c.speaker.GetTrack(ctx))
		return nil

	case "speaking":
		c.printf("speaking %t", c.speaker.IsSpeaking(ctx))
		return nil

	default:
		return fmt.Errorf("unknown command %q, try /help", "/"+name)
	}
}

func (c *console) setLevel(ctx context.Context, name string, setting byte) bool {
	switch name {
	case "volume":
		return c.speaker.SetVolume(ctx, setting)
	case "rate":
		return c.speaker.SetRate(ctx, setting)
	default:
		return c.speaker.SetPitch(ctx, setting)
	}
}

func (c *console) result(ok bool) error {
	if ok {
		c.printf("ok")
	} else {
		c.printf("failed")
	}

	return nil
}

func parseSetting(arg string) (byte, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid level %q", arg)
	}
	if v < int(spk.SettingMin) || v > int(spk.SettingMax) {
		return 0, fmt.Errorf("level %d out of range [%d, %d]", v, spk.SettingMin, spk.SettingMax)
	}

	return byte(v), nil
}

// applySettings sends the configured speech settings to the driver thread.
func applySettings(ctx context.Context, s Speaker, cfg SpeechConfig, l logger.Logger) {
	mode, _ := spk.ParsePunctuation(cfg.Punctuation)

	results := map[string]bool{
		"volume":      s.SetVolume(ctx, byte(cfg.Volume)),
		"rate":        s.SetRate(ctx, byte(cfg.Rate)),
		"pitch":       s.SetPitch(ctx, byte(cfg.Pitch)),
		"punctuation": s.SetPunctuation(ctx, mode),
	}

	for name, ok := range results {
		if !ok {
			l.Warn("speech setting not applied", "setting", name)
		}
	}
}
