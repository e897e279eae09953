package spk

import (
	"fmt"
	"unicode/utf8"

	"github.com/arloliu/go-spk/payload"
)

// CommandKind identifies the backend operation a Command requests.
type CommandKind uint8

const (
	SayTextCommand CommandKind = iota + 1
	MuteSpeechCommand
	DoTrackCommand
	GetTrackCommand
	IsSpeakingCommand
	SetVolumeCommand
	SetRateCommand
	SetPitchCommand
	SetPunctuationCommand
)

// String returns the name of the command kind.
func (k CommandKind) String() string {
	switch k {
	case SayTextCommand:
		return "say-text"
	case MuteSpeechCommand:
		return "mute-speech"
	case DoTrackCommand:
		return "do-track"
	case GetTrackCommand:
		return "get-track"
	case IsSpeakingCommand:
		return "is-speaking"
	case SetVolumeCommand:
		return "set-volume"
	case SetRateCommand:
		return "set-rate"
	case SetPitchCommand:
		return "set-pitch"
	case SetPunctuationCommand:
		return "set-punctuation"
	default:
		return fmt.Sprintf("command(%d)", uint8(k))
	}
}

// command header layout
const (
	cmdKindOffset    = 0
	cmdSettingOffset = 1
	cmdIDOffset      = 4
	cmdLengthOffset  = 8
	cmdCountOffset   = 12
)

// trailing data views of a say-text command
const (
	cmdTextView = iota
	cmdAttributesView
)

// Command is a request for one backend operation, executed once by a driver
// thread.
//
// A Command owns a single packed payload.Block; its text and attributes are
// copies held inside that block. The nil *Command is the stop sentinel of a
// driver thread inbox and is never constructed by this package.
type Command struct {
	block *payload.Block
}

// NewSayTextCommand creates a command that speaks text.
//
// attributes is optional; when present it must hold one byte per character
// (rune) of text.
func NewSayTextCommand(text []byte, attributes []byte) (*Command, error) {
	return newSayTextCommand(payload.Pack, text, attributes)
}

// NewSayTextCommandWithPacker is NewSayTextCommand with a caller supplied size limit.
func NewSayTextCommandWithPacker(p *payload.Packer, text []byte, attributes []byte) (*Command, error) {
	return newSayTextCommand(p.Pack, text, attributes)
}

func newSayTextCommand(pack func(...payload.Datum) (*payload.Block, error), text []byte, attributes []byte) (*Command, error) {
	count := utf8.RuneCount(text)
	if attributes != nil && len(attributes) != count {
		return nil, fmt.Errorf("%w: %d characters, %d attributes", ErrAttributeCount, count, len(attributes))
	}

	if text == nil {
		text = []byte{}
	}

	block, err := pack(
		payload.Datum{Data: text, Terminated: true},
		payload.Datum{Data: attributes},
	)
	if err != nil {
		return nil, err
	}

	cmd := initCommand(block, SayTextCommand)
	block.PutUint32(cmdLengthOffset, uint32(len(text)))
	block.PutUint32(cmdCountOffset, uint32(count))

	return cmd, nil
}

// NewMuteSpeechCommand creates a command that silences speech.
func NewMuteSpeechCommand() (*Command, error) { return newPlainCommand(MuteSpeechCommand) }

// NewDoTrackCommand creates a command that asks the backend to update its tracking position.
func NewDoTrackCommand() (*Command, error) { return newPlainCommand(DoTrackCommand) }

// NewGetTrackCommand creates a command that queries the tracking position.
func NewGetTrackCommand() (*Command, error) { return newPlainCommand(GetTrackCommand) }

// NewIsSpeakingCommand creates a command that queries whether speech is in progress.
func NewIsSpeakingCommand() (*Command, error) { return newPlainCommand(IsSpeakingCommand) }

// NewSetVolumeCommand creates a command that sets the speech volume.
func NewSetVolumeCommand(setting byte) (*Command, error) {
	return newSettingCommand(SetVolumeCommand, setting)
}

// NewSetRateCommand creates a command that sets the speech rate.
func NewSetRateCommand(setting byte) (*Command, error) {
	return newSettingCommand(SetRateCommand, setting)
}

// NewSetPitchCommand creates a command that sets the speech pitch.
func NewSetPitchCommand(setting byte) (*Command, error) {
	return newSettingCommand(SetPitchCommand, setting)
}

// NewSetPunctuationCommand creates a command that sets the punctuation mode.
func NewSetPunctuationCommand(mode Punctuation) (*Command, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPunctuation, mode)
	}

	return newSettingCommand(SetPunctuationCommand, byte(mode))
}

func newPlainCommand(kind CommandKind) (*Command, error) {
	block, err := payload.Pack()
	if err != nil {
		return nil, err
	}

	return initCommand(block, kind), nil
}

func newSettingCommand(kind CommandKind, setting byte) (*Command, error) {
	cmd, err := newPlainCommand(kind)
	if err != nil {
		return nil, err
	}
	cmd.block.PutUint8(cmdSettingOffset, setting)

	return cmd, nil
}

func initCommand(block *payload.Block, kind CommandKind) *Command {
	block.PutUint8(cmdKindOffset, uint8(kind))
	block.PutUint32(cmdIDOffset, GenerateCommandID())

	return &Command{block: block}
}

// ID returns the unique command ID.
func (c *Command) ID() uint32 { return c.block.Uint32At(cmdIDOffset) }

// Kind returns the command kind.
func (c *Command) Kind() CommandKind { return CommandKind(c.block.Uint8At(cmdKindOffset)) }

// Setting returns the level of a set-volume, set-rate or set-pitch command.
func (c *Command) Setting() byte { return c.block.Uint8At(cmdSettingOffset) }

// Punctuation returns the mode of a set-punctuation command.
func (c *Command) Punctuation() Punctuation { return Punctuation(c.Setting()) }

// Text returns the text of a say-text command, without its terminator.
func (c *Command) Text() []byte { return c.block.Bytes(c.block.View(cmdTextView)) }

// Length returns the byte length of the text of a say-text command.
func (c *Command) Length() int { return int(c.block.Uint32At(cmdLengthOffset)) }

// Count returns the character count of the text of a say-text command.
func (c *Command) Count() int { return int(c.block.Uint32At(cmdCountOffset)) }

// Attributes returns the attribute bytes of a say-text command, or nil if
// none were supplied.
func (c *Command) Attributes() []byte { return c.block.Bytes(c.block.View(cmdAttributesView)) }

// Block returns the packed payload backing the command.
func (c *Command) Block() *payload.Block { return c.block }

// Release frees the command payload. It reports false if the command was
// already released.
func (c *Command) Release() bool { return c.block.Release() }

// String returns a short description for logging.
func (c *Command) String() string {
	if c == nil {
		return "stop"
	}

	return fmt.Sprintf("%s#%d", c.Kind(), c.ID())
}
