package telemetry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Command is a logical control command for the race controller.
type Command int

const (
	CommandStart Command = iota
	CommandStop
)

var commandNames = map[Command]string{
	CommandStart: "start",
	CommandStop:  "stop",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(c))
}

// ParseCommand parses "start" or "stop" (case-insensitive).
func ParseCommand(s string) (Command, error) {
	for c, name := range commandNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q: must be start or stop", s)
}

// ErrCommandUndefined is returned when no wire encoding is configured for a command.
var ErrCommandUndefined = errors.New("no wire encoding configured for command")

// CommandTable holds the outbound payload of each command.
type CommandTable map[Command][]byte

// Encode returns a copy of the payload configured for cmd.
func (t CommandTable) Encode(cmd Command) ([]byte, error) {
	payload, ok := t[cmd]
	if !ok || len(payload) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCommandUndefined, cmd)
	}
	return append([]byte(nil), payload...), nil
}

// ParseCommandTable builds a table from hex strings keyed by command name.
// Empty values leave the command undefined.
func ParseCommandTable(hexByName map[string]string) (CommandTable, error) {
	table := make(CommandTable, len(hexByName))
	for name, value := range hexByName {
		cmd, err := ParseCommand(name)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		payload, err := ParseHex(value)
		if err != nil {
			return nil, fmt.Errorf("command %s: %w", cmd, err)
		}
		table[cmd] = payload
	}
	return table, nil
}

// ParseHex decodes hex input, tolerating spaces, colons, dashes and 0x prefixes.
func ParseHex(s string) ([]byte, error) {
	cleaned := strings.ToLower(s)
	cleaned = strings.ReplaceAll(cleaned, "0x", "")
	cleaned = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(cleaned)

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// FormatHex renders bytes as dash separated uppercase pairs, e.g. "02-50-03-01".
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data)*3 - 1)
	for i, v := range data {
		if i > 0 {
			b.WriteByte('-')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
