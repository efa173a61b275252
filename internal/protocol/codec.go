package protocol

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stockroom/internal/domain"
)

var (
	ErrEmpty          = errors.New("empty frame")
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidField   = errors.New("invalid field")
)

const rfidPrefix = "RFID:"

// Message is one decoded frame. Args always has exactly Command.Arity() entries.
type Message struct {
	Command Command
	Args    []string
}

func (m Message) Arg(i int) string {
	if i < 0 || i >= len(m.Args) {
		return ""
	}
	return m.Args[i]
}

// Record reads the tag, name, price, category layout shared by item commands.
func (m Message) Record() domain.Record {
	return domain.Record{RFID: m.Arg(0), Name: m.Arg(1), Price: m.Arg(2), Category: m.Arg(3)}
}

func (m Message) String() string {
	if s, err := Encode(m); err == nil {
		return s
	}
	return string(m.Command) + " " + strings.Join(m.Args, "|")
}

func New(cmd Command, args ...string) Message {
	return Message{Command: cmd, Args: args}
}

func ItemMessage(cmd Command, r domain.Record) Message {
	return New(cmd, r.RFID, r.Name, r.Price, r.Category)
}

func ScanResult(tag string) Message { return New(CmdRFID, tag) }

func Errorf(format string, a ...any) Message {
	return New(CmdError, fmt.Sprintf(format, a...))
}

// ItemList packs records into an ITEM_LIST frame.
func ItemList(rs []domain.Record) (Message, error) {
	if rs == nil {
		rs = []domain.Record{}
	}
	b, err := json.Marshal(rs)
	if err != nil {
		return Message{}, err
	}
	return New(CmdItemList, string(b)), nil
}

// Records unpacks an ITEM_LIST frame.
func (m Message) Records() ([]domain.Record, error) {
	if m.Command != CmdItemList {
		return nil, fmt.Errorf("%w: %s is not %s", ErrInvalidField, m.Command, CmdItemList)
	}
	var rs []domain.Record
	if err := json.Unmarshal([]byte(m.Arg(0)), &rs); err != nil {
		return nil, fmt.Errorf("%w: item list: %v", ErrInvalidField, err)
	}
	return rs, nil
}

// carriesTag lists commands whose first argument is an RFID tag.
func carriesTag(c Command) bool {
	switch c {
	case CmdAddItem, CmdUpdateItem, CmdDeleteItem, CmdItemUpdated, CmdItemRemoved,
		CmdLookup, CmdItemFound, CmdItemNotFound, CmdRFID:
		return true
	}
	return false
}

// ValidTag reports whether tag can travel unquoted in every frame, including
// RFID:<tag>.
func ValidTag(tag string) bool {
	return tag != "" && !strings.ContainsAny(tag, ",\"\r\n")
}

// Encode renders m as a single-line frame in canonical upper-case form.
func Encode(m Message) (string, error) {
	n, ok := arity[m.Command]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, string(m.Command))
	}
	if len(m.Args) > n {
		return "", fmt.Errorf("%w: %s takes %d args, got %d", ErrInvalidField, m.Command, n, len(m.Args))
	}
	args := make([]string, n)
	for i := range args {
		args[i] = strings.TrimSpace(m.Arg(i))
		if strings.ContainsAny(args[i], "\r\n") {
			return "", fmt.Errorf("%w: line break in %s arg %d", ErrInvalidField, m.Command, i)
		}
	}
	if carriesTag(m.Command) && !ValidTag(args[0]) {
		return "", fmt.Errorf("%w: tag %q", ErrInvalidField, args[0])
	}
	if m.Command == CmdRFID {
		return rfidPrefix + args[0], nil
	}
	if n == 0 {
		return string(m.Command), nil
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(args); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return string(m.Command) + "," + strings.TrimRight(b.String(), "\n"), nil
}

// Decode parses one received frame. The command token is case-insensitive.
// Missing arguments come back empty and surplus ones are folded into the last
// argument. Unknown commands return ErrUnknownCommand; callers log and drop.
func Decode(raw string) (Message, error) {
	line := strings.TrimSpace(strings.NewReplacer("\r", "", "\n", "").Replace(raw))
	if line == "" {
		return Message{}, ErrEmpty
	}
	if len(line) >= len(rfidPrefix) && strings.EqualFold(line[:len(rfidPrefix)], rfidPrefix) {
		tag := strings.TrimSpace(line[len(rfidPrefix):])
		if tag == "" {
			return Message{}, fmt.Errorf("%w: empty scan result", ErrInvalidField)
		}
		return ScanResult(tag), nil
	}

	name, rest, hasArgs := strings.Cut(line, ",")
	cmd, ok := ParseCommand(name)
	if !ok || cmd == CmdRFID {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, strings.TrimSpace(name))
	}
	var fields []string
	if hasArgs {
		fields = splitArgs(rest)
	}
	return Message{Command: cmd, Args: positional(cmd, fields)}, nil
}

func splitArgs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{""}
	}
	r := csv.NewReader(strings.NewReader(s))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	fields, err := r.Read()
	if err != nil {
		fields = strings.Split(s, ",")
	}
	return fields
}

func positional(cmd Command, fields []string) []string {
	n := cmd.Arity()
	args := make([]string, n)
	if n == 0 {
		return args
	}
	copy(args, fields)
	if len(fields) > n {
		args[n-1] = strings.Join(fields[n-1:], ",")
	}
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	if n == 4 {
		// category slot
		switch strings.ToLower(args[3]) {
		case "undefined", "null":
			args[3] = ""
		}
	}
	return args
}
