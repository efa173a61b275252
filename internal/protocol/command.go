// Package protocol defines the line-oriented command vocabulary spoken between
// the inventory app and the bridge, and its text encoding.
//
// A frame is a single line: COMMAND[,arg...]. Arguments form one CSV record, so
// free text containing commas travels quoted. The scan result is the exception:
// RFID:<tag>, with the tag appended after a colon.
package protocol

import "strings"

type Command string

const (
	CmdAddItem      Command = "ADD_ITEM"
	CmdUpdateItem   Command = "UPDATE_ITEM"
	CmdDeleteItem   Command = "DELETE_ITEM"
	CmdItemUpdated  Command = "ITEM_UPDATED"
	CmdItemRemoved  Command = "ITEM_REMOVED"
	CmdItemSaved    Command = "ITEM_SAVED"
	CmdItemNotSaved Command = "ITEM_NOT_SAVED"
	CmdAddCategory  Command = "ADD_CATEGORY"
	CmdCategoryAdd  Command = "CATEGORY_ADDED"
	CmdPingRFID     Command = "PING_RFID"
	CmdRFID         Command = "RFID"
	CmdRFIDBusy     Command = "RFID_BUSY"
	CmdRFIDTimeout  Command = "RFID_TIMEOUT"
	CmdError        Command = "ERROR"

	CmdLookup       Command = "LOOKUP"
	CmdItemFound    Command = "ITEM_FOUND"
	CmdItemNotFound Command = "ITEM_NOT_FOUND"
	CmdListItems    Command = "LIST_ITEMS"
	CmdItemList     Command = "ITEM_LIST"
)

// arity is the positional argument count of each command.
var arity = map[Command]int{
	CmdAddItem:      4, // tag, name, price, category
	CmdUpdateItem:   4,
	CmdDeleteItem:   1, // tag
	CmdItemUpdated:  4,
	CmdItemRemoved:  1,
	CmdItemSaved:    0,
	CmdItemNotSaved: 0,
	CmdAddCategory:  1, // name
	CmdCategoryAdd:  1,
	CmdPingRFID:     0,
	CmdRFID:         1, // tag, framed as RFID:<tag>
	CmdRFIDBusy:     0,
	CmdRFIDTimeout:  0,
	CmdError:        1, // reason
	CmdLookup:       1,
	CmdItemFound:    4,
	CmdItemNotFound: 1,
	CmdListItems:    0,
	CmdItemList:     1, // JSON array
}

// ParseCommand maps a received command token, in any case, to a Command.
func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := arity[c]
	return c, ok
}

// Arity reports how many positional arguments c carries.
func (c Command) Arity() int { return arity[c] }

// IsWrite reports whether c is a client write that the bridge acknowledges
// with ITEM_SAVED, ITEM_NOT_SAVED or ERROR.
func (c Command) IsWrite() bool {
	switch c {
	case CmdAddItem, CmdUpdateItem, CmdDeleteItem:
		return true
	}
	return false
}

// IsAck reports whether c acknowledges the oldest outstanding write.
func (c Command) IsAck() bool {
	switch c {
	case CmdItemSaved, CmdItemNotSaved, CmdError:
		return true
	}
	return false
}

func (c Command) String() string { return string(c) }
