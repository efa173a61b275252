package protocol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/internal/domain"
	"stockroom/internal/protocol"
)

func TestEncode_ItemUpsert(t *testing.T) {
	msg := protocol.ItemMessage(protocol.CmdAddItem, domain.Record{
		RFID: "TAG1", Name: "Shirt", Price: "200", Category: "Apparel",
	})
	got, err := protocol.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, "ADD_ITEM,TAG1,Shirt,200,Apparel", got)
}

func TestEncode_QuotesFreeText(t *testing.T) {
	msg := protocol.ItemMessage(protocol.CmdItemUpdated, domain.Record{
		RFID: "T9", Name: "Shoes, red", Price: "12.50",
	})
	got, err := protocol.Encode(msg)
	require.NoError(t, err)
	assert.Equal(t, `ITEM_UPDATED,T9,"Shoes, red",12.50,`, got)

	back, err := protocol.Decode(got)
	require.NoError(t, err)
	assert.Equal(t, "Shoes, red", back.Record().Name)
	assert.Equal(t, "", back.Record().Category)
}

func TestEncode_ScanResultFraming(t *testing.T) {
	got, err := protocol.Encode(protocol.ScanResult("E200 3412"))
	require.NoError(t, err)
	assert.Equal(t, "RFID:E200 3412", got)
}

func TestEncode_RejectsDelimiterInTag(t *testing.T) {
	for _, tag := range []string{"A,B", `A"B`, "A\nB", ""} {
		_, err := protocol.Encode(protocol.New(protocol.CmdDeleteItem, tag))
		assert.ErrorIs(t, err, protocol.ErrInvalidField, "tag %q", tag)
	}
	_, err := protocol.Encode(protocol.ScanResult("X,Y"))
	assert.ErrorIs(t, err, protocol.ErrInvalidField)
}

func TestEncode_UnknownAndTooManyArgs(t *testing.T) {
	_, err := protocol.Encode(protocol.New("FROB"))
	assert.ErrorIs(t, err, protocol.ErrUnknownCommand)

	_, err = protocol.Encode(protocol.New(protocol.CmdPingRFID, "extra"))
	assert.ErrorIs(t, err, protocol.ErrInvalidField)
}

func TestEncode_BareCommands(t *testing.T) {
	for _, c := range []protocol.Command{protocol.CmdPingRFID, protocol.CmdItemSaved, protocol.CmdRFIDBusy, protocol.CmdListItems} {
		got, err := protocol.Encode(protocol.New(c))
		require.NoError(t, err)
		assert.Equal(t, string(c), got)
	}
}

func TestDecode_CaseInsensitiveCommand(t *testing.T) {
	msg, err := protocol.Decode("item_updated,TAG1,Shirt,200,Apparel\n")
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdItemUpdated, msg.Command)
	assert.Equal(t, domain.Record{RFID: "TAG1", Name: "Shirt", Price: "200", Category: "Apparel"}, msg.Record())
}

func TestDecode_ScanResultNotCommaSplit(t *testing.T) {
	msg, err := protocol.Decode("rfid:E2,00")
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdRFID, msg.Command)
	assert.Equal(t, "E2,00", msg.Arg(0))

	_, err = protocol.Decode("RFID:")
	assert.ErrorIs(t, err, protocol.ErrInvalidField)
}

func TestDecode_PositionalPaddingAndSurplus(t *testing.T) {
	msg, err := protocol.Decode("ADD_ITEM,TAG1,Shirt")
	require.NoError(t, err)
	assert.Equal(t, []string{"TAG1", "Shirt", "", ""}, msg.Args)

	// legacy unquoted frame with a comma in the last field
	msg, err = protocol.Decode("ADD_ITEM,TAG1,Shirt,200,Men,Summer")
	require.NoError(t, err)
	assert.Equal(t, "Men,Summer", msg.Record().Category)

	msg, err = protocol.Decode("ERROR,missing fields: tag, name")
	require.NoError(t, err)
	assert.Equal(t, "missing fields: tag, name", msg.Arg(0))

	msg, err = protocol.Decode("PING_RFID,junk")
	require.NoError(t, err)
	assert.Empty(t, msg.Args)
}

func TestDecode_CategorySentinels(t *testing.T) {
	for _, raw := range []string{
		"ITEM_UPDATED,T1,Cap,5,undefined",
		"ITEM_UPDATED,T1,Cap,5,NULL",
		"ITEM_UPDATED,T1,Cap,5,",
		"ITEM_UPDATED,T1,Cap,5",
	} {
		msg, err := protocol.Decode(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "", msg.Record().Category, raw)
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := protocol.Decode("  \r\n")
	assert.ErrorIs(t, err, protocol.ErrEmpty)

	_, err = protocol.Decode("SELL_ITEM,T1")
	assert.ErrorIs(t, err, protocol.ErrUnknownCommand)

	// RFID is only valid in its colon form
	_, err = protocol.Decode("RFID,T1")
	assert.ErrorIs(t, err, protocol.ErrUnknownCommand)
}

func TestItemList_RoundTrip(t *testing.T) {
	in := []domain.Record{{RFID: "A", Name: "Hat, wool", Price: "3"}, {RFID: "B", Name: "Belt", Price: "9", Category: "Acc"}}
	msg, err := protocol.ItemList(in)
	require.NoError(t, err)

	raw, err := protocol.Encode(msg)
	require.NoError(t, err)
	back, err := protocol.Decode(raw)
	require.NoError(t, err)

	out, err := back.Records()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCommandClassification(t *testing.T) {
	assert.True(t, protocol.CmdUpdateItem.IsWrite())
	assert.False(t, protocol.CmdAddCategory.IsWrite())
	assert.True(t, protocol.CmdItemNotSaved.IsAck())
	assert.False(t, protocol.CmdRFIDBusy.IsAck())
}
