package bridge_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/internal/bridge"
	"stockroom/internal/domain"
	"stockroom/internal/protocol"
)

type recPeer struct {
	id   string
	mu   sync.Mutex
	got  []string
	fail bool
}

func (p *recPeer) ID() string { return p.id }

func (p *recPeer) Send(frame string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broken pipe")
	}
	p.got = append(p.got, frame)
	return nil
}

func (p *recPeer) frames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.got...)
}

func newServer(t *testing.T, scanTimeout time.Duration) (*bridge.Server, string) {
	t.Helper()
	dir := t.TempDir()
	inv, err := bridge.OpenInventory(filepath.Join(dir, "database.csv"), filepath.Join(dir, "categories.csv"))
	require.NoError(t, err)
	return bridge.NewServer(inv, scanTimeout), dir
}

func connect(s *bridge.Server, ids ...string) []*recPeer {
	out := make([]*recPeer, len(ids))
	for i, id := range ids {
		out[i] = &recPeer{id: id}
		s.Connect(out[i])
	}
	return out
}

func TestAddItem_AckAndBroadcastToOthers(t *testing.T) {
	s, dir := newServer(t, time.Second)
	peers := connect(s, "app", "tablet", "scanner")
	app, tablet, scanner := peers[0], peers[1], peers[2]

	s.Handle(app, "ADD_ITEM,TAG1,Shirt,200,Apparel")

	assert.Equal(t, []string{"ITEM_SAVED"}, app.frames())
	assert.Equal(t, []string{"ITEM_UPDATED,TAG1,Shirt,200,Apparel"}, tablet.frames())
	assert.Equal(t, []string{"ITEM_UPDATED,TAG1,Shirt,200,Apparel"}, scanner.frames())

	body, err := os.ReadFile(filepath.Join(dir, "database.csv"))
	require.NoError(t, err)
	assert.Equal(t, "RFID,Name,Price,Category\nTAG1,Shirt,200,Apparel\n", string(body))
}

func TestUpsert_MatchesTagCaseInsensitively(t *testing.T) {
	s, _ := newServer(t, time.Second)
	app := connect(s, "app")[0]

	s.Handle(app, "ADD_ITEM,tag1,Shirt,200,Apparel")
	s.Handle(app, "update_item, TAG1 ,Shirt XL,210,")

	rows := s.Inventory().List()
	require.Len(t, rows, 1)
	assert.Equal(t, domain.Record{RFID: "TAG1", Name: "Shirt XL", Price: "210"}, rows[0])
}

func TestAddItem_MissingFieldsListed(t *testing.T) {
	s, _ := newServer(t, time.Second)
	peers := connect(s, "app", "other")

	s.Handle(peers[0], "ADD_ITEM,,,5")

	assert.Equal(t, []string{`ERROR,"missing fields: tag, name"`}, peers[0].frames())
	assert.Empty(t, peers[1].frames())
	assert.Equal(t, 0, s.Inventory().Len())
}

func TestAddItem_BadPriceRejected(t *testing.T) {
	s, _ := newServer(t, time.Second)
	app := connect(s, "app")[0]

	s.Handle(app, "ADD_ITEM,T1,Hat,-4,")
	require.Len(t, app.frames(), 1)
	msg, err := protocol.Decode(app.frames()[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.CmdError, msg.Command)

	s.Handle(app, "ADD_ITEM,T2,Cap,,")
	rec, ok := s.Inventory().Get("T2")
	require.True(t, ok)
	assert.Equal(t, "0", rec.Price)
}

func TestDeleteItem_AbsentTagStillAcked(t *testing.T) {
	s, _ := newServer(t, time.Second)
	peers := connect(s, "app", "other")

	s.Handle(peers[0], "DELETE_ITEM,NOPE")

	assert.Equal(t, []string{"ITEM_SAVED"}, peers[0].frames())
	assert.Equal(t, []string{"ITEM_REMOVED,NOPE"}, peers[1].frames())
}

func TestAddCategory_BroadcastOnce(t *testing.T) {
	s, dir := newServer(t, time.Second)
	peers := connect(s, "app", "other")

	s.Handle(peers[0], "ADD_CATEGORY,Shoes")
	s.Handle(peers[0], "ADD_CATEGORY,Shoes")

	assert.Empty(t, peers[0].frames())
	assert.Equal(t, []string{"CATEGORY_ADDED,Shoes"}, peers[1].frames())
	body, err := os.ReadFile(filepath.Join(dir, "categories.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Name\nShoes\n", string(body))
}

func TestScan_SecondRequesterBusyResultOnlyToFirst(t *testing.T) {
	s, _ := newServer(t, time.Minute)
	peers := connect(s, "a", "b", "scanner")
	a, b, scanner := peers[0], peers[1], peers[2]

	s.Handle(a, "PING_RFID")
	s.Handle(b, "PING_RFID")

	pending, ok := s.Arbiter().Pending()
	require.True(t, ok)
	assert.Equal(t, "a", pending.Requester)
	// b is also a peer of a's request, then gets busy for its own
	assert.Equal(t, []string{"PING_RFID", "RFID_BUSY"}, b.frames())
	assert.Equal(t, []string{"PING_RFID"}, scanner.frames())

	s.Handle(scanner, "RFID:TAG2")

	assert.Equal(t, []string{"RFID:TAG2"}, a.frames())
	assert.Equal(t, []string{"PING_RFID", "RFID_BUSY"}, b.frames())
	_, ok = s.Arbiter().Pending()
	assert.False(t, ok)
}

func TestScan_TimeoutThenRetrySucceeds(t *testing.T) {
	s, _ := newServer(t, 30*time.Millisecond)
	peers := connect(s, "a", "scanner")
	a, scanner := peers[0], peers[1]

	s.Handle(a, "PING_RFID")
	require.Eventually(t, func() bool {
		f := a.frames()
		return len(f) == 1 && f[0] == "RFID_TIMEOUT"
	}, time.Second, 5*time.Millisecond)
	_, ok := s.Arbiter().Pending()
	assert.False(t, ok)

	s.Handle(a, "PING_RFID")
	s.Handle(scanner, "RFID:TAG7")
	assert.Equal(t, []string{"RFID_TIMEOUT", "RFID:TAG7"}, a.frames())
}

func TestScan_UnsolicitedResultIgnored(t *testing.T) {
	s, _ := newServer(t, time.Second)
	peers := connect(s, "a", "scanner")

	s.Handle(peers[1], "RFID:TAG2")
	assert.Empty(t, peers[0].frames())
	assert.Empty(t, peers[1].frames())
}

func TestScan_RequesterDisconnectReleasesArbiter(t *testing.T) {
	s, _ := newServer(t, time.Minute)
	peers := connect(s, "a", "b", "scanner")

	s.Handle(peers[0], "PING_RFID")
	s.Disconnect("a")
	_, ok := s.Arbiter().Pending()
	require.False(t, ok)

	s.Handle(peers[1], "PING_RFID")
	pending, ok := s.Arbiter().Pending()
	require.True(t, ok)
	assert.Equal(t, "b", pending.Requester)
}

func TestLookupAndList(t *testing.T) {
	s, _ := newServer(t, time.Second)
	app := connect(s, "app")[0]
	s.Handle(app, "ADD_ITEM,TAG1,Shirt,200,Apparel")

	s.Handle(app, "LOOKUP,tag1")
	s.Handle(app, "LOOKUP,TAG404")
	s.Handle(app, "LIST_ITEMS")

	got := app.frames()
	require.Len(t, got, 4)
	assert.Equal(t, "ITEM_FOUND,TAG1,Shirt,200,Apparel", got[1])
	assert.Equal(t, "ITEM_NOT_FOUND,TAG404", got[2])

	msg, err := protocol.Decode(got[3])
	require.NoError(t, err)
	rows, err := msg.Records()
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{RFID: "TAG1", Name: "Shirt", Price: "200", Category: "Apparel"}}, rows)
}

func TestHandle_UnknownAndMalformed(t *testing.T) {
	s, _ := newServer(t, time.Second)
	peers := connect(s, "app", "other")

	s.Handle(peers[0], "SELL_ITEM,T1")
	s.Handle(peers[0], "")
	s.Handle(peers[0], "ITEM_SAVED")

	got := peers[0].frames()
	require.Len(t, got, 2)
	for _, f := range got {
		msg, err := protocol.Decode(f)
		require.NoError(t, err)
		assert.Equal(t, protocol.CmdError, msg.Command)
	}
	assert.Empty(t, peers[1].frames())
}

func TestBroadcast_FailingPeerDoesNotStopOthers(t *testing.T) {
	s, _ := newServer(t, time.Second)
	peers := connect(s, "app", "dead", "live")
	peers[1].fail = true

	s.Handle(peers[0], "DELETE_ITEM,T1")
	assert.Equal(t, []string{"ITEM_REMOVED,T1"}, peers[2].frames())
}

func TestInventory_ReloadsQuotedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database.csv")
	inv, err := bridge.OpenInventory(path, "")
	require.NoError(t, err)
	_, err = inv.Upsert(domain.Record{RFID: "T1", Name: "Shoes, red", Price: "12.50", Category: "Footwear"})
	require.NoError(t, err)
	_, err = inv.Upsert(domain.Record{RFID: "T2", Name: "Belt", Price: "9"})
	require.NoError(t, err)
	_, err = inv.Delete("t2")
	require.NoError(t, err)

	again, err := bridge.OpenInventory(path, "")
	require.NoError(t, err)
	assert.Equal(t, []domain.Record{{RFID: "T1", Name: "Shoes, red", Price: "12.50", Category: "Footwear"}}, again.List())

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestInventory_LegacyUnquotedRowFoldsIntoCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.csv")
	require.NoError(t, os.WriteFile(path, []byte("RFID,Name,Price,Category\nT1,Cap,5,Men,Summer\n"), 0o600))

	inv, err := bridge.OpenInventory(path, "")
	require.NoError(t, err)
	rec, ok := inv.Get("T1")
	require.True(t, ok)
	assert.Equal(t, "Men,Summer", rec.Category)
}
