package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockroom/internal/bridge"
	"stockroom/internal/domain"
	"stockroom/internal/session"
)

// loopConn is an in-process link: it is the client's session.Conn and the
// bridge's Peer at once.
type loopConn struct {
	id   string
	srv  *bridge.Server
	in   chan string
	done chan struct{}
	once sync.Once
}

func (c *loopConn) ID() string { return c.id }

func (c *loopConn) Send(frame string) error {
	select {
	case c.in <- frame:
		return nil
	case <-c.done:
		return errors.New("closed")
	}
}

func (c *loopConn) ReadMessage() (string, error) {
	select {
	case f := <-c.in:
		return f, nil
	case <-c.done:
		return "", io.EOF
	}
}

func (c *loopConn) WriteMessage(frame string) error {
	select {
	case <-c.done:
		return errors.New("closed")
	default:
	}
	c.srv.Handle(c, frame)
	return nil
}

func (c *loopConn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.srv.Disconnect(c.id)
	})
	return nil
}

type loopDialer struct {
	srv *bridge.Server
	n   atomic.Int64
}

func (d *loopDialer) Dial(ctx context.Context, addr string) (session.Conn, error) {
	c := &loopConn{
		id:   fmt.Sprintf("cli-%d", d.n.Add(1)),
		srv:  d.srv,
		in:   make(chan string, 64),
		done: make(chan struct{}),
	}
	d.srv.Connect(c)
	return c, nil
}

type downDialer struct{}

func (downDialer) Dial(ctx context.Context, addr string) (session.Conn, error) {
	return nil, errors.New("connection refused")
}

// scannerPeer answers every scan request with tag.
type scannerPeer struct {
	srv *bridge.Server
	tag string
}

func (p *scannerPeer) ID() string { return "scanner" }

func (p *scannerPeer) Send(frame string) error {
	if frame == "PING_RFID" {
		go p.srv.Handle(p, "RFID:"+p.tag)
	}
	return nil
}

type fixture struct {
	t      *testing.T
	srv    *bridge.Server
	dialer session.Dialer
	db     string
	dir    string
	wait   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("STOCKROOM_CONFIG", "")
	dir := t.TempDir()
	inv, err := bridge.OpenInventory(filepath.Join(dir, "database.csv"), filepath.Join(dir, "categories.csv"))
	require.NoError(t, err)
	srv := bridge.NewServer(inv, time.Second)
	return &fixture{
		t:      t,
		srv:    srv,
		dialer: &loopDialer{srv: srv},
		db:     filepath.Join(dir, "stockroom.db"),
		dir:    dir,
		wait:   "2s",
	}
}

type result struct {
	out, errOut string
	err         error
}

func (f *fixture) run(args ...string) result {
	f.t.Helper()
	opts := &RootOptions{dialer: f.dialer}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", f.db, "--server", "loop", "--wait", f.wait}, args...))
	err := cmd.Execute()
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func (f *fixture) ok(args ...string) string {
	f.t.Helper()
	r := f.run(args...)
	require.NoError(f.t, r.err, "stockroom %v: %s", args, r.errOut)
	return r.out
}

func (f *fixture) listItems() ([]domain.Item, error) {
	r := f.run("--format", "json", "item", "ls")
	if r.err != nil {
		return nil, r.err
	}
	var resp struct {
		Status string        `json:"status"`
		Data   []domain.Item `json:"data"`
	}
	if err := json.Unmarshal([]byte(r.out), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (f *fixture) items() []domain.Item {
	f.t.Helper()
	items, err := f.listItems()
	require.NoError(f.t, err)
	return items
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	want := []string{"signup", "login", "reset-password", "category", "item", "import", "export", "scan", "lookup", "pull", "sync"}
	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"config", "db", "server", "wait", "format", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	f := newFixture(t)
	r := f.run("--format", "xml", "item", "ls")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestItemAdd_ReachesBridge(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "Category \"Apparel\" created.\n", f.ok("category", "add", "Apparel"))
	out := f.ok("item", "add", "--name", "Shirt", "--price", "200", "--stock", "3", "--category", "Apparel", "--rfid", "TAG1")
	assert.Equal(t, "Item 1 added (Shirt, tag TAG1).\n", out)

	rec, ok := f.srv.Inventory().Get("TAG1")
	require.True(t, ok)
	assert.Equal(t, domain.Record{RFID: "TAG1", Name: "Shirt", Price: "200", Category: "Apparel"}, rec)
	assert.Contains(t, f.srv.Inventory().Categories(), "Apparel")
	assert.Equal(t, 0, f.srv.Hub().Len())
}

func TestItemUpdate_RetagMovesBridgeRow(t *testing.T) {
	f := newFixture(t)
	f.ok("item", "add", "--name", "Shirt", "--price", "200", "--rfid", "TAG1")

	assert.Equal(t, "Item 1 updated (Shirt, tag TAG2).\n", f.ok("item", "update", "1", "--rfid", "TAG2"))

	_, ok := f.srv.Inventory().Get("TAG1")
	assert.False(t, ok)
	rec, ok := f.srv.Inventory().Get("TAG2")
	require.True(t, ok)
	assert.Equal(t, "200", rec.Price)

	f.ok("item", "rm", "1")
	assert.Equal(t, 0, f.srv.Inventory().Len())
	assert.Empty(t, f.items())
}

func TestItemUpdate_BadID(t *testing.T) {
	f := newFixture(t)
	r := f.run("item", "update", "abc", "--name", "X")
	require.Error(t, r.err)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))

	r = f.run("item", "rm", "42")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
}

func TestItemAdd_OfflineKeepsLocalChange(t *testing.T) {
	f := newFixture(t)
	f.dialer = downDialer{}
	f.wait = "50ms"

	r := f.run("item", "add", "--name", "Shirt", "--price", "200", "--rfid", "TAG1")
	require.NoError(t, r.err)
	assert.Contains(t, r.errOut, "warning: 1 message(s) not delivered to the bridge")

	items := f.items()
	require.Len(t, items, 1)
	assert.Equal(t, "TAG1", items[0].RFID)
	assert.Equal(t, 0, f.srv.Inventory().Len())
}

func TestItemAdd_DuplicateTagRefused(t *testing.T) {
	f := newFixture(t)
	f.ok("item", "add", "--name", "Shirt", "--rfid", "TAG1")
	r := f.run("item", "add", "--name", "Cap", "--rfid", "tag1")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Len(t, f.items(), 1)
}

func TestCategory_LsAndRm(t *testing.T) {
	f := newFixture(t)
	f.ok("category", "add", "Apparel")
	f.ok("item", "add", "--name", "Shirt", "--price", "20.05", "--stock", "3", "--category", "Apparel")
	f.ok("item", "add", "--name", "Loose", "--price", "2.50", "--stock", "4")

	out := f.ok("category", "ls")
	assert.Contains(t, out, "CATEGORY")
	assert.Regexp(t, `Apparel\s+3\s+60\.15`, out)
	assert.Regexp(t, `Uncategorized\s+4\s+10\.00`, out)

	assert.Equal(t, "Category \"Apparel\" deleted.\n", f.ok("category", "rm", "Apparel"))
	r := f.run("category", "rm", "Apparel")
	assert.Equal(t, ExitFailure, GetExitCode(r.err))

	assert.Equal(t, "2 uncategorized item(s) deleted.\n", f.ok("item", "purge-uncategorized"))
	assert.Empty(t, f.items())
}

func TestScan_PrintsTag(t *testing.T) {
	f := newFixture(t)
	f.srv.Connect(&scannerPeer{srv: f.srv, tag: "E2003412"})

	assert.Equal(t, "E2003412\n", f.ok("scan"))

	out := f.ok("item", "add", "--name", "Lamp", "--scan")
	assert.Equal(t, "Item 1 added (Lamp, tag E2003412).\n", out)
	_, ok := f.srv.Inventory().Get("E2003412")
	assert.True(t, ok)
}

func TestScan_NoScannerTimesOut(t *testing.T) {
	f := newFixture(t)
	inv, err := bridge.OpenInventory(filepath.Join(f.dir, "b.csv"), filepath.Join(f.dir, "c.csv"))
	require.NoError(t, err)
	f.srv = bridge.NewServer(inv, 50*time.Millisecond)
	f.dialer = &loopDialer{srv: f.srv}

	r := f.run("scan")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
}

func TestLookupAndPull(t *testing.T) {
	f := newFixture(t)
	_, err := f.srv.Inventory().Upsert(domain.Record{RFID: "TAG7", Name: "Lamp", Price: "15", Category: "Home"})
	require.NoError(t, err)

	assert.Equal(t, "TAG7  Lamp  15  Home\n", f.ok("lookup", "tag7"))

	r := f.run("lookup", "NOPE")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))

	assert.Equal(t, "1 item(s) pulled from the bridge.\n", f.ok("pull"))
	items := f.items()
	require.Len(t, items, 1)
	assert.Equal(t, "Lamp", items[0].Name)
	assert.Equal(t, "Home", items[0].Category)
}

func TestImportExport(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.dir, "in.csv")
	require.NoError(t, os.WriteFile(src, []byte("Name,Price,Stock,RFID\nShirt,200,3,TAG1\nCap,5,1,TAG1\nMug,4,x,\n"), 0o644))

	out := f.ok("import", src)
	assert.Equal(t, "imported 1 item(s); 1 skipped, tag already present: Cap; 1 invalid row(s) skipped\n", out)
	_, ok := f.srv.Inventory().Get("TAG1")
	assert.True(t, ok)

	dst := filepath.Join(f.dir, "out.csv")
	assert.Equal(t, fmt.Sprintf("1 item(s) written to %s.\n", dst), f.ok("export", dst))
	body, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "ID,Category,Name,Stock,Price,Image,RFID\n1,,Shirt,3,200,,TAG1\n", string(body))
}

func TestAccounts(t *testing.T) {
	f := newFixture(t)
	f.ok("signup", "--name", "Ada Lovelace", "--email", "ada@example.com", "--password", "Str0ng!Pass")

	r := f.run("signup", "--name", "Ada Lovelace", "--email", "ada@example.com", "--password", "Str0ng!Pass")
	assert.Equal(t, ExitFailure, GetExitCode(r.err))

	r = f.run("login", "--email", "ada@example.com", "--password", "wrong")
	assert.Equal(t, ExitFailure, GetExitCode(r.err))

	assert.Equal(t, "Welcome, Ada Lovelace.\n", f.ok("login", "--email", "ada@example.com", "--password", "Str0ng!Pass"))

	f.ok("reset-password", "--email", "ada@example.com", "--password", "N3w!Passw0rd")
	r = f.run("login", "--email", "ada@example.com", "--password", "Str0ng!Pass")
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	f.ok("login", "--email", "ada@example.com", "--password", "N3w!Passw0rd")

	r = f.run("reset-password", "--email", "nobody@example.com", "--password", "N3w!Passw0rd")
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
}

func TestSync_AppliesBroadcastsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := &RootOptions{dialer: f.dialer}
	cmd := newRootCommand(opts)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--db", f.db, "--server", "loop", "sync"})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return f.srv.Hub().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	tablet := &scannerPeer{srv: f.srv}
	f.srv.Connect(tablet)
	f.srv.Handle(tablet, "ADD_ITEM,TAG5,Chair,40,")

	require.Eventually(t, func() bool {
		items, err := f.listItems()
		return err == nil && len(items) == 1 && items[0].Name == "Chair"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sync did not stop")
	}
	assert.Equal(t, 1, f.srv.Hub().Len())
}
