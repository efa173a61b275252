package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"stockroom/internal/bridge"
	"stockroom/internal/config"
	"stockroom/internal/http/handlers"
)

type logEntry struct {
	Level  string                 `json:"level"`
	Action string                 `json:"action"`
	Fields map[string]interface{} `json:"fields"`
}

type lockedBuf struct {
	b  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedBuf) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedBuf{b: &buf, mu: &mu})
	log.SetFlags(0)
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	mu.Lock()
	raw := buf.String()
	mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func hasAction(entries []logEntry, action string) bool {
	for _, e := range entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

type httpResponse struct {
	status int
	body   string
}

func readResponse(t *testing.T, r *http.Response) *httpResponse {
	t.Helper()
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatal(err)
	}
	return &httpResponse{status: r.StatusCode, body: string(b)}
}

func newBridge(t *testing.T) (*bridge.Server, *handlers.Deps) {
	t.Helper()
	dir := t.TempDir()
	inv, err := bridge.OpenInventory(filepath.Join(dir, "database.csv"), filepath.Join(dir, "categories.csv"))
	if err != nil {
		t.Fatalf("open inventory: %v", err)
	}
	srv := bridge.NewServer(inv, time.Second)
	cfg := config.Defaults()
	return srv, handlers.NewDeps(srv, cfg)
}
