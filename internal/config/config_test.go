package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockroom/internal/config"
)

func TestLoadFile_DefaultsWithoutFile(t *testing.T) {
	cfg, err := config.LoadFile("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BridgePort != 4000 || cfg.DiscoveryPort != 4001 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
	if cfg.ScanTimeout != 10*time.Second {
		t.Fatalf("want 10s scan timeout, got %v", cfg.ScanTimeout)
	}
	if len(cfg.DiscoveryRanges) != len(config.DefaultRanges) {
		t.Fatalf("want default ranges, got %v", cfg.DiscoveryRanges)
	}
}

func TestLoadFile_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stockroom.yaml")
	body := "bridge_port: 5000\nreconnect_delay: 250ms\nqueue_limit: 7\ndiscovery_ranges: [\"172.16.0\"]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUEUE_LIMIT", "9")

	cfg, err := config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BridgePort != 5000 {
		t.Fatalf("yaml port not applied: %d", cfg.BridgePort)
	}
	if cfg.ReconnectDelay != 250*time.Millisecond {
		t.Fatalf("yaml duration not applied: %v", cfg.ReconnectDelay)
	}
	if cfg.QueueLimit != 9 {
		t.Fatalf("env should override yaml, got %d", cfg.QueueLimit)
	}
	if len(cfg.DiscoveryRanges) != 1 || cfg.DiscoveryRanges[0] != "172.16.0" {
		t.Fatalf("ranges: %v", cfg.DiscoveryRanges)
	}
}

func TestLoadFile_RejectsBadEnv(t *testing.T) {
	t.Setenv("SCAN_TIMEOUT", "soon")
	if _, err := config.LoadFile(""); err == nil {
		t.Fatal("expected error for unparsable duration")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Defaults()
	cfg.MaxReconnectDelay = time.Second
	cfg.ReconnectDelay = 2 * time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected max < initial delay to be rejected")
	}
}
