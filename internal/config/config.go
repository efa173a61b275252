package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr        string        `yaml:"server_addr"`
	BridgeHost        string        `yaml:"bridge_host"`
	BridgePort        int           `yaml:"bridge_port"`
	DiscoveryPort     int           `yaml:"discovery_port"`
	DiscoveryRanges   []string      `yaml:"discovery_ranges"`
	DBDSN             string        `yaml:"db_dsn"`
	InventoryCSV      string        `yaml:"inventory_csv"`
	CategoriesCSV     string        `yaml:"categories_csv"`
	LogFile           string        `yaml:"log_file"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	MaxReconnectDelay time.Duration `yaml:"max_reconnect_delay"`
	ScanTimeout       time.Duration `yaml:"scan_timeout"`
	QueueLimit        int           `yaml:"queue_limit"`
}

// DefaultRanges are the /24 prefixes probed when no server address is configured.
var DefaultRanges = []string{"192.168.0", "192.168.1", "192.168.68", "192.168.56", "10.0.0"}

func Defaults() Config {
	return Config{
		BridgePort:        4000,
		DiscoveryPort:     4001,
		DiscoveryRanges:   append([]string(nil), DefaultRanges...),
		DBDSN:             "stockroom.db",
		InventoryCSV:      "database.csv",
		CategoriesCSV:     "categories.csv",
		ReconnectDelay:    3 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		ScanTimeout:       10 * time.Second,
		QueueLimit:        1000,
	}
}

// Load builds the config from defaults, the YAML file named by STOCKROOM_CONFIG
// (if any), and environment overrides, in that order.
func Load() (Config, error) {
	return LoadFile(os.Getenv("STOCKROOM_CONFIG"))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	log.Printf("[config] BRIDGE=%s:%d DISCOVERY_PORT=%d SERVER_ADDR=%q DB_DSN=%s INVENTORY_CSV=%s LOG_FILE=%s",
		cfg.BridgeHost, cfg.BridgePort, cfg.DiscoveryPort, cfg.ServerAddr, cfg.DBDSN, cfg.InventoryCSV, cfg.LogFile)
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SERVER_ADDR", &cfg.ServerAddr)
	str("BRIDGE_HOST", &cfg.BridgeHost)
	str("DB_DSN", &cfg.DBDSN)
	str("INVENTORY_CSV", &cfg.InventoryCSV)
	str("CATEGORIES_CSV", &cfg.CategoriesCSV)
	str("LOG_FILE", &cfg.LogFile)
	if v := os.Getenv("DISCOVERY_RANGES"); v != "" {
		cfg.DiscoveryRanges = nil
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.DiscoveryRanges = append(cfg.DiscoveryRanges, r)
			}
		}
	}
	for key, dst := range map[string]*int{
		"BRIDGE_PORT":    &cfg.BridgePort,
		"DISCOVERY_PORT": &cfg.DiscoveryPort,
		"QUEUE_LIMIT":    &cfg.QueueLimit,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"RECONNECT_DELAY":     &cfg.ReconnectDelay,
		"MAX_RECONNECT_DELAY": &cfg.MaxReconnectDelay,
		"SCAN_TIMEOUT":        &cfg.ScanTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.BridgePort <= 0 || c.BridgePort > 65535:
		return fmt.Errorf("bridge_port out of range: %d", c.BridgePort)
	case c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535:
		return fmt.Errorf("discovery_port out of range: %d", c.DiscoveryPort)
	case c.ReconnectDelay <= 0:
		return fmt.Errorf("reconnect_delay must be positive")
	case c.MaxReconnectDelay < c.ReconnectDelay:
		return fmt.Errorf("max_reconnect_delay must be >= reconnect_delay")
	case c.ScanTimeout <= 0:
		return fmt.Errorf("scan_timeout must be positive")
	case c.QueueLimit <= 0:
		return fmt.Errorf("queue_limit must be positive")
	}
	return nil
}

// BridgeListenAddr is the host:port the socket server binds.
func (c Config) BridgeListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BridgeHost, c.BridgePort)
}

// DiscoveryListenAddr is the host:port of the /ip responder.
func (c Config) DiscoveryListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BridgeHost, c.DiscoveryPort)
}
