package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BackendTree and BackendRedis are the recognized storage.backend values.
const (
	BackendTree  = "tree"
	BackendRedis = "redis"
)

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// ApplyDefaults fills unset fields with working local-dev values.
func (c *Config) ApplyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendTree
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = "./.database"
	}
	if c.Storage.StateDir == "" {
		c.Storage.StateDir = "./.state"
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = "*/30 * * * *"
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendTree, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, BackendTree, BackendRedis)
	}
	if c.Storage.Backend == BackendTree && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required for the tree backend")
	}
	if c.Storage.Backend == BackendRedis && c.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}
	return nil
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr    string
	DB      string
	Backend string
	Config  string
	Set     map[string]bool
}

// ParseFlags defines and parses the server's command-line flags.
func ParseFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "embedded database path")
	backendPtr := flag.String("backend", "", "storage backend: tree or redis")
	cfgPtr := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Backend: *backendPtr, Config: *cfgPtr, Set: set}
}

// ApplyEnvOverrides overlays APHORIST_* environment variables onto cfg and
// reports whether any were used.
func ApplyEnvOverrides(cfg *Config) bool {
	used := false
	parseList := func(v string) []string {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("APHORIST_ADDR"); v != "" {
		used = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("APHORIST_PORT"); v != "" {
		if pi, err := strconv.Atoi(v); err == nil {
			used = true
			cfg.Server.Port = pi
		}
	}
	if v := os.Getenv("APHORIST_BACKEND"); v != "" {
		used = true
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("APHORIST_DB_PATH"); v != "" {
		used = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("APHORIST_STATE_DIR"); v != "" {
		used = true
		cfg.Storage.StateDir = v
	}
	if v := os.Getenv("APHORIST_REDIS_ADDR"); v != "" {
		used = true
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("APHORIST_REDIS_PASSWORD"); v != "" {
		used = true
		cfg.Storage.Redis.Password = v
	}
	if v := os.Getenv("APHORIST_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Storage.Redis.DB = n
		}
	}
	if v := os.Getenv("APHORIST_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			used = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("APHORIST_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("APHORIST_API_KEYS"); v != "" {
		used = true
		cfg.Security.APIKeys = parseList(v)
	}
	if v := os.Getenv("APHORIST_LOG_LEVEL"); v != "" {
		used = true
		cfg.Logging.Level = v
	}
	if c := os.Getenv("APHORIST_TLS_CERT"); c != "" {
		used = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("APHORIST_TLS_KEY"); k != "" {
		used = true
		cfg.Server.TLS.KeyFile = k
	}
	return used
}

// LoadEffective builds the running config: file (when present), then env
// overlay, then flag overrides, then defaults. An explicitly passed
// --config that does not exist is fatal; the default path is allowed to be
// absent.
func LoadEffective(flags Flags) (*Config, error) {
	cfgPath := flags.Config
	if !flags.Set["config"] {
		if p := os.Getenv("APHORIST_CONFIG"); p != "" {
			cfgPath = p
		}
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if flags.Set["config"] {
			return nil, fmt.Errorf("config file %s not found", cfgPath)
		}
		cfg = &Config{}
	}

	ApplyEnvOverrides(cfg)

	if flags.Set["addr"] {
		if h, p, err := net.SplitHostPort(flags.Addr); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = flags.Addr
		}
	}
	if flags.Set["db"] {
		cfg.Storage.DBPath = flags.DB
	}
	if flags.Set["backend"] {
		cfg.Storage.Backend = flags.Backend
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
