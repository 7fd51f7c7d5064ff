// Package config loads, validates, persists, and hot-serves the user's
// BlockAndFocus configuration: the upstream DNS settings, the blocklist,
// the blocking schedule, and the bypass quiz parameters.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/lc/blockandfocus/internal/filesys"
	"github.com/lc/blockandfocus/internal/matcher"
)

var (
	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoConfig is returned when the configuration file does not exist.
	ErrNoConfig = errors.New("configuration file not found")
	// ErrConfigWrite wraps any failure persisting configuration to disk.
	ErrConfigWrite = errors.New("config_error")
)

const (
	// ProdConfigPath is the configuration file path used in production.
	ProdConfigPath = "/Library/Application Support/BlockAndFocus/config.toml"
	// DevConfigPath is the configuration file path used when
	// BLOCKANDFOCUS_DEV is set.
	DevConfigPath = "./config.toml"

	filePerm = 0o600
	dirPerm  = 0o755
)

// Config holds the full BlockAndFocus configuration.
type Config struct {
	DNS      DNSConfig      `toml:"dns"`
	Blocking BlockingConfig `toml:"blocking"`
	Schedule ScheduleConfig `toml:"schedule"`
	Quiz     QuizConfig     `toml:"quiz"`
}

// DNSConfig holds the listener address/port and the (currently advisory,
// see internal/dnsresolver) upstream resolver list.
type DNSConfig struct {
	ListenAddress string   `toml:"listen_address"`
	ListenPort    int      `toml:"listen_port"`
	Upstreams     []string `toml:"upstreams"`
}

// BlockingConfig holds the blocking-enabled flag and the ordered,
// normalized blocklist.
type BlockingConfig struct {
	Enabled bool     `toml:"enabled"`
	Domains []string `toml:"domains"`
}

// ScheduleConfig holds the schedule-enabled flag and ordered rule list.
type ScheduleConfig struct {
	Enabled bool           `toml:"enabled"`
	Rules   []ScheduleRule `toml:"rules"`
}

// ScheduleRule is the on-disk/wire shape of a single blocking window.
type ScheduleRule struct {
	ID        string   `toml:"id" json:"id"`
	Name      string   `toml:"name" json:"name"`
	Days      []string `toml:"days" json:"days"`
	StartTime string   `toml:"start_time" json:"start_time"`
	EndTime   string   `toml:"end_time" json:"end_time"`
}

// QuizConfig holds the bypass quiz's generation/validation parameters.
type QuizConfig struct {
	NumQuestions    int `toml:"num_questions"`
	MinOperand      int `toml:"min_operand"`
	MaxOperand      int `toml:"max_operand"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
	MinSolveSeconds int `toml:"min_solve_seconds"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		DNS: DNSConfig{
			ListenAddress: "127.0.0.1",
			ListenPort:    53,
			Upstreams:     []string{"1.1.1.1:53"},
		},
		Blocking: BlockingConfig{
			Enabled: true,
			Domains: []string{},
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Rules:   []ScheduleRule{},
		},
		Quiz: QuizConfig{
			NumQuestions:    3,
			MinOperand:      1,
			MaxOperand:      50,
			TimeoutSeconds:  60,
			MinSolveSeconds: 3,
		},
	}
}

// Validate checks that a loaded configuration is structurally sound.
func (c *Config) Validate() error {
	if c.DNS.ListenPort <= 0 || c.DNS.ListenPort > 65535 {
		return fmt.Errorf("dns.listen_port must be between 1 and 65535")
	}
	if c.Quiz.NumQuestions <= 0 {
		return fmt.Errorf("quiz.num_questions must be positive")
	}
	if c.Quiz.MaxOperand < c.Quiz.MinOperand {
		return fmt.Errorf("quiz.max_operand must be >= quiz.min_operand")
	}
	if c.Quiz.TimeoutSeconds <= 0 {
		return fmt.Errorf("quiz.timeout_seconds must be positive")
	}
	return nil
}

// FS is the filesystem surface the Store needs: enough of
// filesys.ReadWriteFS to load and locate the config, and enough of
// filesys.FileOps to persist it atomically via filesys.AtomicWrite.
type FS interface {
	filesys.ReadWriteFS
	filesys.FileOps
}

// Store loads, snapshots, and atomically mutates the configuration.
type Store interface {
	// Load reads the config at the path selected by devMode, creating it
	// from defaults if absent.
	Load(devMode bool) (*Config, error)
	// Snapshot returns a deep copy of the currently committed config.
	Snapshot() Config
	// Update applies mutate to a copy of the committed config, persists
	// it, and only then commits it in memory (persist-then-commit).
	Update(mutate func(*Config) error) error
	// AddDomain normalizes and inserts domain into the blocklist if
	// absent, then persists.
	AddDomain(domain string) error
	// RemoveDomain normalizes and removes domain from the blocklist if
	// present, then persists. removed reports whether anything changed.
	RemoveDomain(domain string) (removed bool, err error)
}

// FSStore is the filesystem-backed Store implementation.
type FSStore struct {
	fs   FS
	path string

	mu        sync.RWMutex
	committed Config
}

var _ Store = (*FSStore)(nil)

// New creates a Store using the real OS filesystem and the standard
// dev/prod path selection (BLOCKANDFOCUS_DEV env var).
func New() Store {
	return NewWithFS(filesys.OS())
}

// NewWithFS creates a Store over a caller-supplied filesystem, useful for
// tests.
func NewWithFS(fs FS) Store {
	return &FSStore{fs: fs}
}

// PathFor returns the config path for the given dev-mode flag.
func PathFor(devMode bool) string {
	if devMode {
		return DevConfigPath
	}
	return ProdConfigPath
}

// Load reads the configuration from the path selected by devMode. If the
// file does not exist, defaults are written to that path and returned.
func (s *FSStore) Load(devMode bool) (*Config, error) {
	path := PathFor(devMode)
	s.path = path

	if err := s.ensureDir(path); err != nil {
		return nil, err
	}

	cfg, err := s.readAndParse(path)
	if err != nil {
		if errors.Is(err, ErrNoConfig) {
			def := Default()
			if writeErr := s.persist(def); writeErr != nil {
				return nil, writeErr
			}
			s.mu.Lock()
			s.committed = *def
			s.mu.Unlock()
			return def, nil
		}
		return nil, err
	}

	normalizeDomains(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	s.mu.Lock()
	s.committed = *cfg
	s.mu.Unlock()
	return cfg, nil
}

// Snapshot returns a deep copy of the committed configuration.
func (s *FSStore) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.committed)
}

// Update applies mutate to a working copy, persists it to disk, and only
// then swaps it in as committed. If persistence fails, the committed copy
// is left untouched and the error is returned -- the mutation is a no-op
// from the caller's perspective.
func (s *FSStore) Update(mutate func(*Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := deepCopy(s.committed)
	if err := mutate(&working); err != nil {
		return err
	}
	normalizeDomains(&working)
	if err := working.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.persist(&working); err != nil {
		return err
	}
	s.committed = working
	return nil
}

// AddDomain normalizes and inserts domain into the blocklist if absent.
func (s *FSStore) AddDomain(domain string) error {
	norm := matcher.Normalize(domain)
	return s.Update(func(c *Config) error {
		for _, d := range c.Blocking.Domains {
			if d == norm {
				return nil
			}
		}
		c.Blocking.Domains = append(c.Blocking.Domains, norm)
		return nil
	})
}

// RemoveDomain normalizes and removes domain from the blocklist if
// present, reporting whether a removal occurred.
func (s *FSStore) RemoveDomain(domain string) (bool, error) {
	norm := matcher.Normalize(domain)
	removed := false
	err := s.Update(func(c *Config) error {
		out := c.Blocking.Domains[:0]
		for _, d := range c.Blocking.Domains {
			if d == norm {
				removed = true
				continue
			}
			out = append(out, d)
		}
		c.Blocking.Domains = out
		return nil
	})
	return removed, err
}

func (s *FSStore) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := s.fs.Stat(dir); os.IsNotExist(err) {
		if err := s.fs.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return nil
}

func (s *FSStore) readAndParse(path string) (*Config, error) {
	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var cfg Config
	if _, err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config file: %w", err)
	}
	return &cfg, nil
}

func (s *FSStore) persist(cfg *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("%w: encoding: %v", ErrConfigWrite, err)
	}
	if err := filesys.AtomicWrite(s.fs, s.path, buf.Bytes(), filePerm); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	return nil
}

func normalizeDomains(c *Config) {
	seen := make(map[string]struct{}, len(c.Blocking.Domains))
	out := c.Blocking.Domains[:0]
	for _, d := range c.Blocking.Domains {
		n := matcher.Normalize(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	c.Blocking.Domains = out
}

func deepCopy(c Config) Config {
	out := c
	out.DNS.Upstreams = append([]string(nil), c.DNS.Upstreams...)
	out.Blocking.Domains = append([]string(nil), c.Blocking.Domains...)
	out.Schedule.Rules = make([]ScheduleRule, len(c.Schedule.Rules))
	for i, r := range c.Schedule.Rules {
		out.Schedule.Rules[i] = ScheduleRule{
			ID:        r.ID,
			Name:      r.Name,
			Days:      append([]string(nil), r.Days...),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		}
	}
	return out
}
