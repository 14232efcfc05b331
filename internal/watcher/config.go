package watcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rollcall/attendance/internal/types"
)

// Config document file names in the data directory.
const (
	WatcherConfigFile = "watcher-config.json"
	RemoteConfigFile  = "remote-config.json"
)

// DefaultWatchInterval is the file watcher poll interval, in seconds, when
// none is configured.
const DefaultWatchInterval = 30

// ConfigStore loads and merges the watcher config documents.
type ConfigStore struct {
	dir      string
	validate *validator.Validate
	mu       sync.Mutex
}

// NewConfigStore keeps config documents in dir.
func NewConfigStore(dir string) *ConfigStore {
	return &ConfigStore{dir: dir, validate: validator.New()}
}

// DefaultWatcherConfig is used for missing fields and missing documents.
func (s *ConfigStore) DefaultWatcherConfig() types.WatcherConfig {
	return types.WatcherConfig{
		Enabled:        false,
		AutoImport:     false,
		WatchInterval:  DefaultWatchInterval,
		WatchDirectory: filepath.Join(s.dir, "excel"),
	}
}

// Watcher returns the file watcher config: defaults overlaid with the
// stored document.
func (s *ConfigStore) Watcher() (types.WatcherConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.DefaultWatcherConfig()
	if err := s.load(WatcherConfigFile, &cfg); err != nil {
		return s.DefaultWatcherConfig(), err
	}
	return cfg, nil
}

// WatcherPatch holds the fields to change; nil fields are kept.
type WatcherPatch struct {
	Enabled        *bool
	AutoImport     *bool
	WatchInterval  *int
	WatchDirectory *string
}

// UpdateWatcher merges patch into the stored config, validates and saves
// the result.
func (s *ConfigStore) UpdateWatcher(patch WatcherPatch) (types.WatcherConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.DefaultWatcherConfig()
	if err := s.load(WatcherConfigFile, &cfg); err != nil {
		return cfg, err
	}
	if patch.Enabled != nil {
		cfg.Enabled = *patch.Enabled
	}
	if patch.AutoImport != nil {
		cfg.AutoImport = *patch.AutoImport
	}
	if patch.WatchInterval != nil {
		cfg.WatchInterval = *patch.WatchInterval
	}
	if patch.WatchDirectory != nil {
		cfg.WatchDirectory = *patch.WatchDirectory
	}

	if err := s.validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid watcher config: %w", err)
	}
	return cfg, s.save(WatcherConfigFile, cfg)
}

// Remote returns the stored remote-source config, unmasked.
func (s *ConfigStore) Remote() (types.RemoteConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfg types.RemoteConfig
	if err := s.load(RemoteConfigFile, &cfg); err != nil {
		return types.RemoteConfig{}, err
	}
	return cfg, nil
}

// RemotePatch holds the fields to change; nil fields are kept. An empty or
// masked PrivateKey also keeps the stored key.
type RemotePatch struct {
	ServiceAccountEmail *string
	PrivateKey          *string
	ResourceID          *string
	Enabled             *bool
	AutoImport          *bool
	WatchInterval       *int
}

// UpdateRemote merges patch into the stored remote config, validates and
// saves it. The returned copy is masked.
func (s *ConfigStore) UpdateRemote(patch RemotePatch) (types.RemoteConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg types.RemoteConfig
	if err := s.load(RemoteConfigFile, &cfg); err != nil {
		return types.RemoteConfig{}, err
	}
	if patch.ServiceAccountEmail != nil {
		cfg.ServiceAccountEmail = *patch.ServiceAccountEmail
	}
	if patch.PrivateKey != nil && *patch.PrivateKey != "" && *patch.PrivateKey != types.MaskedPrivateKey {
		cfg.PrivateKey = *patch.PrivateKey
	}
	if patch.ResourceID != nil {
		cfg.ResourceID = *patch.ResourceID
	}
	if patch.Enabled != nil {
		cfg.Enabled = *patch.Enabled
	}
	if patch.AutoImport != nil {
		cfg.AutoImport = *patch.AutoImport
	}
	if patch.WatchInterval != nil {
		cfg.WatchInterval = *patch.WatchInterval
	}

	if err := s.validate.Struct(cfg); err != nil {
		return cfg.Masked(), fmt.Errorf("invalid remote config: %w", err)
	}
	if cfg.Enabled && !cfg.Configured() {
		return cfg.Masked(), fmt.Errorf("invalid remote config: %w", ErrNotConfigured)
	}
	if err := s.save(RemoteConfigFile, cfg); err != nil {
		return cfg.Masked(), err
	}
	return cfg.Masked(), nil
}

// load decodes the named document onto out. A missing document leaves out
// untouched.
func (s *ConfigStore) load(name string, out any) error {
	// #nosec G304 - fixed document names in the data dir
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

func (s *ConfigStore) save(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
