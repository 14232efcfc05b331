package types

// MinWatchInterval is the smallest poll interval, in seconds, a watcher
// will honor.
const MinWatchInterval = 10

// WatcherConfig is the persisted file-watcher configuration document.
type WatcherConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	AutoImport     bool   `json:"autoImport" yaml:"autoImport"`
	WatchInterval  int    `json:"watchInterval" yaml:"watchInterval" validate:"gte=10"`
	WatchDirectory string `json:"watchDirectory" yaml:"watchDirectory" validate:"required_if=Enabled true"`
}

// EffectiveInterval clamps WatchInterval to MinWatchInterval.
func (c WatcherConfig) EffectiveInterval() int {
	if c.WatchInterval < MinWatchInterval {
		return MinWatchInterval
	}
	return c.WatchInterval
}

// RemoteConfig holds the service-account credentials and target spreadsheet
// for the remote sheet watcher.
type RemoteConfig struct {
	ServiceAccountEmail string `json:"serviceAccountEmail" yaml:"serviceAccountEmail" validate:"omitempty,email"`
	PrivateKey          string `json:"privateKey" yaml:"privateKey"`
	ResourceID          string `json:"resourceId" yaml:"resourceId"`
	Enabled             bool   `json:"enabled" yaml:"enabled"`
	AutoImport          bool   `json:"autoImport" yaml:"autoImport"`
	WatchInterval       int    `json:"watchInterval,omitempty" yaml:"watchInterval,omitempty" validate:"omitempty,gte=10"`
}

// MaskedPrivateKey replaces a configured private key in read responses.
const MaskedPrivateKey = "***CONFIGURED***"

// Configured reports whether all credential fields are present.
func (c RemoteConfig) Configured() bool {
	return c.ServiceAccountEmail != "" && c.PrivateKey != "" && c.ResourceID != ""
}

// Masked returns a copy that is safe to echo back to operators.
func (c RemoteConfig) Masked() RemoteConfig {
	if c.PrivateKey != "" {
		c.PrivateKey = MaskedPrivateKey
	}
	return c
}

// EffectiveInterval returns the remote poll interval in seconds. Remote
// polling defaults to one minute to stay under API rate limits.
func (c RemoteConfig) EffectiveInterval() int {
	if c.WatchInterval == 0 {
		return 60
	}
	if c.WatchInterval < MinWatchInterval {
		return MinWatchInterval
	}
	return c.WatchInterval
}
