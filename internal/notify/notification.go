// Package notify publishes the "last update" record that watchers write
// after every cycle that changed data, and pushes it to WebSocket clients.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/types"
)

// FileName is the notification document in the data directory.
const FileName = "last-update-notification.json"

// Type names the kind of import that produced a notification.
type Type string

const (
	TypeFileImport   Type = "file_import"
	TypeRemoteImport Type = "remote_import"
)

// UnitResult is the outcome for one file or worksheet.
type UnitResult struct {
	Label  string           `json:"label"`
	Date   string           `json:"date,omitempty"`
	Result types.SyncResult `json:"result"`
	Error  string           `json:"error,omitempty"`
}

// Notification is the shared "last update" record.
type Notification struct {
	Type      Type             `json:"type"`
	Source    string           `json:"source"`
	Units     []UnitResult     `json:"units"`
	Result    types.SyncResult `json:"result"`
	Timestamp time.Time        `json:"timestamp"`
}

// Broadcaster pushes notifications to live clients.
type Broadcaster interface {
	Broadcast(n Notification)
}

// Publisher persists the last notification and fans it out.
type Publisher struct {
	path   string
	logger logrus.FieldLogger

	mu          sync.Mutex
	broadcaster Broadcaster
}

// NewPublisher writes notifications into dataDir.
func NewPublisher(dataDir string, logger logrus.FieldLogger) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Publisher{
		path:   filepath.Join(dataDir, FileName),
		logger: logger.WithField("component", "notify"),
	}
}

// Path returns the notification document path.
func (p *Publisher) Path() string {
	return p.path
}

// SetBroadcaster attaches a live-client broadcaster. nil detaches it.
func (p *Publisher) SetBroadcaster(b Broadcaster) {
	p.mu.Lock()
	p.broadcaster = b
	p.mu.Unlock()
}

// Publish replaces the notification document and broadcasts n.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if n.Units == nil {
		n.Units = []UnitResult{}
	}

	data, err := json.MarshalIndent(n, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	tmpPath := p.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	p.mu.Lock()
	b := p.broadcaster
	p.mu.Unlock()
	if b != nil {
		b.Broadcast(n)
	}

	p.logger.WithFields(logrus.Fields{
		"type":    n.Type,
		"source":  n.Source,
		"created": n.Result.Created,
		"updated": n.Result.Updated,
	}).Info("published update notification")
	return nil
}

// Latest returns the stored notification if it is newer than since. A zero
// since returns any stored notification. nil means there is nothing new.
func (p *Publisher) Latest(since time.Time) (*Notification, error) {
	// #nosec G304 - fixed file name in the data dir
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read notification: %w", err)
	}

	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse notification: %w", err)
	}
	if !since.IsZero() && !n.Timestamp.After(since) {
		return nil, nil
	}
	return &n, nil
}
