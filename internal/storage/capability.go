package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/mirror"
)

// ErrMirrorDisabled is the Unavailable reason when no mirror path is
// configured.
var ErrMirrorDisabled = errors.New("relational mirror disabled")

// Capability is the outcome of the one-time mirror check at startup.
type Capability struct {
	mirror *mirror.DB
	reason error
}

// Available wraps an open, initialized mirror.
func Available(db *mirror.DB) Capability {
	if db == nil {
		return Unavailable(ErrMirrorDisabled)
	}
	return Capability{mirror: db}
}

// Unavailable records why the mirror cannot be used.
func Unavailable(reason error) Capability {
	if reason == nil {
		reason = ErrMirrorUnavailable
	}
	return Capability{reason: reason}
}

// Available reports whether the mirror can be used.
func (c Capability) Available() bool {
	return c.mirror != nil
}

// Reason is nil when the mirror is available.
func (c Capability) Reason() error {
	return c.reason
}

func (c Capability) String() string {
	if c.Available() {
		return "available (" + c.mirror.Path() + ")"
	}
	return "unavailable: " + c.reason.Error()
}

// Negotiate opens and initializes the mirror at path once. Any failure yields
// an Unavailable capability rather than an error; the coordinator then serves
// everything from the flat store.
func Negotiate(ctx context.Context, path string, logger logrus.FieldLogger) Capability {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "storage")

	if path == "" {
		log.Info("relational mirror disabled, using flat store only")
		return Unavailable(ErrMirrorDisabled)
	}

	db, err := mirror.Open(path)
	if err != nil {
		log.WithError(err).Warn("relational mirror unavailable, falling back to flat store")
		return Unavailable(err)
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		log.WithError(err).Warn("relational mirror schema failed, falling back to flat store")
		return Unavailable(fmt.Errorf("failed to initialize mirror: %w", err))
	}

	log.WithField("path", path).Info("relational mirror available")
	return Available(db)
}
