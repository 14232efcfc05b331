// Package watcher runs the change watchers that pull attendance rows from
// spreadsheet files and remote sheets into reconciliation.
//
// Each watcher is a Runner around a Source. The runner owns the timer, the
// state machine and the single-flight cycle slot:
//
//	Disabled -> Idle -> Checking -> Importing -> Idle
//
// Only one cycle runs at a time per runner, or per lock file when runners in
// separate processes share Config.LockPath. A timer tick that finds a cycle
// in flight is skipped; Trigger waits for it and then runs its own cycle;
// TryTrigger refuses with ErrCycleInFlight.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rollcall/attendance/internal/lockfile"
	"github.com/rollcall/attendance/internal/notify"
	"github.com/rollcall/attendance/internal/reconcile"
	"github.com/rollcall/attendance/internal/types"
)

var (
	// ErrCycleInFlight is returned by TryTrigger while a cycle runs.
	ErrCycleInFlight = errors.New("watcher cycle already in progress")

	// ErrNotConfigured means the source lacks the settings it needs.
	ErrNotConfigured = errors.New("watcher source not configured")

	// ErrAlreadyRunning is returned by Start on a started runner.
	ErrAlreadyRunning = errors.New("watcher already running")
)

// State is the runner's position in the watch cycle.
type State int

const (
	StateDisabled State = iota
	StateIdle
	StateChecking
	StateImporting
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateImporting:
		return "importing"
	default:
		return "unknown"
	}
}

// Settings is the part of a source's config the runner acts on.
type Settings struct {
	Enabled    bool
	AutoImport bool
	Interval   time.Duration
}

// Active reports whether timer ticks should run cycles.
func (s Settings) Active() bool {
	return s.Enabled && s.AutoImport
}

// Unit is one file or worksheet to reconcile.
type Unit struct {
	Label string
	Date  string
	Rows  []reconcile.Row

	// Err is set when the unit was found but could not be read. The cycle
	// reports it and moves on to the next unit.
	Err error
}

// Source enumerates changed units.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string

	// Settings re-reads the source's config document.
	Settings() (Settings, error)

	// Check returns the units to reconcile. An error aborts the cycle.
	Check(ctx context.Context) ([]Unit, error)
}

// Resetter is implemented by sources that keep change-detection state.
type Resetter interface {
	Reset()
}

// Nudger is implemented by sources that can signal a change between ticks.
// nudge must not block.
type Nudger interface {
	Watch(ctx context.Context, nudge func()) error
}

// Reconciler applies the rows of one unit.
type Reconciler interface {
	Reconcile(ctx context.Context, date string, rows []reconcile.Row) (types.SyncResult, error)
}

// Publisher receives a notification after every cycle that changed data.
type Publisher interface {
	Publish(ctx context.Context, n notify.Notification) error
}

// CycleReport describes one completed or aborted cycle.
type CycleReport struct {
	Source    string              `json:"source"`
	Success   bool                `json:"success"`
	Skipped   bool                `json:"skipped,omitempty"`
	Message   string              `json:"message"`
	Units     []notify.UnitResult `json:"units"`
	Result    types.SyncResult    `json:"result"`
	StartedAt time.Time           `json:"startedAt"`
	Duration  time.Duration       `json:"duration"`
}

// Config configures a Runner.
type Config struct {
	// Kind tags the notifications this runner publishes
	Kind notify.Type

	// MinInterval is the floor for the poll interval (default: 10s)
	MinInterval time.Duration

	// Logger for watcher activity (default: standard logrus logger)
	Logger logrus.FieldLogger

	// LockPath, when set, names a lock file that serializes cycles across
	// every process watching the same source. Empty keeps the guard
	// in-process.
	LockPath string
}

// cycleLock guards the single cycle slot.
type cycleLock interface {
	Lock(ctx context.Context) error
	TryLock() error
	Unlock() error
}

// chanLock is the in-process cycleLock.
type chanLock chan struct{}

func (l chanLock) Lock(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l chanLock) TryLock() error {
	select {
	case l <- struct{}{}:
		return nil
	default:
		return lockfile.ErrLocked
	}
}

func (l chanLock) Unlock() error {
	<-l
	return nil
}

// Runner drives one Source on a timer.
type Runner struct {
	source    Source
	engine    Reconciler
	publisher Publisher
	kind      notify.Type
	minIntvl  time.Duration
	logger    logrus.FieldLogger

	// slot is held while a cycle runs.
	slot cycleLock

	stateMu sync.RWMutex
	state   State
	last    *CycleReport

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	nudges  chan struct{}
	wg      sync.WaitGroup
}

// NewRunner creates a stopped runner. publisher may be nil.
func NewRunner(source Source, engine Reconciler, publisher Publisher, config Config) *Runner {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.MinInterval <= 0 {
		config.MinInterval = types.MinWatchInterval * time.Second
	}
	var slot cycleLock = make(chanLock, 1)
	if config.LockPath != "" {
		slot = lockfile.New(config.LockPath)
	}
	return &Runner{
		source:    source,
		engine:    engine,
		publisher: publisher,
		kind:      config.Kind,
		minIntvl:  config.MinInterval,
		logger:    config.Logger.WithField("watcher", source.Name()),
		slot:      slot,
		state:     StateDisabled,
	}
}

// State returns the current state.
func (r *Runner) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.stateMu.Lock()
	r.state = s
	r.stateMu.Unlock()
}

// LastReport returns the most recent cycle report, if any.
func (r *Runner) LastReport() (CycleReport, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.last == nil {
		return CycleReport{}, false
	}
	return *r.last, true
}

// IsRunning reports whether the timer loop is active.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start reads the source config, runs one cycle immediately and then one per
// interval until Stop or ctx is cancelled. Ticks while the config is
// disabled or has autoImport off do nothing, so enabling the config takes
// effect on the next tick.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyRunning
	}

	settings, err := r.source.Settings()
	if err != nil {
		return fmt.Errorf("failed to load %s config: %w", r.source.Name(), err)
	}
	interval := r.interval(settings)

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.nudges = make(chan struct{}, 1)

	if settings.Active() {
		r.setState(StateIdle)
	}

	if n, ok := r.source.(Nudger); ok {
		nudges := r.nudges
		if err := n.Watch(loopCtx, func() {
			select {
			case nudges <- struct{}{}:
			default:
			}
		}); err != nil {
			r.logger.WithError(err).Warn("change notifications unavailable, polling only")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"enabled":    settings.Enabled,
		"autoImport": settings.AutoImport,
		"interval":   interval.String(),
	}).Info("watcher started")

	r.wg.Add(1)
	go r.loop(loopCtx, interval, r.nudges)
	return nil
}

// Stop halts the timer and waits for an in-flight cycle to finish. Source
// change-detection state is cleared.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	if rs, ok := r.source.(Resetter); ok {
		rs.Reset()
	}
	r.setState(StateDisabled)
	r.logger.Info("watcher stopped")
}

func (r *Runner) interval(s Settings) time.Duration {
	if s.Interval < r.minIntvl {
		return r.minIntvl
	}
	return s.Interval
}

func (r *Runner) loop(ctx context.Context, interval time.Duration, nudges <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.tick(ctx, ticker, &interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx, ticker, &interval)
		case <-nudges:
			r.tick(ctx, ticker, &interval)
		}
	}
}

// tick runs a timer cycle unless one is already in flight, and picks up
// interval changes from the config.
func (r *Runner) tick(ctx context.Context, ticker *time.Ticker, interval *time.Duration) {
	if err := r.slot.TryLock(); err != nil {
		r.logger.WithError(err).Debug("cycle in flight, skipping tick")
		return
	}
	defer r.release()

	report, settings := r.runCycle(ctx, false)
	if settings != nil {
		if next := r.interval(*settings); next != *interval {
			*interval = next
			ticker.Reset(next)
			r.logger.WithField("interval", next.String()).Info("watch interval changed")
		}
	}
	if !report.Skipped {
		r.logReport(report)
	}
}

// Trigger runs a cycle now, waiting for any in-flight cycle to finish first.
// Manual cycles run even when the config is disabled.
func (r *Runner) Trigger(ctx context.Context) (CycleReport, error) {
	if err := r.slot.Lock(ctx); err != nil {
		return CycleReport{}, err
	}
	defer r.release()

	report, _ := r.runCycle(ctx, true)
	r.logReport(report)
	return report, nil
}

// TryTrigger runs a cycle now, or returns ErrCycleInFlight.
func (r *Runner) TryTrigger(ctx context.Context) (CycleReport, error) {
	if err := r.slot.TryLock(); err != nil {
		if errors.Is(err, lockfile.ErrLocked) {
			return CycleReport{}, ErrCycleInFlight
		}
		return CycleReport{}, err
	}
	defer r.release()

	report, _ := r.runCycle(ctx, true)
	r.logReport(report)
	return report, nil
}

func (r *Runner) release() {
	if err := r.slot.Unlock(); err != nil {
		r.logger.WithError(err).Warn("failed to release cycle lock")
	}
}

// runCycle performs Checking then Importing. The caller holds the slot.
func (r *Runner) runCycle(ctx context.Context, manual bool) (report CycleReport, _ *Settings) {
	report = CycleReport{
		Source:    r.source.Name(),
		Units:     []notify.UnitResult{},
		Result:    types.NewSyncResult(),
		StartedAt: time.Now(),
	}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		if !report.Skipped {
			r.stateMu.Lock()
			last := report
			r.last = &last
			r.stateMu.Unlock()
		}
	}()

	settings, err := r.source.Settings()
	if err != nil {
		report.Message = fmt.Sprintf("Failed to load %s config: %v", r.source.Name(), err)
		return report, nil
	}
	if !manual && !settings.Active() {
		r.setState(StateDisabled)
		report.Skipped = true
		report.Message = fmt.Sprintf("%s watcher disabled", r.source.Name())
		return report, &settings
	}
	idle := StateIdle
	if !settings.Active() {
		idle = StateDisabled
	}
	defer r.setState(idle)

	r.setState(StateChecking)
	units, err := r.source.Check(ctx)
	if err != nil {
		report.Message = fmt.Sprintf("Failed to sync from %s: %v", r.source.Name(), err)
		return report, &settings
	}

	r.setState(StateImporting)
	applied, result, err := Apply(ctx, r.engine, units)
	report.Units = applied
	report.Result = result
	if err != nil {
		report.Message = fmt.Sprintf("Failed to sync from %s: %v", r.source.Name(), err)
		r.publish(ctx, report)
		return report, &settings
	}

	report.Success = true
	report.Message = fmt.Sprintf("Successfully synced %d unit(s) from %s: %s",
		len(units), r.source.Name(), report.Result.String())
	r.publish(ctx, report)
	return report, &settings
}

// Apply reconciles units in order. A unit that could not be read is
// recorded as an error and skipped. A reconcile error stops at that unit
// and is returned with the results so far.
func Apply(ctx context.Context, engine Reconciler, units []Unit) ([]notify.UnitResult, types.SyncResult, error) {
	results := make([]notify.UnitResult, 0, len(units))
	total := types.NewSyncResult()
	for _, unit := range units {
		ur := notify.UnitResult{Label: unit.Label, Date: unit.Date, Result: types.NewSyncResult()}
		if unit.Err != nil {
			ur.Error = unit.Err.Error()
			total.AddError("%s: %v", unit.Label, unit.Err)
			results = append(results, ur)
			continue
		}

		result, err := engine.Reconcile(ctx, unit.Date, unit.Rows)
		ur.Result = result
		total.Merge(result)
		if err != nil {
			ur.Error = err.Error()
			results = append(results, ur)
			return results, total, fmt.Errorf("%s: %w", unit.Label, err)
		}
		results = append(results, ur)
	}
	return results, total, nil
}

// publish sends the notification when the cycle changed anything.
func (r *Runner) publish(ctx context.Context, report CycleReport) {
	if r.publisher == nil || !report.Result.Changed() {
		return
	}
	n := notify.Notification{
		Type:      r.kind,
		Source:    report.Source,
		Units:     report.Units,
		Result:    report.Result,
		Timestamp: time.Now().UTC(),
	}
	if err := r.publisher.Publish(ctx, n); err != nil {
		r.logger.WithError(err).Error("failed to publish update notification")
	}
}

func (r *Runner) logReport(report CycleReport) {
	log := r.logger.WithFields(logrus.Fields{
		"units":    len(report.Units),
		"created":  report.Result.Created,
		"updated":  report.Result.Updated,
		"errors":   report.Result.Errors,
		"duration": report.Duration.String(),
	})
	if !report.Success {
		log.Warn(report.Message)
		return
	}
	if report.Result.Changed() {
		log.Info(report.Message)
		return
	}
	log.Debug("no changes detected")
}
