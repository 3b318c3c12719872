package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/pkg/filter"
)

var (
	// ErrInvalidState is returned for unknown application states
	ErrInvalidState = errors.New("invalid application state")
	// ErrInvalidCheckpoint is returned for unknown checkpoint statuses
	ErrInvalidCheckpoint = errors.New("invalid checkpoint status")
)

// Store persists applications and their events
type Store interface {
	GetApplication(id uint) (*models.Application, error)
	UpdateApplication(app *models.Application) error
	SaveEvent(app *models.Application, event *models.ApplicationEvent) error
	MarkEventAlerted(eventID uint) error
}

// Alerter raises alerts for application events
type Alerter interface {
	AlertState(ctx context.Context, app *models.Application, state models.AppState) bool
	AlertCheckpoint(ctx context.Context, app *models.Application, status models.CheckpointStatus) bool
}

// Broadcaster pushes live updates to connected clients
type Broadcaster interface {
	BroadcastState(applicationID uint, from, to string)
	BroadcastCheckpoint(applicationID uint, status string, failures int)
}

// StateObserver counts state transitions
type StateObserver interface {
	ObserveState(state string)
}

// Options configures a Tracker
type Options struct {
	Store       Store
	Alerter     Alerter
	Broadcaster Broadcaster
	Filter      *filter.Filter
	Observer    StateObserver
	Logger      *zap.Logger
	Now         func() time.Time
}

// Tracker applies lifecycle updates to applications and raises alerts
type Tracker struct {
	store       Store
	alerter     Alerter
	broadcaster Broadcaster
	filter      *filter.Filter
	observer    StateObserver
	logger      *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	locks map[uint]*appLock
}

// appLock is a per-application mutex shared by its current holders and waiters
type appLock struct {
	sync.Mutex
	refs int
}

// New creates a tracker
func New(opts Options) *Tracker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	f := opts.Filter
	if f == nil {
		f = filter.NewDefaultFilter()
	}
	return &Tracker{
		store:       opts.Store,
		alerter:     opts.Alerter,
		broadcaster: opts.Broadcaster,
		filter:      f,
		observer:    opts.Observer,
		logger:      logger.With(zap.String("component", "tracker")),
		now:         now,
		locks:       make(map[uint]*appLock),
	}
}

// lock serialises updates of a single application. The entry is dropped
// once the last holder releases it.
func (t *Tracker) lock(appID uint) func() {
	t.mu.Lock()
	l, ok := t.locks[appID]
	if !ok {
		l = &appLock{}
		t.locks[appID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, appID)
		}
		t.mu.Unlock()
	}
}

// Transition moves an application to state. Repeating the current state
// is a no-op. Alert delivery never fails the transition.
func (t *Tracker) Transition(ctx context.Context, appID uint, state models.AppState) (*models.Application, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	unlock := t.lock(appID)
	defer unlock()

	app, err := t.store.GetApplication(appID)
	if err != nil {
		return nil, err
	}
	if app.State == state {
		return app, nil
	}

	now := t.now()
	from := app.State
	app.State = state

	switch {
	case state == models.StateRestarting:
		app.RestartCount++
	case state == models.StateStarting || state == models.StateRunning:
		if app.StartTime == nil || app.EndTime != nil {
			app.StartTime = &now
			app.EndTime = nil
		}
	case state.IsEnded():
		if app.EndTime == nil {
			app.EndTime = &now
		}
	}

	event := &models.ApplicationEvent{
		Kind:      models.EventStateChange,
		FromState: from,
		ToState:   state,
		Timestamp: now,
	}
	if err := t.store.SaveEvent(app, event); err != nil {
		return nil, fmt.Errorf("failed to save transition: %w", err)
	}

	t.logger.Info("application state changed",
		zap.Uint("application_id", app.ID),
		zap.String("job_name", app.JobName),
		zap.String("from", string(from)),
		zap.String("to", string(state)),
	)
	if t.observer != nil {
		t.observer.ObserveState(string(state))
	}
	if t.broadcaster != nil {
		t.broadcaster.BroadcastState(app.ID, string(from), string(state))
	}

	if t.alerter != nil && t.filter.Match(string(state)) {
		if t.alerter.AlertState(ctx, app, state) {
			t.markAlerted(event)
		}
	}
	return app, nil
}

// ReportCheckpoint records a checkpoint outcome. Completed checkpoints reset
// the failure counter; failures raise an alert once CpMaxFailures
// consecutive failures have been seen, after which the counter restarts.
func (t *Tracker) ReportCheckpoint(ctx context.Context, appID uint, status models.CheckpointStatus) (*models.Application, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCheckpoint, status)
	}

	unlock := t.lock(appID)
	defer unlock()

	app, err := t.store.GetApplication(appID)
	if err != nil {
		return nil, err
	}

	switch status {
	case models.CheckpointCompleted:
		app.CpFailureCount = 0
	case models.CheckpointFailed:
		app.CpFailureCount++
	}

	event := &models.ApplicationEvent{
		Kind:       models.EventCheckpoint,
		Checkpoint: string(status),
		Timestamp:  t.now(),
	}
	if err := t.store.SaveEvent(app, event); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if t.broadcaster != nil {
		t.broadcaster.BroadcastCheckpoint(app.ID, string(status), app.CpFailureCount)
	}

	if status != models.CheckpointFailed || app.CpMaxFailures <= 0 || app.CpFailureCount < app.CpMaxFailures {
		return app, nil
	}

	t.logger.Warn("checkpoint failure threshold reached",
		zap.Uint("application_id", app.ID),
		zap.String("job_name", app.JobName),
		zap.Int("failures", app.CpFailureCount),
	)
	if t.alerter != nil && t.alerter.AlertCheckpoint(ctx, app, status) {
		t.markAlerted(event)
	}

	app.CpFailureCount = 0
	if err := t.store.UpdateApplication(app); err != nil {
		t.logger.Error("failed to reset checkpoint failures", zap.Uint("application_id", app.ID), zap.Error(err))
	}
	return app, nil
}

func (t *Tracker) markAlerted(event *models.ApplicationEvent) {
	if err := t.store.MarkEventAlerted(event.ID); err != nil {
		t.logger.Warn("failed to mark event alerted", zap.Uint("event_id", event.ID), zap.Error(err))
		return
	}
	event.Alerted = true
}
