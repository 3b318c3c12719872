package alert

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alert-dispatch/internal/db/models"
)

// ConfigStore loads alert configurations
type ConfigStore interface {
	GetAlertConfig(id uint) (*models.AlertConfig, error)
}

// Publisher receives the result of event-triggered alerts
type Publisher interface {
	PublishAlert(applicationID uint, success bool, message string)
}

// ServiceOptions configures a Service
type ServiceOptions struct {
	Store      ConfigStore
	Dispatcher *Dispatcher
	Publisher  Publisher
	Logger     *zap.Logger
	Now        func() time.Time
}

// Service raises alerts for application events.
// Delivery problems are logged and never returned to the caller.
type Service struct {
	store      ConfigStore
	dispatcher *Dispatcher
	publisher  Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new alert service
func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		publisher:  opts.Publisher,
		logger:     logger.With(zap.String("component", "alert_service")),
		now:        now,
	}
}

// AlertState raises an alert for a state change of app.
// It reports whether an alert was dispatched successfully.
func (s *Service) AlertState(ctx context.Context, app *models.Application, state models.AppState) bool {
	if app == nil || app.AlertID == nil {
		return false
	}
	return s.alert(ctx, app, NewStateTemplate(app, state, s.now()))
}

// AlertCheckpoint raises an alert for a checkpoint report of app
func (s *Service) AlertCheckpoint(ctx context.Context, app *models.Application, status models.CheckpointStatus) bool {
	if app == nil || app.AlertID == nil {
		return false
	}
	return s.alert(ctx, app, NewCheckpointTemplate(app, status, s.now()))
}

func (s *Service) alert(ctx context.Context, app *models.Application, tpl *Template) bool {
	logger := s.logger.With(
		zap.Uint("application_id", app.ID),
		zap.String("job_name", app.JobName),
		zap.Uint("alert_id", *app.AlertID),
	)

	cfg, err := s.store.GetAlertConfig(*app.AlertID)
	if err != nil {
		logger.Error("failed to load alert config", zap.Error(err))
		s.publish(app.ID, false, err.Error())
		return false
	}

	params, err := NewConfigWithParams(cfg)
	if err != nil {
		logger.Error("failed to decode alert config", zap.Error(err))
		s.publish(app.ID, false, err.Error())
		return false
	}

	ok, err := s.dispatcher.Dispatch(ctx, params, tpl)
	if err != nil {
		logger.Error("failed to send alert", zap.String("status", tpl.Status), zap.Error(err))
		s.publish(app.ID, false, err.Error())
		return false
	}

	s.publish(app.ID, ok, "")
	return ok
}

func (s *Service) publish(applicationID uint, success bool, message string) {
	if s.publisher != nil {
		s.publisher.PublishAlert(applicationID, success, message)
	}
}
