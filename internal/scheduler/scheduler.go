package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/pkg/httpclient"
)

// DefaultStateQuery extracts the state from a status document
const DefaultStateQuery = "state"

// Store lists the applications to watch
type Store interface {
	ListWatchedApplications() ([]models.Application, error)
}

// Tracker applies observed state changes
type Tracker interface {
	Transition(ctx context.Context, appID uint, state models.AppState) (*models.Application, error)
}

// Getter fetches status documents
type Getter interface {
	Get(ctx context.Context, rawURL string, headers ...httpclient.Header) (*httpclient.Response, error)
}

// Options configures a Scheduler
type Options struct {
	Store   Store
	Tracker Tracker
	Client  Getter
	Spec    string
	Logger  *zap.Logger
}

// Scheduler polls application status urls on a cron schedule and feeds
// state changes to the tracker
type Scheduler struct {
	store   Store
	tracker Tracker
	client  Getter
	spec    string
	cron    *cron.Cron
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler
func NewScheduler(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "watcher"))
	spec := opts.Spec
	if spec == "" {
		spec = "@every 30s"
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		store:   opts.Store,
		tracker: opts.Tracker,
		client:  opts.Client,
		spec:    spec,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		logger:  logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.cron.AddFunc(s.spec, func() { s.Poll(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.cancel = cancel

	s.cron.Start()
	s.logger.Info("watcher started", zap.String("cron", s.spec))
	return nil
}

// Stop stops the scheduler and waits for a running poll to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("watcher stopped")
}

// Poll checks every watched application once
func (s *Scheduler) Poll(ctx context.Context) {
	apps, err := s.store.ListWatchedApplications()
	if err != nil {
		s.logger.Error("failed to load applications", zap.Error(err))
		return
	}

	for i := range apps {
		if ctx.Err() != nil {
			return
		}
		app := &apps[i]

		state, err := s.FetchState(ctx, app)
		if err != nil {
			s.logger.Warn("failed to fetch application state",
				zap.Uint("application_id", app.ID),
				zap.String("job_name", app.JobName),
				zap.Error(err),
			)
			continue
		}
		if state == app.State {
			continue
		}

		if _, err := s.tracker.Transition(ctx, app.ID, state); err != nil {
			s.logger.Error("failed to apply state change",
				zap.Uint("application_id", app.ID),
				zap.String("state", string(state)),
				zap.Error(err),
			)
		}
	}
}

// FetchState reads the current state of app from its status url
func (s *Scheduler) FetchState(ctx context.Context, app *models.Application) (models.AppState, error) {
	resp, err := s.client.Get(ctx, app.StatusURL, httpclient.Header{Name: "Accept", Value: "application/json"})
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("unexpected response status %d from %s", resp.StatusCode, app.StatusURL)
	}

	var doc any
	if err := json.Unmarshal([]byte(resp.Body), &doc); err != nil {
		return "", fmt.Errorf("failed to decode status: %w", err)
	}

	query := app.StateQuery
	if query == "" {
		query = DefaultStateQuery
	}
	value, err := jmespath.Search(query, doc)
	if err != nil {
		return "", fmt.Errorf("invalid state query %q: %w", query, err)
	}

	raw, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("state query %q matched %v", query, value)
	}
	state := models.AppState(strings.ToUpper(strings.TrimSpace(raw)))
	if !state.Valid() {
		return "", fmt.Errorf("unknown state %s", raw)
	}
	return state, nil
}
