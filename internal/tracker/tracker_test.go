package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/internal/db/store"
)

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) AlertState(ctx context.Context, app *models.Application, state models.AppState) bool {
	return m.Called(app.ID, state).Bool(0)
}

func (m *mockAlerter) AlertCheckpoint(ctx context.Context, app *models.Application, status models.CheckpointStatus) bool {
	return m.Called(app.ID, status, app.CpFailureCount).Bool(0)
}

type recordingBroadcaster struct {
	states      []string
	checkpoints []int
}

func (b *recordingBroadcaster) BroadcastState(applicationID uint, from, to string) {
	b.states = append(b.states, from+"->"+to)
}

func (b *recordingBroadcaster) BroadcastCheckpoint(applicationID uint, status string, failures int) {
	b.checkpoints = append(b.checkpoints, failures)
}

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	tracker     *Tracker
	store       *store.Store
	alerter     *mockAlerter
	broadcaster *recordingBroadcaster
	app         *models.Application
}

func newFixture(t *testing.T, app *models.Application) *fixture {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "tracker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.CreateApplication(app))

	f := &fixture{
		store:       st,
		alerter:     &mockAlerter{},
		broadcaster: &recordingBroadcaster{},
		app:         app,
	}
	f.tracker = New(Options{
		Store:       st,
		Alerter:     f.alerter,
		Broadcaster: f.broadcaster,
		Now:         func() time.Time { return testNow },
	})
	return f
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders"})
	f.alerter.On("AlertState", f.app.ID, models.StateFailed).Return(true).Once()
	ctx := context.Background()

	app, err := f.tracker.Transition(ctx, f.app.ID, models.StateRunning)
	require.NoError(t, err)
	require.NotNil(t, app.StartTime)
	assert.Nil(t, app.EndTime)

	app, err = f.tracker.Transition(ctx, f.app.ID, models.StateFailed)
	require.NoError(t, err)
	require.NotNil(t, app.EndTime)

	// repeated state is a no-op
	_, err = f.tracker.Transition(ctx, f.app.ID, models.StateFailed)
	require.NoError(t, err)

	f.alerter.AssertExpectations(t)
	assert.Equal(t, []string{"ADDED->RUNNING", "RUNNING->FAILED"}, f.broadcaster.states)

	events, err := f.store.ListEvents(f.app.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].Alerted)
	assert.False(t, events[1].Alerted)
}

func TestTransitionRestartCount(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders"})
	f.alerter.On("AlertState", f.app.ID, models.StateRestarting).Return(false)

	app, err := f.tracker.Transition(context.Background(), f.app.ID, models.StateRestarting)
	require.NoError(t, err)
	assert.Equal(t, 1, app.RestartCount)

	events, err := f.store.ListEvents(f.app.ID, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Alerted)
}

func TestTransitionInvalid(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders"})

	_, err := f.tracker.Transition(context.Background(), f.app.ID, "EXPLODED")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.tracker.Transition(context.Background(), 999, models.StateRunning)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocksReleased(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders"})
	ctx := context.Background()

	_, err := f.tracker.Transition(ctx, f.app.ID, models.StateRunning)
	require.NoError(t, err)
	_, err = f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointCompleted)
	require.NoError(t, err)
	_, err = f.tracker.Transition(ctx, 999, models.StateRunning)
	require.Error(t, err)

	assert.Empty(t, f.tracker.locks)
}

func TestLockSharedUntilLastRelease(t *testing.T) {
	tr := New(Options{})
	refs := func() int {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		if l, ok := tr.locks[7]; ok {
			return l.refs
		}
		return 0
	}

	unlock := tr.lock(7)
	acquired := make(chan func())
	go func() { acquired <- tr.lock(7) }()
	require.Eventually(t, func() bool { return refs() == 2 }, time.Second, time.Millisecond)

	unlock()
	second := <-acquired
	assert.Equal(t, 1, refs())

	second()
	assert.Empty(t, tr.locks)
}

func TestReportCheckpointThreshold(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders", CpMaxFailures: 2})
	f.alerter.On("AlertCheckpoint", f.app.ID, models.CheckpointFailed, 2).Return(true).Once()
	ctx := context.Background()

	app, err := f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, app.CpFailureCount)

	app, err = f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, app.CpFailureCount)

	stored, err := f.store.GetApplication(f.app.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.CpFailureCount)

	f.alerter.AssertExpectations(t)
	assert.Equal(t, []int{1, 2}, f.broadcaster.checkpoints)
}

func TestReportCheckpointCompletedResets(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders", CpMaxFailures: 2})
	ctx := context.Background()

	_, err := f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointFailed)
	require.NoError(t, err)
	app, err := f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointCompleted)
	require.NoError(t, err)
	assert.Equal(t, 0, app.CpFailureCount)

	_, err = f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointFailed)
	require.NoError(t, err)

	f.alerter.AssertNumberOfCalls(t, "AlertCheckpoint", 0)

	_, err = f.tracker.ReportCheckpoint(ctx, f.app.ID, "PARTIAL")
	assert.ErrorIs(t, err, ErrInvalidCheckpoint)
}

func TestReportCheckpointDisabled(t *testing.T) {
	f := newFixture(t, &models.Application{JobName: "etl-orders", CpMaxFailures: 0})
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		app, err := f.tracker.ReportCheckpoint(ctx, f.app.ID, models.CheckpointFailed)
		require.NoError(t, err)
		assert.Equal(t, 0, app.CpMaxFailures)
		assert.Equal(t, i, app.CpFailureCount)
	}

	f.alerter.AssertNumberOfCalls(t, "AlertCheckpoint", 0)
}
