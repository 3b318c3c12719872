package models

import (
	"time"

	"gorm.io/gorm"
)

// AppState represents the lifecycle state of a streaming application
type AppState string

const (
	StateAdded        AppState = "ADDED"
	StateInitializing AppState = "INITIALIZING"
	StateCreated      AppState = "CREATED"
	StateStarting     AppState = "STARTING"
	StateRestarting   AppState = "RESTARTING"
	StateRunning      AppState = "RUNNING"
	StateFailing      AppState = "FAILING"
	StateFailed       AppState = "FAILED"
	StateCanceling    AppState = "CANCELLING"
	StateCanceled     AppState = "CANCELED"
	StateFinished     AppState = "FINISHED"
	StateSuspended    AppState = "SUSPENDED"
	StateReconciling  AppState = "RECONCILING"
	StateLost         AppState = "LOST"
	StateMapping      AppState = "MAPPING"
	StateSilent       AppState = "SILENT"
	StateTerminated   AppState = "TERMINATED"
	StateKilled       AppState = "KILLED"
)

var knownStates = map[AppState]struct{}{
	StateAdded: {}, StateInitializing: {}, StateCreated: {}, StateStarting: {},
	StateRestarting: {}, StateRunning: {}, StateFailing: {}, StateFailed: {},
	StateCanceling: {}, StateCanceled: {}, StateFinished: {}, StateSuspended: {},
	StateReconciling: {}, StateLost: {}, StateMapping: {}, StateSilent: {},
	StateTerminated: {}, StateKilled: {},
}

// Valid reports whether s is a known application state
func (s AppState) Valid() bool {
	_, ok := knownStates[s]
	return ok
}

// IsEnded reports whether the application has stopped running
func (s AppState) IsEnded() bool {
	switch s {
	case StateFailed, StateCanceled, StateFinished, StateLost, StateTerminated, StateKilled:
		return true
	}
	return false
}

// CheckpointStatus represents the outcome of a checkpoint
type CheckpointStatus string

const (
	CheckpointCompleted CheckpointStatus = "COMPLETED"
	CheckpointFailed    CheckpointStatus = "FAILED"
)

// Valid reports whether c is a known checkpoint status
func (c CheckpointStatus) Valid() bool {
	return c == CheckpointCompleted || c == CheckpointFailed
}

// DefaultCpMaxFailures is the checkpoint failure threshold applied when an
// application is registered without one
const DefaultCpMaxFailures = 1

// Application represents a managed streaming job.
// A CpMaxFailures of zero disables checkpoint alerts.
type Application struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	JobName        string         `gorm:"uniqueIndex;not null" json:"job_name"`
	State          AppState       `gorm:"type:varchar(20);default:'ADDED'" json:"state"`
	AlertID        *uint          `gorm:"index" json:"alert_id"`
	Link           string         `json:"link"`
	StatusURL      string         `json:"status_url"`
	StateQuery     string         `json:"state_query"`
	CpMaxFailures  int            `json:"cp_max_failures"`
	CpFailureCount int            `json:"cp_failure_count"`
	RestartCount   int            `json:"restart_count"`
	StartTime      *time.Time     `json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (Application) TableName() string {
	return "applications"
}

// Duration returns how long the application has been (or was) running
func (a *Application) Duration(now time.Time) time.Duration {
	if a.StartTime == nil {
		return 0
	}
	if a.EndTime != nil {
		return a.EndTime.Sub(*a.StartTime)
	}
	return now.Sub(*a.StartTime)
}

// EventKind represents the kind of an application event
type EventKind string

const (
	EventStateChange EventKind = "state"
	EventCheckpoint  EventKind = "checkpoint"
)

// ApplicationEvent represents an entry in an application's event log
type ApplicationEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ApplicationID uint      `gorm:"not null;index" json:"application_id"`
	Kind          EventKind `gorm:"type:varchar(16)" json:"kind"`
	FromState     AppState  `gorm:"type:varchar(20)" json:"from_state,omitempty"`
	ToState       AppState  `gorm:"type:varchar(20)" json:"to_state,omitempty"`
	Checkpoint    string    `gorm:"type:varchar(16)" json:"checkpoint,omitempty"`
	Alerted       bool      `json:"alerted"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
}

// TableName specifies the table name
func (ApplicationEvent) TableName() string {
	return "application_events"
}
