package alert

import (
	"fmt"
	"time"

	"alert-dispatch/internal/db/models"
)

// TemplateType distinguishes state change alerts from checkpoint alerts
type TemplateType int

const (
	TemplateStateChange TemplateType = 1
	TemplateCheckpoint  TemplateType = 2
)

// Template is the rendering of the event that triggered an alert.
// Every channel formats it into its own message shape.
type Template struct {
	Title            string        `json:"title"`
	Subject          string        `json:"subject"`
	ApplicationID    uint          `json:"applicationId"`
	JobName          string        `json:"jobName"`
	Status           string        `json:"status"`
	Type             TemplateType  `json:"type"`
	StartTime        *time.Time    `json:"startTime,omitempty"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	Duration         time.Duration `json:"duration"`
	Link             string        `json:"link,omitempty"`
	RestartCount     int           `json:"restartCount"`
	CpFailureCount   int           `json:"cpFailureCount,omitempty"`
	CpMaxFailures    int           `json:"cpMaxFailures,omitempty"`
	OccurredAt       time.Time     `json:"occurredAt"`
	DurationReadable string        `json:"durationReadable"`
}

// NewStateTemplate renders a state change of app
func NewStateTemplate(app *models.Application, state models.AppState, now time.Time) *Template {
	tpl := baseTemplate(app, now)
	tpl.Type = TemplateStateChange
	tpl.Status = string(state)
	tpl.Title = fmt.Sprintf("Notify: %s %s", app.JobName, state)
	tpl.Subject = fmt.Sprintf("Alert: %s %s", app.JobName, state)
	return tpl
}

// NewCheckpointTemplate renders a checkpoint report of app
func NewCheckpointTemplate(app *models.Application, status models.CheckpointStatus, now time.Time) *Template {
	tpl := baseTemplate(app, now)
	tpl.Type = TemplateCheckpoint
	tpl.Status = string(status)
	tpl.Title = fmt.Sprintf("Notify: %s checkpoint %s", app.JobName, status)
	tpl.Subject = fmt.Sprintf("Alert: %s checkpoint %s", app.JobName, status)
	tpl.CpFailureCount = app.CpFailureCount
	tpl.CpMaxFailures = app.CpMaxFailures
	return tpl
}

// NewTestTemplate renders a synthetic event used to verify a configuration
func NewTestTemplate(alertName string, now time.Time) *Template {
	return &Template{
		Title:            "Notify: alert test",
		Subject:          fmt.Sprintf("Alert: test of %s", alertName),
		JobName:          "alert-test",
		Status:           "TEST",
		Type:             TemplateStateChange,
		OccurredAt:       now,
		DurationReadable: formatDuration(0),
	}
}

func baseTemplate(app *models.Application, now time.Time) *Template {
	duration := app.Duration(now)
	return &Template{
		ApplicationID:    app.ID,
		JobName:          app.JobName,
		StartTime:        app.StartTime,
		EndTime:          app.EndTime,
		Duration:         duration,
		DurationReadable: formatDuration(duration),
		Link:             app.Link,
		RestartCount:     app.RestartCount,
		OccurredAt:       now,
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %02dh %02dm %02ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%02dh %02dm %02ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%02dm %02ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
