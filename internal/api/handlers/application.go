package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/internal/tracker"
	"alert-dispatch/pkg/restart"
)

// ApplicationStore persists applications and their events
type ApplicationStore interface {
	CreateApplication(app *models.Application) error
	GetApplication(id uint) (*models.Application, error)
	ListApplications() ([]models.Application, error)
	ListEvents(applicationID uint, limit int) ([]models.ApplicationEvent, error)
	GetStats() (map[string]interface{}, error)
}

// Tracker applies lifecycle updates
type Tracker interface {
	Transition(ctx context.Context, appID uint, state models.AppState) (*models.Application, error)
	ReportCheckpoint(ctx context.Context, appID uint, status models.CheckpointStatus) (*models.Application, error)
}

// Restarter restarts jobs by name
type Restarter interface {
	Restart(ctx context.Context, jobName string) (string, error)
}

// ApplicationHandler handles application lifecycle requests
type ApplicationHandler struct {
	store     ApplicationStore
	tracker   Tracker
	restarter Restarter
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(store ApplicationStore, tracker Tracker, restarter Restarter) *ApplicationHandler {
	return &ApplicationHandler{store: store, tracker: tracker, restarter: restarter}
}

type applicationRequest struct {
	JobName       string `json:"job_name" binding:"required"`
	AlertID       *uint  `json:"alert_id"`
	Link          string `json:"link"`
	StatusURL     string `json:"status_url"`
	StateQuery    string `json:"state_query"`
	CpMaxFailures *int   `json:"cp_max_failures"`
}

// CreateApplication registers an application
// POST /api/v1/applications
func (h *ApplicationHandler) CreateApplication(c *gin.Context) {
	var req applicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	maxFailures := models.DefaultCpMaxFailures
	if req.CpMaxFailures != nil {
		maxFailures = *req.CpMaxFailures
	}
	if maxFailures < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cp_max_failures must not be negative"})
		return
	}

	app := &models.Application{
		JobName:       strings.TrimSpace(req.JobName),
		State:         models.StateAdded,
		AlertID:       req.AlertID,
		Link:          req.Link,
		StatusURL:     req.StatusURL,
		StateQuery:    req.StateQuery,
		CpMaxFailures: maxFailures,
	}
	if err := h.store.CreateApplication(app); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, app)
}

// GetApplication gets an application by ID
// GET /api/v1/applications/:id
func (h *ApplicationHandler) GetApplication(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	app, err := h.store.GetApplication(id)
	if err != nil {
		storeError(c, err, "application")
		return
	}

	c.JSON(http.StatusOK, app)
}

// ListApplications lists all applications
// GET /api/v1/applications
func (h *ApplicationHandler) ListApplications(c *gin.Context) {
	apps, err := h.store.ListApplications()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, apps)
}

// UpdateState moves an application to a new state
// PUT /api/v1/applications/:id/state
func (h *ApplicationHandler) UpdateState(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		State models.AppState `json:"state" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.tracker.Transition(c.Request.Context(), id, models.AppState(strings.ToUpper(string(req.State))))
	if err != nil {
		h.trackerError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

// ReportCheckpoint records a checkpoint outcome
// POST /api/v1/applications/:id/checkpoints
func (h *ApplicationHandler) ReportCheckpoint(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req struct {
		Status models.CheckpointStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.tracker.ReportCheckpoint(c.Request.Context(), id, models.CheckpointStatus(strings.ToUpper(string(req.Status))))
	if err != nil {
		h.trackerError(c, err)
		return
	}

	c.JSON(http.StatusOK, app)
}

func (h *ApplicationHandler) trackerError(c *gin.Context, err error) {
	if errors.Is(err, tracker.ErrInvalidState) || errors.Is(err, tracker.ErrInvalidCheckpoint) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	storeError(c, err, "application")
}

// ListEvents returns the event log of an application
// GET /api/v1/applications/:id/events
func (h *ApplicationHandler) ListEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	if _, err := h.store.GetApplication(id); err != nil {
		storeError(c, err, "application")
		return
	}

	events, err := h.store.ListEvents(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, events)
}

// RestartJob restarts a job through the console
// POST /api/v1/applications/restart?jobName=
func (h *ApplicationHandler) RestartJob(c *gin.Context) {
	jobName := strings.TrimSpace(c.Query("jobName"))
	if jobName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "jobName is required"})
		return
	}
	if h.restarter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "restart is not configured"})
		return
	}

	msg, err := h.restarter.Restart(c.Request.Context(), jobName)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, restart.ErrJobNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// GetStats returns store statistics
// GET /api/v1/stats
func (h *ApplicationHandler) GetStats(c *gin.Context) {
	stats, err := h.store.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// Register mounts the application routes on r
func (h *ApplicationHandler) Register(r gin.IRouter) {
	r.POST("/applications", h.CreateApplication)
	r.GET("/applications", h.ListApplications)
	r.POST("/applications/restart", h.RestartJob)
	r.GET("/applications/:id", h.GetApplication)
	r.PUT("/applications/:id/state", h.UpdateState)
	r.POST("/applications/:id/checkpoints", h.ReportCheckpoint)
	r.GET("/applications/:id/events", h.ListEvents)
	r.GET("/stats", h.GetStats)
}
