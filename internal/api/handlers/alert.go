package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"alert-dispatch/internal/db/models"
	"alert-dispatch/internal/db/store"
	"alert-dispatch/pkg/alert"
)

// AlertStore persists alert configurations
type AlertStore interface {
	CreateAlertConfig(cfg *models.AlertConfig) error
	GetAlertConfig(id uint) (*models.AlertConfig, error)
	ListAlertConfigs() ([]models.AlertConfig, error)
	UpdateAlertConfig(cfg *models.AlertConfig) error
	DeleteAlertConfig(id uint) error
}

// Dispatcher delivers a template through every channel of a config
type Dispatcher interface {
	Dispatch(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) (bool, error)
}

// AlertHandler handles alert configuration requests
type AlertHandler struct {
	store      AlertStore
	dispatcher Dispatcher
	now        func() time.Time
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(store AlertStore, dispatcher Dispatcher) *AlertHandler {
	return &AlertHandler{store: store, dispatcher: dispatcher, now: time.Now}
}

// alertRequest is the body of create and update requests. Types, when
// given, takes precedence over AlertType.
type alertRequest struct {
	UserID       uint                      `json:"user_id"`
	AlertName    string                    `json:"alert_name" binding:"required"`
	AlertType    int                       `json:"alert_type"`
	Types        []string                  `json:"types"`
	Email        *alert.EmailParams        `json:"email_params"`
	DingTalk     *alert.DingTalkParams     `json:"ding_talk_params"`
	WeCom        *alert.WeComParams        `json:"we_com_params"`
	Lark         *alert.LarkParams         `json:"lark_params"`
	HTTPCallback *alert.HTTPCallbackParams `json:"http_callback_params"`
}

func (r *alertRequest) model() (*models.AlertConfig, error) {
	mask := r.AlertType
	if len(r.Types) > 0 {
		var err error
		if mask, err = alert.EncodeNames(r.Types); err != nil {
			return nil, err
		}
	}
	if mask < 0 {
		return nil, errors.New("alert_type must not be negative")
	}

	params := &alert.ConfigWithParams{
		UserID:       r.UserID,
		AlertName:    strings.TrimSpace(r.AlertName),
		AlertType:    mask,
		Email:        r.Email,
		DingTalk:     r.DingTalk,
		WeCom:        r.WeCom,
		Lark:         r.Lark,
		HTTPCallback: r.HTTPCallback,
	}
	return params.Model()
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ID"})
		return 0, false
	}
	return uint(id), true
}

func storeError(c *gin.Context, err error, what string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// CreateAlertConfig creates a new alert configuration
// POST /api/v1/alerts
func (h *AlertHandler) CreateAlertConfig(c *gin.Context) {
	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := req.model()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateAlertConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, cfg)
}

// GetAlertConfig gets an alert configuration by ID
// GET /api/v1/alerts/:id
func (h *AlertHandler) GetAlertConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	cfg, err := h.store.GetAlertConfig(id)
	if err != nil {
		storeError(c, err, "alert config")
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// ListAlertConfigs lists all alert configurations
// GET /api/v1/alerts
func (h *AlertHandler) ListAlertConfigs(c *gin.Context) {
	cfgs, err := h.store.ListAlertConfigs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfgs)
}

// UpdateAlertConfig replaces an alert configuration
// PUT /api/v1/alerts/:id
func (h *AlertHandler) UpdateAlertConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	existing, err := h.store.GetAlertConfig(id)
	if err != nil {
		storeError(c, err, "alert config")
		return
	}

	var req alertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := req.model()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg.ID = existing.ID
	cfg.CreatedAt = existing.CreatedAt

	if err := h.store.UpdateAlertConfig(cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// DeleteAlertConfig deletes an alert configuration
// DELETE /api/v1/alerts/:id
func (h *AlertHandler) DeleteAlertConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteAlertConfig(id); err != nil {
		storeError(c, err, "alert config")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "alert config deleted"})
}

// TestAlertConfig sends a test alert through every configured channel
// POST /api/v1/alerts/:id/test
func (h *AlertHandler) TestAlertConfig(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	cfg, err := h.store.GetAlertConfig(id)
	if err != nil {
		storeError(c, err, "alert config")
		return
	}

	params, err := alert.NewConfigWithParams(cfg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	success, err := h.dispatcher.Dispatch(c.Request.Context(), params, alert.NewTestTemplate(params.AlertName, h.now()))
	if err != nil {
		messages := []string{err.Error()}
		var failure *alert.Failure
		if errors.As(err, &failure) {
			messages = failure.Messages
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    err.Error(),
			"messages": messages,
		})
		return
	}
	if !success {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "alert test failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "test alert sent successfully"})
}

// Register mounts the alert routes on r
func (h *AlertHandler) Register(r gin.IRouter) {
	r.POST("/alerts", h.CreateAlertConfig)
	r.GET("/alerts", h.ListAlertConfigs)
	r.GET("/alerts/:id", h.GetAlertConfig)
	r.PUT("/alerts/:id", h.UpdateAlertConfig)
	r.DELETE("/alerts/:id", h.DeleteAlertConfig)
	r.POST("/alerts/:id/test", h.TestAlertConfig)
}
