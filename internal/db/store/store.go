package store

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"alert-dispatch/internal/db/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = fmt.Errorf("store: %w", gorm.ErrRecordNotFound)

// Store represents the database store
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Auto migrate schemas
	if err := db.AutoMigrate(
		&models.AlertConfig{},
		&models.Application{},
		&models.ApplicationEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func deleted(result *gorm.DB) error {
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AlertConfig operations
func (s *Store) CreateAlertConfig(cfg *models.AlertConfig) error {
	return s.db.Create(cfg).Error
}

// GetAlertConfig returns the alert config with the given id
func (s *Store) GetAlertConfig(id uint) (*models.AlertConfig, error) {
	var cfg models.AlertConfig
	if err := s.db.First(&cfg, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

func (s *Store) GetAlertConfigByName(name string) (*models.AlertConfig, error) {
	var cfg models.AlertConfig
	if err := s.db.Where("alert_name = ?", name).First(&cfg).Error; err != nil {
		return nil, notFound(err)
	}
	return &cfg, nil
}

func (s *Store) ListAlertConfigs() ([]models.AlertConfig, error) {
	var cfgs []models.AlertConfig
	if err := s.db.Order("id ASC").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

func (s *Store) UpdateAlertConfig(cfg *models.AlertConfig) error {
	return s.db.Save(cfg).Error
}

func (s *Store) DeleteAlertConfig(id uint) error {
	return deleted(s.db.Delete(&models.AlertConfig{}, id))
}

// Application operations
func (s *Store) CreateApplication(app *models.Application) error {
	return s.db.Create(app).Error
}

func (s *Store) GetApplication(id uint) (*models.Application, error) {
	var app models.Application
	if err := s.db.First(&app, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (s *Store) GetApplicationByJobName(jobName string) (*models.Application, error) {
	var app models.Application
	if err := s.db.Where("job_name = ?", jobName).First(&app).Error; err != nil {
		return nil, notFound(err)
	}
	return &app, nil
}

func (s *Store) ListApplications() ([]models.Application, error) {
	var apps []models.Application
	if err := s.db.Order("id ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

// ListWatchedApplications returns the applications that expose a status url
func (s *Store) ListWatchedApplications() ([]models.Application, error) {
	var apps []models.Application
	if err := s.db.Where("status_url <> ''").Order("id ASC").Find(&apps).Error; err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *Store) UpdateApplication(app *models.Application) error {
	return s.db.Save(app).Error
}

func (s *Store) DeleteApplication(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		// Delete events first
		if err := tx.Where("application_id = ?", id).Delete(&models.ApplicationEvent{}).Error; err != nil {
			return err
		}
		return deleted(tx.Delete(&models.Application{}, id))
	})
}

// SaveEvent persists the application together with the event that changed it
func (s *Store) SaveEvent(app *models.Application, event *models.ApplicationEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(app).Error; err != nil {
			return err
		}
		event.ApplicationID = app.ID
		return tx.Create(event).Error
	})
}

// MarkEventAlerted records that an alert was delivered for the event
func (s *Store) MarkEventAlerted(eventID uint) error {
	return s.db.Model(&models.ApplicationEvent{}).Where("id = ?", eventID).Update("alerted", true).Error
}

// ListEvents returns the most recent events of an application, newest first
func (s *Store) ListEvents(applicationID uint, limit int) ([]models.ApplicationEvent, error) {
	var events []models.ApplicationEvent
	query := s.db.Where("application_id = ?", applicationID).Order("timestamp DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// Statistics
func (s *Store) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalAlerts int64
	if err := s.db.Model(&models.AlertConfig{}).Count(&totalAlerts).Error; err != nil {
		return nil, err
	}
	stats["total_alert_configs"] = totalAlerts

	var totalApps int64
	if err := s.db.Model(&models.Application{}).Count(&totalApps).Error; err != nil {
		return nil, err
	}
	stats["total_applications"] = totalApps

	var byState []struct {
		State models.AppState
		Count int64
	}
	if err := s.db.Model(&models.Application{}).Select("state, count(*) as count").Group("state").Scan(&byState).Error; err != nil {
		return nil, err
	}
	states := make(map[string]int64, len(byState))
	for _, row := range byState {
		states[string(row.State)] = row.Count
	}
	stats["applications_by_state"] = states

	var alerted int64
	if err := s.db.Model(&models.ApplicationEvent{}).Where("alerted = ?", true).Count(&alerted).Error; err != nil {
		return nil, err
	}
	stats["alerted_events"] = alerted

	return stats, nil
}
