package models

import (
	"time"

	"gorm.io/gorm"
)

// AlertConfig represents a persisted alert configuration.
// AlertType is a bitmask of the enabled channels; each channel keeps its
// parameters as a JSON document in its own column.
type AlertConfig struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	UserID             uint           `gorm:"index" json:"user_id"`
	AlertName          string         `gorm:"uniqueIndex;not null" json:"alert_name"`
	AlertType          int            `gorm:"not null;default:0" json:"alert_type"`
	EmailParams        string         `gorm:"type:text" json:"email_params,omitempty"`
	DingTalkParams     string         `gorm:"type:text" json:"ding_talk_params,omitempty"`
	WeComParams        string         `gorm:"type:text" json:"we_com_params,omitempty"`
	LarkParams         string         `gorm:"type:text" json:"lark_params,omitempty"`
	HTTPCallbackParams string         `gorm:"type:text" json:"http_callback_params,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (AlertConfig) TableName() string {
	return "alert_configs"
}
