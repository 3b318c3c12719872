package alert

import (
	"encoding/json"
	"fmt"
	"strings"

	"alert-dispatch/internal/db/models"
)

// EmailParams configures the email channel
type EmailParams struct {
	Contacts string `json:"contacts" yaml:"contacts"`
}

// Recipients returns the non-empty addresses of the comma separated contact list
func (p *EmailParams) Recipients() []string {
	return splitList(p.Contacts)
}

// DingTalkParams configures the DingTalk robot channel
type DingTalkParams struct {
	Token        string `json:"token" yaml:"token"`
	Contacts     string `json:"contacts" yaml:"contacts"`
	IsAtAll      bool   `json:"isAtAll" yaml:"is_at_all"`
	AlertDingURL string `json:"alertDingURL" yaml:"alert_ding_url"`
	SecretEnable bool   `json:"secretEnable" yaml:"secret_enable"`
	SecretToken  string `json:"secretToken" yaml:"secret_token"`
}

// Mobiles returns the phone numbers to mention
func (p *DingTalkParams) Mobiles() []string {
	return splitList(p.Contacts)
}

// WeComParams configures the WeCom robot channel
type WeComParams struct {
	Token string `json:"token" yaml:"token"`
}

// LarkParams configures the Lark robot channel
type LarkParams struct {
	Token        string `json:"token" yaml:"token"`
	IsAtAll      bool   `json:"isAtAll" yaml:"is_at_all"`
	SecretEnable bool   `json:"secretEnable" yaml:"secret_enable"`
	SecretToken  string `json:"secretToken" yaml:"secret_token"`
}

// HTTPCallbackParams configures the generic HTTP callback channel.
// RequestTemplate is an optional JMESPath expression evaluated against the
// alert template to build the request body.
type HTTPCallbackParams struct {
	URL             string `json:"url" yaml:"url"`
	Method          string `json:"method" yaml:"method"`
	ContentType     string `json:"contentType" yaml:"content_type"`
	RequestTemplate string `json:"requestTemplate" yaml:"request_template"`
}

// ConfigWithParams is the dispatch-time view of an alert configuration
// with every channel's parameters decoded.
type ConfigWithParams struct {
	ID           uint
	UserID       uint
	AlertName    string
	AlertType    int
	Email        *EmailParams
	DingTalk     *DingTalkParams
	WeCom        *WeComParams
	Lark         *LarkParams
	HTTPCallback *HTTPCallbackParams
}

// NewConfigWithParams decodes the channel parameters of a stored config
func NewConfigWithParams(cfg *models.AlertConfig) (*ConfigWithParams, error) {
	if cfg == nil {
		return nil, fmt.Errorf("alert config is nil")
	}
	params := &ConfigWithParams{
		ID:        cfg.ID,
		UserID:    cfg.UserID,
		AlertName: cfg.AlertName,
		AlertType: cfg.AlertType,
	}

	columns := []struct {
		typ  Type
		raw  string
		dest any
	}{
		{Email, cfg.EmailParams, &params.Email},
		{DingTalk, cfg.DingTalkParams, &params.DingTalk},
		{WeCom, cfg.WeComParams, &params.WeCom},
		{Lark, cfg.LarkParams, &params.Lark},
		{HTTPCallback, cfg.HTTPCallbackParams, &params.HTTPCallback},
	}
	for _, col := range columns {
		if strings.TrimSpace(col.raw) == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("alert config %d: invalid %s params: %w", cfg.ID, col.typ, err)
		}
	}

	return params, nil
}

// Model encodes the config back into its stored form
func (c *ConfigWithParams) Model() (*models.AlertConfig, error) {
	cfg := &models.AlertConfig{
		ID:        c.ID,
		UserID:    c.UserID,
		AlertName: c.AlertName,
		AlertType: c.AlertType,
	}

	columns := []struct {
		typ   Type
		dest  *string
		value any
		set   bool
	}{
		{Email, &cfg.EmailParams, c.Email, c.Email != nil},
		{DingTalk, &cfg.DingTalkParams, c.DingTalk, c.DingTalk != nil},
		{WeCom, &cfg.WeComParams, c.WeCom, c.WeCom != nil},
		{Lark, &cfg.LarkParams, c.Lark, c.Lark != nil},
		{HTTPCallback, &cfg.HTTPCallbackParams, c.HTTPCallback, c.HTTPCallback != nil},
	}
	for _, col := range columns {
		if !col.set {
			continue
		}
		raw, err := json.Marshal(col.value)
		if err != nil {
			return nil, fmt.Errorf("alert config %s: encode %s params: %w", c.AlertName, col.typ, err)
		}
		*col.dest = string(raw)
	}
	return cfg, nil
}

// Types returns the channel types enabled by the config's bitmask
func (c *ConfigWithParams) Types() []Type {
	return Decode(c.AlertType)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
