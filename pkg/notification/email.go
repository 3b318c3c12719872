package notification

import (
	"bytes"
	"context"
	"html/template"

	"gopkg.in/gomail.v2"

	"alert-dispatch/pkg/alert"
)

// Mailer delivers email messages; *gomail.Dialer implements it
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPConfig contains the outgoing mail server settings
type SMTPConfig struct {
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	From     string `yaml:"from" env:"FROM"`
	SSL      bool   `yaml:"ssl" env:"SSL"`
}

// NewDialer builds a gomail dialer, or nil when no host is configured
func NewDialer(cfg SMTPConfig) *gomail.Dialer {
	if cfg.Host == "" {
		return nil
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.SSL
	return d
}

// EmailNotifier sends alerts by email
type EmailNotifier struct {
	mailer Mailer
	from   string
}

// NewEmailNotifier creates an email notifier
func NewEmailNotifier(mailer Mailer, from string) *EmailNotifier {
	return &EmailNotifier{mailer: mailer, from: from}
}

// Notify implements alert.Handler
func (n *EmailNotifier) Notify(ctx context.Context, cfg *alert.ConfigWithParams, tpl *alert.Template) error {
	if n.mailer == nil {
		return alert.NewChannelError(alert.Email, nil, "smtp server is not configured")
	}
	if cfg.Email == nil || len(cfg.Email.Recipients()) == 0 {
		return alert.NewChannelError(alert.Email, nil, "no recipients configured")
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, tpl); err != nil {
		return alert.NewChannelError(alert.Email, err, "failed to render message")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", cfg.Email.Recipients()...)
	m.SetHeader("Subject", tpl.Subject)
	m.SetBody("text/html", body.String())

	if err := n.mailer.DialAndSend(m); err != nil {
		return alert.NewChannelError(alert.Email, err, "failed to send mail to %v", cfg.Email.Recipients())
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`<html><body>
<h3>{{.Title}}</h3>
<table>
<tr><td>Job Name</td><td>{{.JobName}}</td></tr>
<tr><td>Status</td><td>{{.Status}}</td></tr>
{{- if .StartTime}}
<tr><td>Start Time</td><td>{{.StartTime.Format "2006-01-02 15:04:05"}}</td></tr>
{{- end}}
{{- if .EndTime}}
<tr><td>End Time</td><td>{{.EndTime.Format "2006-01-02 15:04:05"}}</td></tr>
{{- end}}
<tr><td>Duration</td><td>{{.DurationReadable}}</td></tr>
{{- if .CpMaxFailures}}
<tr><td>Checkpoint Failures</td><td>{{.CpFailureCount}}/{{.CpMaxFailures}}</td></tr>
{{- end}}
{{- if .RestartCount}}
<tr><td>Restarts</td><td>{{.RestartCount}}</td></tr>
{{- end}}
</table>
{{- if .Link}}
<p><a href="{{.Link}}">Details</a></p>
{{- end}}
<p>{{.OccurredAt.Format "2006-01-02 15:04:05"}}</p>
</body></html>`))
