// Package notify sends run completion notifications. Delivery failures
// are logged and swallowed: a lost email never changes run state.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/footprint-labs/footprint-go/internal/domain"
	"github.com/footprint-labs/footprint-go/internal/platform/env"
)

// Completion carries everything the completion message mentions.
type Completion struct {
	Recipient     string
	ExportName    string
	RunID         string
	Status        domain.RunState
	BuildingCount int
	DownloadURL   string
	FinishedAt    time.Time
}

// Notifier delivers a completion notice.
type Notifier interface {
	NotifyCompleted(ctx context.Context, c Completion) error
}

// Config carries SMTP relay settings. An empty host disables delivery.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func ConfigFromEnv() (Config, error) {
	port, err := env.Int("FOOTPRINT_SMTP_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Host:     env.String("FOOTPRINT_SMTP_HOST", ""),
		Port:     port,
		Username: env.String("FOOTPRINT_SMTP_USERNAME", ""),
		Password: env.String("FOOTPRINT_SMTP_PASSWORD", ""),
		From:     env.String("FOOTPRINT_SMTP_FROM", "exports@footprint-labs.io"),
	}, nil
}

var completionTmpl = template.Must(template.New("completion").Parse(
	`Subject: Export "{{.ExportName}}" {{.Status}}
From: {{.From}}
To: {{.Recipient}}

Hello,

Your building export "{{.ExportName}}" finished with status {{.Status}}.

Run:       {{.RunID}}
Buildings: {{.BuildingCount}}
{{- if .DownloadURL}}
Download:  {{.DownloadURL}}
{{- end}}
Finished:  {{.FinishedAt.Format "2006-01-02 15:04 MST"}}

This link expires; re-request the export if it no longer works.
`))

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier renders the completion template and hands it to an SMTP
// relay.
type SMTPNotifier struct {
	cfg    Config
	logger *slog.Logger
	send   sendFunc
}

func NewSMTPNotifier(cfg Config, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{cfg: cfg, logger: logger, send: smtp.SendMail}
}

func (n *SMTPNotifier) NotifyCompleted(ctx context.Context, c Completion) error {
	if n.cfg.Host == "" {
		n.logger.Info("notification skipped, no smtp relay configured", "run_id", c.RunID)
		return nil
	}
	if c.Recipient == "" {
		n.logger.Info("notification skipped, no recipient", "run_id", c.RunID)
		return nil
	}

	var body strings.Builder
	data := struct {
		Completion
		From string
	}{Completion: c, From: n.cfg.From}
	if err := completionTmpl.Execute(&body, data); err != nil {
		return fmt.Errorf("render notification: %w", err)
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := n.send(addr, auth, n.cfg.From, []string{c.Recipient}, []byte(body.String())); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	n.logger.Info("completion notification sent", "run_id", c.RunID, "recipient", c.Recipient)
	return nil
}
