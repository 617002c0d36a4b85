package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/SAP-F-2025/learning-platform-service/internal/config"
)

var (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
)

// MailMessage is a plain-text notification to one recipient
type MailMessage struct {
	ToName    string
	ToAddress string
	Subject   string
	Body      string
}

type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// NewMailer picks SendGrid when an API key is configured and logs messages otherwise
func NewMailer(cfg config.MailConfig, logger *slog.Logger) Mailer {
	if cfg.SendGridAPIKey == "" {
		logger.Info("SendGrid API key not set, notifications are logged only")
		return NewLogMailer(logger)
	}
	return NewSendGridMailer(cfg)
}

// ===== SENDGRID =====

type SendGridMailer struct {
	key  string
	from *sgmail.Email
}

func NewSendGridMailer(cfg config.MailConfig) *SendGridMailer {
	return &SendGridMailer{
		key:  cfg.SendGridAPIKey,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg MailMessage) error {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToAddress))

	mail := sgmail.NewV3Mail()
	mail.SetFrom(m.from)
	mail.AddPersonalizations(p)
	mail.AddContent(sgmail.NewContent("text/plain", msg.Body))

	req := sendgrid.GetRequest(m.key, sendGridEndpoint, sendGridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(mail)

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d", res.StatusCode)
	}
	return nil
}

// ===== FALLBACKS =====

type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg MailMessage) error {
	m.logger.InfoContext(ctx, "Notification mail",
		"to", msg.ToAddress,
		"subject", msg.Subject)
	return nil
}

// RecordingMailer keeps every message in memory
type RecordingMailer struct {
	mu       sync.Mutex
	messages []MailMessage
	err      error
}

func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

func (m *RecordingMailer) Send(_ context.Context, msg MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *RecordingMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *RecordingMailer) Messages() []MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MailMessage, len(m.messages))
	copy(out, m.messages)
	return out
}
