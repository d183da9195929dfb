package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

type Mailer interface {
	SendVerificationEmail(to, name, link string) error

	SendPasswordResetEmail(to, link string) error
}

var templates = template.Must(template.New("mail").Parse(`
{{define "verify"}}<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <h2>Verify your email</h2>
  <p>Hello {{.Name}},</p>
  <p>Please confirm your email address to finish setting up your account.</p>
  <p><a href="{{.Link}}">Verify email</a></p>
  <p>Or copy and paste this link into your browser:<br><small>{{.Link}}</small></p>
  <p style="font-size: 12px; color: #7f8c8d;">&copy; {{.Year}} Campus Hub</p>
</body>
</html>{{end}}
{{define "reset"}}<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
  <h2>Reset your password</h2>
  <p>Please click this link to reset your password: <a href="{{.Link}}">{{.Link}}</a></p>
  <p>The link expires in one hour. If you did not request a reset you can ignore this email.</p>
  <p style="font-size: 12px; color: #7f8c8d;">&copy; {{.Year}} Campus Hub</p>
</body>
</html>{{end}}
`))

type templateData struct {
	Name string
	Link string
	Year int
}

func render(name string, data templateData) (string, error) {
	data.Year = time.Now().Year()
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return "", fmt.Errorf("error executing %v template: %w", name, err)
	}
	return body.String(), nil
}

type SmtpArgs struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SmtpMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

func NewSmtpMailer(args SmtpArgs, logger *slog.Logger) *SmtpMailer {
	port := args.Port
	if port == 0 {
		port = 587
	}
	return &SmtpMailer{
		dialer: gomail.NewDialer(args.Host, port, args.Username, args.Password),
		from:   args.From,
		logger: logger,
	}
}

func (m *SmtpMailer) send(to, subject, body string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.logger.Error("failed to send email", "to", to, "subject", subject, "error", err)
		return fmt.Errorf("error sending email: %w", err)
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

func (m *SmtpMailer) SendVerificationEmail(to, name, link string) error {
	body, err := render("verify", templateData{Name: name, Link: link})
	if err != nil {
		return err
	}
	return m.send(to, "Verify your email", body)
}

func (m *SmtpMailer) SendPasswordResetEmail(to, link string) error {
	body, err := render("reset", templateData{Link: link})
	if err != nil {
		return err
	}
	return m.send(to, "Reset your password", body)
}

// LogMailer is used when no SMTP server is configured. Links are only logged.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationEmail(to, name, link string) error {
	m.logger.Info("smtp not configured, skipping verification email", "to", to, "link", link)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(to, link string) error {
	m.logger.Info("smtp not configured, skipping password reset email", "to", to, "link", link)
	return nil
}

type SentMail struct {
	To      string
	Subject string
	Link    string
}

// RecordingMailer keeps every message in memory.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
	err  error
}

func NewRecordingMailer() *RecordingMailer {
	return &RecordingMailer{}
}

// FailWith makes later sends return err without recording anything. A nil
// err restores normal delivery.
func (m *RecordingMailer) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *RecordingMailer) record(mail SentMail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *RecordingMailer) SendVerificationEmail(to, name, link string) error {
	return m.record(SentMail{To: to, Subject: "Verify your email", Link: link})
}

func (m *RecordingMailer) SendPasswordResetEmail(to, link string) error {
	return m.record(SentMail{To: to, Subject: "Reset your password", Link: link})
}

func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Last returns the most recent message sent to the given address.
func (m *RecordingMailer) Last(to string) (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return SentMail{}, false
}
