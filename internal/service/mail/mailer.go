package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"officedesk/internal/config"
)

// Sender delivers one message to a list of recipients.
type Sender interface {
	Send(to []string, subject, body string) error
}

// Mailer sends plain-text mail through the configured SMTP relay.
type Mailer struct {
	Config config.Mail
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg config.Mail) *Mailer {
	return &Mailer{Config: cfg, send: smtp.SendMail}
}

// Send delivers one message. It fails fast when no relay is configured.
func (m *Mailer) Send(to []string, subject, body string) error {
	if m.Config.Host == "" {
		return fmt.Errorf("mail relay not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}
	from := m.Config.From
	if from == "" {
		from = m.Config.Username
	}
	var auth smtp.Auth
	if m.Config.Username != "" {
		auth = smtp.PlainAuth("", m.Config.Username, m.Config.Password, m.Config.Host)
	}
	msg := buildMessage(from, to, subject, body)
	addr := fmt.Sprintf("%s:%d", m.Config.Host, m.Config.Port)
	if m.send == nil {
		m.send = smtp.SendMail
	}
	if err := m.send(addr, auth, from, to, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
