package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/banshee-data/resonance.report/internal/config"
	"github.com/banshee-data/resonance.report/internal/report"
)

// Mailer delivers notifications over SMTP submission (STARTTLS when the
// server offers it, which smtp.SendMail negotiates). Credentials come
// from the secrets file; the mailer never holds them anywhere else.
type Mailer struct {
	secrets *config.SMTPSecrets

	// sendMail is swapped out by tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer returns a mailer bound to the given credentials. The caller
// validates the secrets before construction.
func NewMailer(secrets *config.SMTPSecrets) *Mailer {
	return &Mailer{
		secrets:  secrets,
		sendMail: smtp.SendMail,
	}
}

func (m *Mailer) SweepComplete(in report.Input) {
	m.send(sweepSubject(in), in)
}

func (m *Mailer) AnalysisComplete(in report.Input) {
	m.send(analysisSubject(in), in)
}

// send renders the run summary as the mail body and delivers it.
// Delivery failures are logged, never returned: the run outcome is
// already recorded and a flaky mail server must not change it.
func (m *Mailer) send(subject string, in report.Input) {
	var body bytes.Buffer
	if err := report.WriteSummary(&body, in); err != nil {
		logf("WARNING: failed to render notification body for run %s: %v", in.Run.ID, err)
		return
	}

	msg := buildMessage(m.secrets.From, m.secrets.To, subject, body.String())
	auth := smtp.PlainAuth("", m.secrets.Username, m.secrets.Password, m.secrets.Host)
	if err := m.sendMail(m.secrets.Addr(), auth, m.secrets.From, m.secrets.To, msg); err != nil {
		logf("WARNING: failed to send notification %q: %v", subject, err)
		return
	}
	logf("sent notification %q to %s", subject, strings.Join(m.secrets.To, ", "))
}

// buildMessage assembles an RFC 5322 text message. Header lines and the
// blank separator use CRLF; the body is passed through as-is.
func buildMessage(from string, to []string, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
