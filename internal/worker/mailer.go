package worker

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message is one outgoing email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     string
	fromName string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a sender for host:port. Empty user disables auth.
func NewSMTPSender(host string, port int, user, pass, from, fromName string) *SMTPSender {
	s := &SMTPSender{
		addr:     host + ":" + strconv.Itoa(port),
		host:     host,
		from:     from,
		fromName: fromName,
		send:     smtp.SendMail,
	}
	if user != "" {
		s.auth = smtp.PlainAuth("", user, pass, host)
	}
	return s
}

// Send writes a plain-text message. smtp.SendMail has no context; a cancelled ctx only skips the send.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(s.addr, s.auth, s.from, []string{msg.To}, s.compose(msg, time.Now()))
}

func (s *SMTPSender) compose(msg Message, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", formatAddress(s.fromName, s.from))
	fmt.Fprintf(&b, "To: %s\r\n", formatAddress(msg.ToName, msg.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func formatAddress(name, addr string) string {
	if name == "" {
		return "<" + addr + ">"
	}
	return mime.QEncoding.Encode("utf-8", name) + " <" + addr + ">"
}

// LogSender only logs messages. Used when no SMTP host is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message.
func (l *LogSender) Send(_ context.Context, msg Message) error {
	l.logger.Info("email (log only)", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}
