package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
)

const smtpDialTimeout = 15 * time.Second

type mailFunc func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTP mails the report through a STARTTLS relay using PLAIN auth.
type SMTP struct {
	host      string
	addr      string
	user      string
	password  string
	recipient string
	send      mailFunc
}

func NewSMTP(cfg *config.SMTPConfig) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 || cfg.Recipient == "" {
		return nil, fmt.Errorf("notify: smtp requires host, port and recipient")
	}
	return &SMTP{
		host:      cfg.Host,
		addr:      net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		user:      cfg.User,
		password:  cfg.Password.Value(),
		recipient: cfg.Recipient,
		send:      sendStartTLS,
	}, nil
}

func (s *SMTP) Notify(ctx context.Context, msg Message) error {
	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	body := buildMail(s.user, s.recipient, msg.Subject, msg.Body, time.Now())
	if err := s.send(ctx, s.addr, auth, s.user, []string{s.recipient}, body); err != nil {
		return fmt.Errorf("send mail via %s: %w", s.addr, err)
	}
	logger.FromContext(ctx).Info("Notification sent", "driver", "smtp", "subject", msg.Subject)
	return nil
}

func buildMail(from, to, subject, body string, date time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + date.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(body, "\r\n", "\n"), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// sendStartTLS upgrades the session before authenticating, as smtp.SendMail
// would, but honors ctx for the dial.
func sendStartTLS(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	d := net.Dialer{Timeout: smtpDialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()
	if ok, _ := c.Extension("STARTTLS"); !ok {
		return fmt.Errorf("server %s does not support STARTTLS", host)
	}
	if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
