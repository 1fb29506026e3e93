package notifier

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"
)

const (
	smtpSecurityNone     = "none"
	smtpSecurityStartTLS = "starttls"
	smtpSecurityTLS      = "tls"
)

// ErrSMTPNotConfigured is returned by Send when no host or sender is set.
var ErrSMTPNotConfigured = errors.New("smtp is not configured")

// Sender delivers one HTML message to one recipient. Send returns nil once
// the server has accepted the message.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

type EmailSenderOptions struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	ReplyTo       string
	Security      string
	Timeout       time.Duration
	SkipTLSVerify bool
	Logger        *slog.Logger
}

// EmailSender is an SMTP Sender. It opens a new connection per message.
type EmailSender struct {
	host          string
	port          int
	username      string
	password      string
	from          string
	replyTo       string
	security      string
	timeout       time.Duration
	skipTLSVerify bool
	logger        *slog.Logger
}

func NewEmailSender(opts EmailSenderOptions) *EmailSender {
	security := strings.ToLower(strings.TrimSpace(opts.Security))
	switch security {
	case smtpSecurityNone, smtpSecurityStartTLS, smtpSecurityTLS:
	default:
		security = smtpSecurityStartTLS
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		host:          strings.TrimSpace(opts.Host),
		port:          opts.Port,
		username:      strings.TrimSpace(opts.Username),
		password:      opts.Password,
		from:          strings.TrimSpace(opts.From),
		replyTo:       strings.TrimSpace(opts.ReplyTo),
		security:      security,
		timeout:       timeout,
		skipTLSVerify: opts.SkipTLSVerify,
		logger:        logger.With("component", "email_sender"),
	}
}

// Configured reports whether enough settings are present to attempt delivery.
func (s *EmailSender) Configured() bool {
	return s.host != "" && s.port != 0 && s.from != ""
}

func (s *EmailSender) Send(ctx context.Context, to, subject, html string) error {
	if !s.Configured() {
		return ErrSMTPNotConfigured
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("recipient is required")
	}

	message := s.buildMessage(to, subject, html, time.Now())
	if err := s.sendEmail(ctx, to, message); err != nil {
		s.logger.Debug("smtp delivery failed", "to", to, "error", err)
		return fmt.Errorf("sending to %s: %w", to, err)
	}
	s.logger.Debug("email accepted", "to", to, "subject", subject)
	return nil
}

func (s *EmailSender) buildMessage(to, subject, html string, now time.Time) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", subject)),
		fmt.Sprintf("Date: %s", now.Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
	}
	if s.replyTo != "" {
		headers = append(headers, fmt.Sprintf("Reply-To: %s", s.replyTo))
	}
	return []byte(strings.Join(headers, "\r\n") + "\r\n\r\n" + html)
}

func (s *EmailSender) sendEmail(ctx context.Context, recipient string, message []byte) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(recipient); err != nil {
		return err
	}
	writer, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (s *EmailSender) connect(ctx context.Context) (*smtp.Client, error) {
	address := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))
	dialer := &net.Dialer{Timeout: s.timeout}
	var (
		conn net.Conn
		err  error
	)
	if s.security == smtpSecurityTLS {
		tlsDialer := &tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify}, // #nosec G402
		}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, err
	}

	// The whole SMTP exchange must finish before the earlier of the
	// configured timeout and the caller's deadline.
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if s.security == smtpSecurityStartTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, fmt.Errorf("smtp server does not support STARTTLS")
		}
		tlsConfig := &tls.Config{ServerName: s.host, InsecureSkipVerify: s.skipTLSVerify} // #nosec G402
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	if s.username != "" {
		auth := smtp.PlainAuth("", s.username, s.password, s.host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	return client, nil
}
