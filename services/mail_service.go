package services

import (
	"crypto/tls"
	"fmt"

	"github.com/sirupsen/logrus"
	mail "gopkg.in/gomail.v2"

	"bulkmailer/config"
)

// Sender opens authenticated transport sessions to the mail relay.
type Sender interface {
	OpenSession() (Session, error)
}

// Session is one authenticated relay connection, reused for every message
// of a dispatch invocation.
type Session interface {
	Send(to, subject, body string) error
	Close() error
}

// MailService dials the configured SMTP relay over STARTTLS.
type MailService struct {
	cfg *config.Config
}

// NewMailService creates a new MailService instance
func NewMailService(cfg *config.Config) *MailService {
	return &MailService{cfg: cfg}
}

// OpenSession dials and authenticates once. Callers must Close the session.
func (s *MailService) OpenSession() (Session, error) {
	d := mail.NewDialer(s.cfg.SMTPHost, s.cfg.SMTPPort, s.cfg.SMTPUser, s.cfg.SMTPPassword)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.SMTPHost,
		InsecureSkipVerify: s.cfg.SkipTLSVerify,
	}
	if s.cfg.SkipTLSVerify {
		logrus.Warn("TLS certificate verification is DISABLED.")
	}

	sc, err := d.Dial()
	if err != nil {
		return nil, fmt.Errorf("could not connect to mail relay: %w", err)
	}
	return &smtpSession{sc: sc, from: s.cfg.FromEmail}, nil
}

type smtpSession struct {
	sc   mail.SendCloser
	from string
}

func (s *smtpSession) Send(to, subject, body string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return mail.Send(s.sc, m)
}

func (s *smtpSession) Close() error {
	return s.sc.Close()
}
