package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gopkg.in/mail.v2"
)

type MailNotifier struct {
	dialer *mail.Dialer
	from   string
	to     string
	log    *zap.Logger
}

// NewMailNotifier returns nil when SMTP or the recipient is not configured.
func NewMailNotifier(host string, port int, username, password, to string, logger *zap.Logger) *MailNotifier {
	if host == "" || to == "" {
		return nil
	}
	d := mail.NewDialer(host, port, username, password)
	d.Timeout = 15 * time.Second
	d.SSL = port == 465
	return &MailNotifier{dialer: d, from: username, to: to, log: logger.Named("mail")}
}

func (m *MailNotifier) Notify(ctx context.Context, n Notice) {
	if m == nil || ctx.Err() != nil {
		return
	}
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.to)
	msg.SetHeader("Subject", n.Title)
	msg.SetBody("text/plain", n.PlainText())

	if err := m.dialer.DialAndSend(msg); err != nil {
		m.log.Warn("send failed", zap.String("to", m.to), zap.Error(err))
	}
}
