package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/wneessen/go-mail"
)

// implicitTLSPort is the SMTPS port; any other port upgrades with STARTTLS when offered
const implicitTLSPort = 465

const defaultSMTPTimeout = 30 * time.Second

// SMTPNotifier sends the completion email through an SMTP relay,
// authenticating as the sender.
type SMTPNotifier struct {
	host      string
	port      int
	sender    string
	password  string
	message   Message
	tlsConfig *tls.Config
	logger    *slog.Logger
}

// NewSMTPNotifier creates an SMTP notifier from mail settings
func NewSMTPNotifier(cfg *adapter.MailConfig, logger *slog.Logger) *SMTPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPNotifier{
		host:      cfg.SMTPServer,
		port:      cfg.SMTPPort,
		sender:    cfg.Sender,
		password:  cfg.Password,
		message:   completionMessage(cfg),
		tlsConfig: &tls.Config{ServerName: cfg.SMTPServer},
		logger:    logger,
	}
}

// Notify sends the message once; there is no retry
func (n *SMTPNotifier) Notify(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultSMTPTimeout)
		defer cancel()
	}

	msg, err := n.message.mailMsg()
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)
	}

	client, err := mail.NewClient(n.host, n.clientOptions()...)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		n.logger.Error("failed to send email", "server", n.host, "port", n.port, "error", err)
		return fmt.Errorf("%w: %s:%d: %w", domain.ErrNotifyFailed, n.host, n.port, err)
	}
	n.logger.Info("notification sent", "to", n.message.To, "server", n.host)
	return nil
}

// clientOptions selects implicit TLS on 465 and opportunistic STARTTLS elsewhere
func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithTimeout(defaultSMTPTimeout),
		mail.WithTLSConfig(n.tlsConfig),
	}
	if n.port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if n.port > 0 {
		opts = append(opts, mail.WithPort(n.port))
	}
	if n.password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.sender),
			mail.WithPassword(n.password),
		)
	}
	return opts
}

// mailMsg renders the message with Date and Message-ID headers set
func (m Message) mailMsg() (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", m.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetDate()
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextPlain, m.Body)
	return msg, nil
}
