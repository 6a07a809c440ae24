package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGridNotifier sends the completion email through the SendGrid API
type SendGridNotifier struct {
	apiKey  string
	host    string // Empty uses the public API
	message Message
	logger  *slog.Logger
}

// SendGridOption customizes a SendGridNotifier
type SendGridOption func(*SendGridNotifier)

// WithSendGridHost points the notifier at another API host
func WithSendGridHost(host string) SendGridOption {
	return func(n *SendGridNotifier) {
		n.host = host
	}
}

// NewSendGridNotifier creates a SendGrid notifier from mail settings
func NewSendGridNotifier(cfg *adapter.MailConfig, logger *slog.Logger, opts ...SendGridOption) *SendGridNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &SendGridNotifier{
		apiKey:  cfg.SendGridAPIKey,
		message: completionMessage(cfg),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends the message once; there is no retry
func (n *SendGridNotifier) Notify(ctx context.Context) error {
	from := mail.NewEmail(n.message.From, n.message.From)
	to := mail.NewEmail(n.message.To, n.message.To)
	message := mail.NewSingleEmail(from, n.message.Subject, to, n.message.Body, "")

	request := sendgrid.GetRequest(n.apiKey, sendGridEndpoint, n.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	resp, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		n.logger.Error("failed to send email", "error", err)
		return fmt.Errorf("%w: %w", domain.ErrNotifyFailed, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sendgrid returned status %d: %s", domain.ErrNotifyFailed, resp.StatusCode, resp.Body)
	}

	n.logger.Debug("email sent", "to", n.message.To, "status", resp.StatusCode, "messageId", resp.Headers["X-Message-Id"])
	return nil
}
