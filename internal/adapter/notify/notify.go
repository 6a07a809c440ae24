package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/hddsync/internal/adapter"
	"github.com/mmcdole/hddsync/internal/domain"
)

// Completion message, sent once per successful cycle
const (
	Subject = "Emby Playlist Sync Complete"
	Body    = "Emby playlist sync is complete and the drive can now be removed."
)

// Message is one outgoing email
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// completionMessage builds the fixed completion email
func completionMessage(cfg *adapter.MailConfig) Message {
	return Message{
		From:    cfg.Sender,
		To:      cfg.Recipient(),
		Subject: Subject,
		Body:    Body,
	}
}

// NewNotifier returns the notifier selected by cfg.Provider.
// When the provider is not fully configured, notifications are disabled and
// a Nop notifier is returned.
func NewNotifier(cfg *adapter.MailConfig, logger *slog.Logger) (domain.Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.NotificationsEnabled() {
		logger.Info("email notifications disabled")
		return Nop{}, nil
	}

	switch cfg.Provider {
	case adapter.MailProviderSMTP:
		return NewSMTPNotifier(cfg, logger), nil
	case adapter.MailProviderSendGrid:
		return NewSendGridNotifier(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", cfg.Provider)
	}
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(context.Context) error { return nil }
