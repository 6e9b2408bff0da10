package channel

import (
	"context"
	"fmt"

	"closing_backend/internal/email"
	"closing_backend/internal/nurturing/repository"
)

// EmailAdapter sends nurturing messages through the SMTP sender.
type EmailAdapter struct {
	sender email.Sender
}

func NewEmailAdapter(sender email.Sender) *EmailAdapter {
	return &EmailAdapter{sender: sender}
}

func (a *EmailAdapter) Name() string { return repository.ChannelEmail }

func (a *EmailAdapter) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no email address on record")
	}
	return a.sender.Send(ctx, msg.To, msg.Subject, msg.Body)
}
