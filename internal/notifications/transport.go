package notifications

import (
	"context"

	"github.com/slotwave/slotwave/internal/domain"
)

// Message is the payload handed to the mail transport. Repeated sends of the
// same message must be safe on the transport side; the worker retries with
// identical content.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string

	// ReplyTo is set when the owning business has a contact address.
	ReplyTo string

	// FromName/FromAddress override the transport default sender when the
	// business configured an outgoing identity. Empty means default.
	FromName    string
	FromAddress string
}

// Transport delivers a rendered message to its recipient.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// BusinessDirectory resolves businesses for reply-to addresses and reminder
// settings.
type BusinessDirectory interface {
	GetBusiness(ctx context.Context, id string) (*domain.Business, error)
}
