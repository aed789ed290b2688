package notification

import (
	"context"
	"log"
)

// Publisher hands an event to whatever delivers it after the order write has
// committed. Publish must not wait on SMS or email providers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Handler consumes a published event.
type Handler func(ctx context.Context, event Event)

type RecipientLookup interface {
	Recipient(ctx context.Context, userID string) (Recipient, error)
}

// Notifier resolves who an event is for and dispatches it.
type Notifier struct {
	dispatcher *Dispatcher
	recipients RecipientLookup
}

func NewNotifier(dispatcher *Dispatcher, recipients RecipientLookup) *Notifier {
	return &Notifier{dispatcher: dispatcher, recipients: recipients}
}

func (n *Notifier) Handle(ctx context.Context, event Event) Report {
	recipient, err := n.recipients.Recipient(ctx, event.UserID)
	if err != nil {
		log.Printf("[NOTIFY] [ERROR] recipient lookup failed for order %s user %s: %v", event.OrderNumber, event.UserID, err)
		return Report{}
	}

	report := n.dispatcher.Dispatch(ctx, recipient, event)
	log.Printf("[NOTIFY] [INFO] %s for order %s: sms attempted=%t success=%t, email attempted=%t success=%t",
		event.Kind, event.OrderNumber,
		report.SMS.Attempted, report.SMS.Success,
		report.Email.Attempted, report.Email.Success,
	)
	return report
}

// HandlerFunc adapts the notifier to queue and broker consumers.
func (n *Notifier) HandlerFunc() Handler {
	return func(ctx context.Context, event Event) {
		n.Handle(ctx, event)
	}
}
