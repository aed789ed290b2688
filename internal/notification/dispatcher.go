// Package notification fans order events out to SMS and email. Delivery is
// best effort: channel failures are logged and reported, never returned.
package notification

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"foodbackend/internal/apperr"
)

const defaultChannelTimeout = 10 * time.Second

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type Recipient struct {
	Name  string
	Phone string
	Email string
}

type ChannelResult struct {
	Attempted bool   `json:"attempted"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type Report struct {
	SMS   ChannelResult `json:"sms"`
	Email ChannelResult `json:"email"`
}

type Dispatcher struct {
	sms     SMSSender
	email   EmailSender
	timeout time.Duration
}

// NewDispatcher accepts nil senders for channels that are not configured.
func NewDispatcher(sms SMSSender, email EmailSender, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultChannelTimeout
	}
	return &Dispatcher{sms: sms, email: email, timeout: timeout}
}

// Dispatch attempts SMS when the recipient has a phone and email when it has
// an address. The channels run concurrently and one failing does not cancel
// the other.
func (d *Dispatcher) Dispatch(ctx context.Context, to Recipient, event Event) Report {
	var report Report
	var g errgroup.Group

	if phone := strings.TrimSpace(to.Phone); phone != "" {
		g.Go(func() error {
			report.SMS = d.attempt(ctx, "sms", phone, event, d.sms != nil, func(ctx context.Context) error {
				return d.sms.SendSMS(ctx, phone, event.SMSText())
			})
			return nil
		})
	}

	if email := strings.TrimSpace(to.Email); email != "" {
		g.Go(func() error {
			report.Email = d.attempt(ctx, "email", email, event, d.email != nil, func(ctx context.Context) error {
				return d.email.SendEmail(ctx, email, event.Subject(), event.EmailText(to.Name))
			})
			return nil
		})
	}

	_ = g.Wait()
	return report
}

func (d *Dispatcher) attempt(ctx context.Context, channel, recipient string, event Event, configured bool, send func(context.Context) error) (result ChannelResult) {
	if !configured {
		log.Printf("[NOTIFY] [WARN] %s channel not configured, skipping %s for order %s", channel, recipient, event.OrderNumber)
		return ChannelResult{Error: channel + " channel not configured"}
	}

	result.Attempted = true
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOTIFY] [ERROR] %s sender panicked for order %s: %v", channel, event.OrderNumber, r)
			result = ChannelResult{Attempted: true, Error: fmt.Sprintf("%s sender panic: %v", channel, r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log.Printf("[NOTIFY] [INFO] sending %s (%s) to %s for order %s", channel, event.Kind, recipient, event.OrderNumber)
	if err := send(ctx); err != nil {
		failure := apperr.ChannelFailure(channel, err)
		log.Printf("[NOTIFY] [ERROR] %s to %s for order %s: %v", channel, recipient, event.OrderNumber, failure)
		return ChannelResult{Attempted: true, Error: err.Error()}
	}

	log.Printf("[NOTIFY] [INFO] %s delivered to %s for order %s", channel, recipient, event.OrderNumber)
	return ChannelResult{Attempted: true, Success: true}
}
