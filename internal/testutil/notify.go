package testutil

import (
	"context"
	"errors"
	"sync"

	"foodbackend/internal/notification"
)

// Publisher records every event it is handed.
type Publisher struct {
	mu     sync.Mutex
	events []notification.Event
	Err    error
}

func (p *Publisher) Publish(_ context.Context, event notification.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

func (p *Publisher) Events() []notification.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notification.Event(nil), p.events...)
}

// OfKind returns the recorded events of one kind.
func (p *Publisher) OfKind(kind notification.Kind) []notification.Event {
	var out []notification.Event
	for _, e := range p.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (p *Publisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Recipients is a notification.RecipientLookup keyed by user id hex.
type Recipients map[string]notification.Recipient

func (r Recipients) Recipient(_ context.Context, userID string) (notification.Recipient, error) {
	rec, ok := r[userID]
	if !ok {
		return notification.Recipient{}, errors.New("recipient not found")
	}
	return rec, nil
}

type SentMessage struct {
	To      string
	Subject string
	Body    string
}

// Sender fakes both notification channels.
type Sender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

func (s *Sender) SendSMS(_ context.Context, to, body string) error {
	return s.record(SentMessage{To: to, Body: body})
}

func (s *Sender) SendEmail(_ context.Context, to, subject, body string) error {
	return s.record(SentMessage{To: to, Subject: subject, Body: body})
}

func (s *Sender) record(m SentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.sent = append(s.sent, m)
	return nil
}

func (s *Sender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}
