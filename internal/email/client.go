// Package email defines the transport used for every outbound message and
// provides Resend and SMTP implementations.
package email

import (
	"context"
	"errors"
)

// ErrDelivery wraps every failure to hand a message to the provider. Callers
// use errors.Is(err, ErrDelivery) to tell transport failures apart from
// persistence failures.
var ErrDelivery = errors.New("email: delivery failed")

// Message is a single outbound HTML email to one recipient.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a Message and returns the provider's message ID.
// Tests inject a stub that records calls without hitting the network.
type Sender interface {
	Send(ctx context.Context, msg Message) (id string, err error)
}

// From is the envelope sender shared by all providers.
type From struct {
	Addr string // e.g. "admissions@example.com"
	Name string // e.g. "MBA Admissions"
}

func (f From) String() string {
	if f.Name == "" {
		return f.Addr
	}
	return f.Name + " <" + f.Addr + ">"
}
