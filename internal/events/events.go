package events

import (
	"context"
	"encoding/json"
	"time"
)

// Type lifecycle event name
type Type string

const (
	FormOpened         Type = "form.opened"
	FormSubmitted      Type = "form.submitted"
	ApplicationCreated Type = "application.created"
	PricingSelected    Type = "pricing.selected"
	PaymentExecuted    Type = "payment.executed"
)

// Event is published after an operation completed. Publishing never blocks the operation:
// callers log failures and carry on.
type Event struct {
	Type          Type      `json:"type"`
	SessionID     string    `json:"session_id,omitempty"`
	CountryID     string    `json:"country_id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Beneficiaries int       `json:"beneficiaries,omitempty"`
	PricingID     string    `json:"pricing_id,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	At            time.Time `json:"at"`
}

func (e Event) payload() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events; used when EVENTS_MODE=none.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
