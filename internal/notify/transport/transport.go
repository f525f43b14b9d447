// Package transport hands resolved messages to email and SMS providers.
package transport

import (
	"context"
)

type Message struct {
	To      string
	Subject string // email only
	Body    string
}

type Result struct {
	Provider          string
	ProviderReference string
}

// Transport delivers one message. Any returned error is a transport failure;
// callers do not inspect provider error codes.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Result, error)
}

func stringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
