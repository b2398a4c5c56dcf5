// Package notification is the outbound message boundary. Mail transport is
// an external concern; the auth service only depends on the Notifier
// interface and treats delivery as best-effort.
package notification

import "context"

// Data is one outbound notification
type Data struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers a notification to a recipient
type Notifier interface {
	Send(ctx context.Context, data Data) error
}

// Noop discards notifications; used in tests and when email is disabled
type Noop struct{}

// Send implements Notifier
func (Noop) Send(ctx context.Context, data Data) error { return nil }
