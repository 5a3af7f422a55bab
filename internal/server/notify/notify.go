// Package notify delivers one-time passcodes out of band. Delivery is best
// effort: callers hand a Message to a Notifier and never learn whether the
// recipient got it.
package notify

import (
	"context"
	"errors"
	"time"
)

var ErrUnknownKind = errors.New("unknown message kind")

type Kind string

const (
	KindRegistration  Kind = "registration"
	KindPasswordReset Kind = "password-reset"
)

// ContextHeader tags every outgoing mail with its Kind.
const ContextHeader = "X-OTP-Context"

// Message is one passcode mail. ID and QueuedAt are stamped by the
// Dispatcher and stay the same across delivery attempts.
type Message struct {
	ID        string
	QueuedAt  time.Time
	Kind      Kind
	To        string
	Name      string
	Code      string
	ExpiresIn time.Duration
}

type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, m Message) error

func (f NotifierFunc) Notify(ctx context.Context, m Message) error { return f(ctx, m) }
