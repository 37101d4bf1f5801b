package notify

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

type Kind string

const (
	KindOutage   Kind = "outage"
	KindRecovery Kind = "recovery"
	KindDegraded Kind = "degraded"
)

// Message is one alert. MessageID is chosen by the sender; InReplyTo threads
// a recovery onto the outage alert that preceded it.
type Message struct {
	Kind      Kind
	ServiceID string
	Subject   string
	Text      string
	To        []string
	MessageID string
	InReplyTo string
}

// Transport delivers a message and returns the id it was delivered under.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

var ErrNoRecipients = errors.New("no recipients")

// PartialError means at least one transport delivered and the rest failed.
type PartialError struct {
	Err error
}

func (e *PartialError) Error() string { return "partial delivery: " + e.Err.Error() }
func (e *PartialError) Unwrap() error { return e.Err }

// Delivered reports whether err still means the message reached someone.
func Delivered(err error) bool {
	var pe *PartialError
	return err == nil || errors.As(err, &pe)
}

// Multi fans a message out to every transport.
type Multi []Transport

func (m Multi) Send(ctx context.Context, msg Message) (string, error) {
	var (
		id   string
		errs error
		ok   int
	)
	for _, t := range m {
		if t == nil {
			continue
		}
		got, err := t.Send(ctx, msg)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		ok++
		if id == "" {
			id = got
		}
	}
	switch {
	case errs == nil:
		return id, nil
	case ok > 0:
		return id, &PartialError{Err: errs}
	default:
		return "", errs
	}
}
