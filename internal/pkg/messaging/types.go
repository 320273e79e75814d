package messaging

import (
	"context"
	"errors"
	"fmt"
)

// SendError classifies a provider failure. Retryable errors (timeouts,
// rate limits, 5xx) may be re-attempted with backoff; non-retryable errors
// (invalid recipient, rejected content) must not be.
type SendError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *SendError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s send failed (%s): %v", e.Provider, kind, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a SendError marked retryable.
func IsRetryable(err error) bool {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Retryable
	}
	return false
}

// SMSSender delivers a text message. Returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, toPhone, body string) (string, error)
}

// EmailSender delivers an email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// PhoneCaller places an AI voice call with the given script. Returns the
// provider call id and the call duration in seconds, or 0 when the gateway
// does not report one. The dispatcher settles the credit charge against the
// reported duration, so gateways should return it whenever available.
type PhoneCaller interface {
	PlaceCall(ctx context.Context, toPhone, script string) (string, int, error)
}
