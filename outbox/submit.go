package outbox

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
)

type SubmitStatus int

const (
	// Delivered means the server acknowledged the write.
	Delivered SubmitStatus = iota
	// Queued means the write was stored for a later drain.
	Queued
)

func (s SubmitStatus) String() string {
	if s == Queued {
		return "queued"
	}
	return "delivered"
}

type SubmitResult struct {
	Status SubmitStatus
	Entry  Entry // set when Queued
	Cause  error // the failure that caused queueing, if any
}

// Submit delivers a new write now when online, or queues it. A failed online attempt is
// queued unless the failure is an auth failure, which is returned without queueing.
func (o *Outbox) Submit(ctx context.Context, payload json.RawMessage) (SubmitResult, error) {
	if !json.Valid(payload) {
		return SubmitResult{}, ErrInvalidPayload
	}

	if !o.online() {
		return o.queue(ctx, payload, apperrors.ErrOffline)
	}

	err := o.deliver(ctx, payload)
	switch {
	case err == nil:
		return SubmitResult{Status: Delivered}, nil
	case apperrors.IsUnauthorized(err),
		errors.Is(err, apperrors.ErrNotAuthenticated),
		errors.Is(err, apperrors.ErrSessionChanged):
		return SubmitResult{}, err
	}

	o.log.Info().Err(err).Msg("write failed, queueing for retry")
	return o.queue(context.WithoutCancel(ctx), payload, err)
}

func (o *Outbox) queue(ctx context.Context, payload json.RawMessage, cause error) (SubmitResult, error) {
	entry, err := o.Enqueue(ctx, payload)
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Status: Queued, Entry: entry, Cause: cause}, nil
}
