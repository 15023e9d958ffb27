package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-sync/internal/errors"
	"github.com/jrsteele09/go-session-sync/kvstore"
	"github.com/jrsteele09/go-session-sync/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Entry is a write the server has not acknowledged yet. Entries are never mutated, only deleted.
type Entry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Caller runs a request with the current access token, refreshing once on a 401.
// *sessions.Manager implements it.
type Caller interface {
	CallWithAuth(ctx context.Context, op sessions.AuthorizedFunc) error
}

// SubmitFunc delivers one payload to the server.
type SubmitFunc func(ctx context.Context, accessToken string, payload json.RawMessage) error

type Connectivity interface {
	Online() bool
}

type DrainResult struct {
	Delivered int
	Failed    int
	Remaining int
}

// Outbox is the durable queue of pending writes. It is the only user of its store.
type Outbox struct {
	store        kvstore.Repo
	caller       Caller
	submit       SubmitFunc
	connectivity Connectivity
	maxEntries   int
	log          zerolog.Logger

	// enqueueLock makes the capacity check and the insert atomic.
	enqueueLock sync.Mutex
	// drainSlot admits one Drain at a time so no entry is submitted twice.
	drainSlot chan struct{}
}

type Option func(*Outbox)

// WithMaxEntries caps the queue. When full, new writes are rejected with ErrQueueFull.
// Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *Outbox) {
		if n < 0 {
			n = 0
		}
		o.maxEntries = n
	}
}

// WithConnectivity lets Submit queue without a network attempt while offline.
func WithConnectivity(c Connectivity) Option {
	return func(o *Outbox) {
		o.connectivity = c
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *Outbox) {
		o.log = logger
	}
}

// New creates an outbox over store. Entries are delivered through caller with submit.
func New(store kvstore.Repo, caller Caller, submit SubmitFunc, options ...Option) *Outbox {
	o := &Outbox{
		store:     store,
		caller:    caller,
		submit:    submit,
		log:       log.With().Str("component", "outbox").Logger(),
		drainSlot: make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Enqueue stores payload as a new pending write. Payload must be valid JSON.
func (o *Outbox) Enqueue(ctx context.Context, payload json.RawMessage) (Entry, error) {
	if !json.Valid(payload) {
		return Entry{}, ErrInvalidPayload
	}

	o.enqueueLock.Lock()
	defer o.enqueueLock.Unlock()

	if o.maxEntries > 0 {
		items, err := o.store.List(ctx)
		if err != nil {
			return Entry{}, apperrors.Wrapf(err, "failed to count pending writes")
		}
		if len(items) >= o.maxEntries {
			return Entry{}, apperrors.Wrapf(apperrors.ErrQueueFull, "%d pending writes", len(items))
		}
	}

	entry := Entry{ID: uuid.New().String(), Payload: payload}
	raw, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode pending write: %w", err)
	}
	if err := o.store.Put(ctx, entry.ID, raw); err != nil {
		return Entry{}, apperrors.Wrapf(err, "failed to store pending write")
	}

	o.log.Info().Str("id", entry.ID).Msg("write queued")
	return entry, nil
}

// Pending lists readable entries in queue order.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	items, err := o.store.List(ctx)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to list pending writes")
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entry, err := decodeEntry(item)
		if err != nil {
			o.log.Warn().Err(err).Str("key", item.Key).Msg("skipping unreadable pending write")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Drain submits every pending entry in queue order. Delivered entries are deleted.
// An unauthorized failure, a missing session or cancellation aborts the drain and leaves
// the rest queued; any other failure keeps that entry and moves on to the next.
// A Drain that overlaps another waits for it to finish and then drains what is left.
func (o *Outbox) Drain(ctx context.Context) (DrainResult, error) {
	if err := o.acquireDrain(ctx); err != nil {
		return DrainResult{}, err
	}
	defer func() { <-o.drainSlot }()

	items, err := o.store.List(ctx)
	if err != nil {
		return DrainResult{}, apperrors.Wrapf(err, "failed to list pending writes")
	}

	var result DrainResult
	finish := func() DrainResult {
		result.Remaining = len(items) - result.Delivered
		return result
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return finish(), err
		}

		entry, err := decodeEntry(item)
		if err != nil {
			o.log.Warn().Err(err).Str("key", item.Key).Msg("skipping unreadable pending write")
			result.Failed++
			continue
		}

		err = o.deliver(ctx, entry.Payload)
		switch {
		case err == nil:
			if delErr := o.store.Delete(context.WithoutCancel(ctx), entry.ID); delErr != nil {
				o.log.Error().Err(delErr).Str("id", entry.ID).Msg("delivered write could not be removed from the queue")
			}
			result.Delivered++
			o.log.Info().Str("id", entry.ID).Msg("pending write delivered")

		case abortsDrain(err):
			o.log.Warn().Err(err).Str("id", entry.ID).Msg("drain aborted")
			return finish(), apperrors.Wrapf(err, "drain aborted at %s", entry.ID)

		default:
			result.Failed++
			o.log.Warn().Err(err).Str("id", entry.ID).Str("kind", apperrors.Classify(err).String()).Msg("pending write kept for retry")
		}
	}
	return finish(), nil
}

func (o *Outbox) acquireDrain(ctx context.Context) error {
	select {
	case o.drainSlot <- struct{}{}:
		return nil
	default:
	}
	o.log.Debug().Msg("waiting for running drain")
	select {
	case o.drainSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) deliver(ctx context.Context, payload json.RawMessage) error {
	return o.caller.CallWithAuth(ctx, func(ctx context.Context, accessToken string) error {
		return o.submit(ctx, accessToken, payload)
	})
}

func (o *Outbox) online() bool {
	return o.connectivity == nil || o.connectivity.Online()
}

func abortsDrain(err error) bool {
	return apperrors.IsUnauthorized(err) ||
		errors.Is(err, apperrors.ErrNotAuthenticated) ||
		apperrors.IsCancelled(err)
}

func decodeEntry(item kvstore.Item) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return Entry{}, fmt.Errorf("invalid pending write %s: %w", item.Key, err)
	}
	entry.ID = item.Key // the store key is authoritative
	if !json.Valid(entry.Payload) {
		return Entry{}, fmt.Errorf("pending write %s has no payload", item.Key)
	}
	return entry, nil
}
