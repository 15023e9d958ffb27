package kvrepofake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-session-sync/kvstore"
)

var _ kvstore.Repo = (*FakeRepo)(nil)

// FakeRepo is a thread-safe in-memory kvstore.Repo.
type FakeRepo struct {
	values map[string][]byte
	order  []string
	lock   sync.RWMutex

	// Errors returned by the next matching call, then reset.
	GetErr    error
	PutErr    error
	DeleteErr error
	ListErr   error
}

// NewFakeRepo creates an empty in-memory repo.
func NewFakeRepo() *FakeRepo {
	return &FakeRepo{
		values: make(map[string][]byte),
	}
}

func (r *FakeRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := takeErr(&r.GetErr); err != nil {
		return nil, err
	}
	value, ok := r.values[key]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (r *FakeRepo) Put(_ context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if err := takeErr(&r.PutErr); err != nil {
		return err
	}
	if _, ok := r.values[key]; !ok {
		r.order = append(r.order, key)
	}
	r.values[key] = append([]byte(nil), value...)
	return nil
}

func (r *FakeRepo) Delete(_ context.Context, key string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := takeErr(&r.DeleteErr); err != nil {
		return err
	}
	if _, ok := r.values[key]; !ok {
		return nil // Already doesn't exist, no error
	}
	delete(r.values, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *FakeRepo) List(_ context.Context) ([]kvstore.Item, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if err := takeErr(&r.ListErr); err != nil {
		return nil, err
	}
	items := make([]kvstore.Item, 0, len(r.order))
	for _, k := range r.order {
		items = append(items, kvstore.Item{Key: k, Value: append([]byte(nil), r.values[k]...)})
	}
	return items, nil
}

// Len returns the number of stored keys.
func (r *FakeRepo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.values)
}

func takeErr(slot *error) error {
	err := *slot
	*slot = nil
	return err
}
