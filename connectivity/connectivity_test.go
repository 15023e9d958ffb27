package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-sync/connectivity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	lock   sync.Mutex
	events []connectivity.Event
}

func (l *eventLog) record(e connectivity.Event) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []connectivity.Event {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]connectivity.Event(nil), l.events...)
}

func TestMonitorEmitsOnlyOnEdges(t *testing.T) {
	m := connectivity.NewMonitor(false)
	events := &eventLog{}
	detach := m.Subscribe(events.record)

	assert.False(t, m.Set(false))
	assert.True(t, m.Set(true))
	assert.False(t, m.Set(true))
	assert.True(t, m.Set(false))
	assert.True(t, m.Set(true))

	assert.Equal(t, []connectivity.Event{connectivity.WentOnline, connectivity.WentOffline, connectivity.WentOnline}, events.all())
	assert.True(t, m.Online())

	detach()
	detach()
	m.Set(false)
	assert.Len(t, events.all(), 3)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "online", connectivity.WentOnline.String())
	assert.Equal(t, "offline", connectivity.WentOffline.String())
}

func TestProberFollowsServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	m := connectivity.NewMonitor(false)
	events := &eventLog{}
	m.Subscribe(events.record)
	p := connectivity.NewProber(server.URL, m)

	assert.True(t, p.Probe(context.Background()), "any HTTP response counts as online")
	assert.True(t, m.Online())

	server.Close()
	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.Online())

	assert.Equal(t, []connectivity.Event{connectivity.WentOnline, connectivity.WentOffline}, events.all())
}

func TestProberRunStopsWithContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	m := connectivity.NewMonitor(false)
	wentOnline := make(chan struct{}, 1)
	m.Subscribe(func(e connectivity.Event) {
		if e == connectivity.WentOnline {
			wentOnline <- struct{}{}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		connectivity.NewProber(server.URL, m, connectivity.WithInterval(10*time.Millisecond)).Run(ctx)
		close(done)
	}()

	select {
	case <-wentOnline:
	case <-time.After(2 * time.Second):
		t.Fatal("prober never reported online")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("prober did not stop")
	}
	require.True(t, m.Online())
}
