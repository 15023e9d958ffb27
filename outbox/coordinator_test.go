package outbox_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-sync/connectivity"
	"github.com/jrsteele09/go-session-sync/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingDrainer struct {
	active    atomic.Int32
	maxActive atomic.Int32
	passes    atomic.Int32
	started   chan struct{}
	gate      chan struct{}
}

func newBlockingDrainer() *blockingDrainer {
	return &blockingDrainer{
		started: make(chan struct{}, 16),
		gate:    make(chan struct{}),
	}
}

func (d *blockingDrainer) Drain(ctx context.Context) (outbox.DrainResult, error) {
	n := d.active.Add(1)
	for {
		current := d.maxActive.Load()
		if n <= current || d.maxActive.CompareAndSwap(current, n) {
			break
		}
	}
	d.passes.Add(1)
	d.started <- struct{}{}

	select {
	case <-d.gate:
	case <-ctx.Done():
	}
	d.active.Add(-1)
	return outbox.DrainResult{}, ctx.Err()
}

func waitStarted(t *testing.T, d *blockingDrainer) {
	t.Helper()
	select {
	case <-d.started:
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not start")
	}
}

func TestCoordinatorCoalescesTriggers(t *testing.T) {
	network := connectivity.NewMonitor(true)
	drainer := newBlockingDrainer()
	c := outbox.NewCoordinator(drainer, network)

	c.Start(context.Background())
	defer c.Stop()
	waitStarted(t, drainer)

	for i := 0; i < 5; i++ {
		c.Trigger()
	}
	close(drainer.gate)
	c.Wait()

	assert.Equal(t, int32(2), drainer.passes.Load(), "triggers during a drain collapse into one follow-up pass")
	assert.Equal(t, int32(1), drainer.maxActive.Load())
}

func TestCoordinatorDrainsOnOnlineEdge(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.network.Set(false)
	f.enqueue(t, "squat")

	var results atomic.Int32
	c := outbox.NewCoordinator(f.outbox, f.network, outbox.WithResultHandler(func(outbox.DrainResult, error) {
		results.Add(1)
	}))
	c.Start(context.Background())
	defer c.Stop()

	c.Wait()
	assert.Equal(t, int32(0), results.Load(), "no drain while offline")
	assert.Equal(t, 1, f.queue.Len())

	f.network.Set(true)
	require.Eventually(t, func() bool { return results.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Wait()
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, []string{"squat"}, f.deliveredExercises())
}

func TestCoordinatorDrainsOnStartWhenOnline(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	f.enqueue(t, "squat", "bench")

	done := make(chan outbox.DrainResult, 1)
	c := outbox.NewCoordinator(f.outbox, f.network, outbox.WithResultHandler(func(r outbox.DrainResult, err error) {
		assert.NoError(t, err)
		done <- r
	}))
	c.Start(context.Background())
	defer c.Stop()

	select {
	case r := <-done:
		assert.Equal(t, 2, r.Delivered)
	case <-time.After(2 * time.Second):
		t.Fatal("no drain on start")
	}
}

func TestCoordinatorStopDetaches(t *testing.T) {
	network := connectivity.NewMonitor(false)
	drainer := newBlockingDrainer()
	close(drainer.gate)
	c := outbox.NewCoordinator(drainer, network)

	c.Trigger()
	c.Start(context.Background())
	c.Stop()

	network.Set(true)
	c.Trigger()
	c.Wait()
	assert.Equal(t, int32(0), drainer.passes.Load())
}

func TestManualDrainWaitsForCoordinatorDrain(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)
	ctx := context.Background()

	entered := make(chan struct{})
	gate := make(chan struct{})
	var submits atomic.Int32
	submit := func(ctx context.Context, accessToken string, payload json.RawMessage) error {
		if submits.Add(1) == 1 {
			close(entered)
			<-gate
		}
		_, err := f.backend.CreateWorkout(ctx, accessToken, payload)
		return err
	}
	ob := outbox.New(f.queue, f.manager, submit, outbox.WithConnectivity(f.network))
	_, err := ob.Enqueue(ctx, workout("squat"))
	require.NoError(t, err)

	c := outbox.NewCoordinator(ob, f.network)
	c.Start(ctx)
	defer c.Stop()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not drain on start")
	}

	manual := make(chan outbox.DrainResult, 1)
	go func() {
		result, err := ob.Drain(ctx)
		assert.NoError(t, err)
		manual <- result
	}()

	select {
	case <-manual:
		t.Fatal("manual drain ran alongside the coordinator")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	c.Wait()
	assert.Equal(t, outbox.DrainResult{}, <-manual)
	assert.Equal(t, int32(1), submits.Load())
	assert.Equal(t, []string{"squat"}, f.deliveredExercises())
	assert.Equal(t, 0, f.queue.Len())
}
