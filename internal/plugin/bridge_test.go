// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/canvas/internal/logging"
	"github.com/holomush/canvas/internal/observability"
	"github.com/holomush/canvas/internal/plugin"
	"github.com/holomush/canvas/pkg/view"
	"github.com/holomush/canvas/pkg/wire"
)

// recordingApplier records the order events are applied in.
type recordingApplier struct {
	mu     sync.Mutex
	events []plugin.RegistryEvent
	err    error
}

func (r *recordingApplier) Apply(_ context.Context, ev plugin.RegistryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingApplier) ids() []plugin.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]plugin.ID, 0, len(r.events))
	for _, ev := range r.events {
		ids = append(ids, ev.ID)
	}
	return ids
}

type mockApplier struct {
	mock.Mock
}

func (m *mockApplier) Apply(ctx context.Context, ev plugin.RegistryEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// verifyNoLeaks checks for leaked goroutines after every other cleanup
// registered by the test has run.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { goleak.VerifyNone(t) })
}

func startBridge(t *testing.T, applier plugin.Applier, opts ...plugin.BridgeOption) *plugin.Bridge {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := plugin.NewBridge(applier, opts...)
	b.Start(ctx)
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	return b
}

func TestBridge_AppliesInArrivalOrder(t *testing.T) {
	verifyNoLeaks(t)

	applier := &recordingApplier{}
	b := startBridge(t, applier)

	ctx := context.Background()
	for id := plugin.ID(1); id <= 50; id++ {
		require.NoError(t, b.Submit(ctx, plugin.Unregistered(id)))
	}

	require.Eventually(t, func() bool { return len(applier.ids()) == 50 }, time.Second, 5*time.Millisecond)
	for i, id := range applier.ids() {
		assert.Equal(t, plugin.ID(i+1), id)
	}
}

func TestBridge_UpdatesAreCoalesced(t *testing.T) {
	verifyNoLeaks(t)

	applier := &recordingApplier{}
	b := startBridge(t, applier)

	ctx := context.Background()
	for id := plugin.ID(1); id <= 10; id++ {
		require.NoError(t, b.Submit(ctx, plugin.Unregistered(id)))
	}
	require.Eventually(t, func() bool { return len(applier.ids()) == 10 }, time.Second, 5*time.Millisecond)

	select {
	case <-b.Updates():
	case <-time.After(time.Second):
		t.Fatal("no update signal")
	}
	select {
	case <-b.Updates():
		t.Fatal("updates should coalesce into one pending signal")
	default:
	}
}

func TestBridge_InjectRoutesPressBackToPlugin(t *testing.T) {
	verifyNoLeaks(t)

	theme, err := view.ThemeByName("light")
	require.NoError(t, err)
	registry := plugin.NewRegistry(theme)
	b := startBridge(t, registry)

	ctx := context.Background()
	p, outbound := plugin.NewPlugin(4, 0, 4)
	require.NoError(t, b.Submit(ctx, plugin.Registered(p)))
	require.NoError(t, b.Inject(ctx, 4, wire.InputEmitted([]byte("increment"))))

	var got []wire.Event
	require.Eventually(t, func() bool {
		select {
		case ev := <-outbound:
			got = append(got, ev)
		default:
		}
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, wire.EventThemeChanged, got[0].Kind)
	assert.Equal(t, wire.InputDelivered([]byte("increment")), got[1])
}

func TestBridge_CountsDroppedEvents(t *testing.T) {
	verifyNoLeaks(t)

	metrics := observability.NewMetrics(observability.NewRegistry())
	theme, err := view.ThemeByName("light")
	require.NoError(t, err)
	b := startBridge(t, plugin.NewRegistry(theme), plugin.WithBridgeMetrics(metrics))

	require.NoError(t, b.Submit(context.Background(), plugin.RequestReceived(99, wire.ViewProduced(view.Text("stale")))))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.RegistryDrops.WithLabelValues("unknown_plugin")) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBridge_SubmitAfterStopFails(t *testing.T) {
	verifyNoLeaks(t)

	ctx, cancel := context.WithCancel(context.Background())
	b := plugin.NewBridge(&recordingApplier{})
	b.Start(ctx)
	cancel()
	b.Stop()

	err := b.Submit(context.Background(), plugin.Unregistered(1))
	assert.ErrorIs(t, err, plugin.ErrBridgeStopped)
}

func TestBridge_AcceptedEventsAreAppliedWhenStopping(t *testing.T) {
	verifyNoLeaks(t)

	for range 50 {
		applier := &recordingApplier{}
		ctx, cancel := context.WithCancel(context.Background())
		b := plugin.NewBridge(applier, plugin.WithIngressSize(4))
		b.Start(ctx)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for w := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range 20 {
					if b.Submit(context.Background(), plugin.Unregistered(plugin.ID(w*100+i))) == nil {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}
		cancel()
		wg.Wait()
		b.Stop()

		require.Len(t, applier.ids(), accepted, "every accepted event applied")
	}
}

func TestBridge_SubmitHonorsContext(t *testing.T) {
	b := plugin.NewBridge(&recordingApplier{}, plugin.WithIngressSize(1))

	ctx := context.Background()
	require.NoError(t, b.Submit(ctx, plugin.Unregistered(1)))

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := b.Submit(ctx, plugin.Unregistered(2))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridge_PassesPluginIDInContext(t *testing.T) {
	verifyNoLeaks(t)

	applied := make(chan struct{})
	applier := &mockApplier{}
	applier.On("Apply", mock.MatchedBy(func(ctx context.Context) bool {
		id, ok := logging.PluginID(ctx)
		return ok && id == 12
	}), plugin.Unregistered(12)).Return(nil).Once().Run(func(mock.Arguments) { close(applied) })

	b := startBridge(t, applier)
	require.NoError(t, b.Submit(context.Background(), plugin.Unregistered(12)))

	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("event not applied")
	}
	applier.AssertExpectations(t)
}
