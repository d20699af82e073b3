package raven

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ZhanJunLiau/raven-go/pkg/raven/deadletter"
	rverrors "github.com/ZhanJunLiau/raven-go/pkg/raven/errors"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/event"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/observability"
	"github.com/ZhanJunLiau/raven-go/pkg/raven/transport"
)

func newTestClient(t *testing.T, opts ...ClientOption) (*Client, *transport.MemorySender) {
	t.Helper()
	sender := transport.NewMemorySender()
	client, err := NewClient(mustParse(t, testDSN), sender, opts...)
	require.NoError(t, err)
	return client, sender
}

func TestNewClient_NilSender(t *testing.T) {
	_, err := NewClient(nil, nil)
	assert.ErrorIs(t, err, ErrNilSender)
}

func TestClient_CaptureMessage(t *testing.T) {
	client, sender := newTestClient(t)

	id := client.CaptureMessage("cache warmed")
	assert.Len(t, id, 32)

	require.NoError(t, client.Close(time.Second))
	events := sender.Events()
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].ID())
	assert.Equal(t, "cache warmed", events[0].Message())
	assert.Equal(t, event.LevelInfo, events[0].Level())
}

func TestClient_CaptureError(t *testing.T) {
	client, sender := newTestClient(t)

	root := errors.New("connection reset")
	id := client.CaptureError(fmt.Errorf("fetch profile: %w", root))
	assert.NotEmpty(t, id)
	assert.Empty(t, client.CaptureError(nil))

	require.NoError(t, client.Close(time.Second))
	events := sender.Events()
	require.Len(t, events, 1)
	evt := events[0]
	assert.Equal(t, event.LevelError, evt.Level())
	assert.Equal(t, "fetch profile: connection reset", evt.Message())
	require.Len(t, evt.Exceptions(), 2)
	assert.Equal(t, "connection reset", evt.Exceptions()[0].Value)
}

func TestClient_HelpersRunInOrder(t *testing.T) {
	var order []string
	client, sender := newTestClient(t, WithHelpers(
		event.HelperFunc(func(b *event.Builder) {
			order = append(order, "first")
			b.WithTag("stage", "first")
		}),
	))
	client.AddHelper(event.HelperFunc(func(b *event.Builder) {
		order = append(order, "second")
		b.WithTag("stage", "second")
	}))
	assert.Len(t, client.Helpers(), 2)

	client.Capture(event.NewBuilder().WithMessage("x"))
	require.NoError(t, client.Close(time.Second))

	assert.Equal(t, []string{"first", "second"}, order)
	v, ok := sender.Events()[0].Tag("stage")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestClient_PanickingHelperIsSkipped(t *testing.T) {
	client, sender := newTestClient(t, WithHelpers(
		event.HelperFunc(func(*event.Builder) { panic("helper bug") }),
		event.StaticTags{"team": "payments"},
	))

	client.CaptureMessage("still delivered")
	require.NoError(t, client.Close(time.Second))

	events := sender.Events()
	require.Len(t, events, 1)
	v, _ := events[0].Tag("team")
	assert.Equal(t, "payments", v)
}

func TestClient_CaptureAfterCloseIsDropped(t *testing.T) {
	client, sender := newTestClient(t)
	require.NoError(t, client.Close(time.Second))

	id := client.CaptureMessage("late")
	assert.NotEmpty(t, id)
	assert.Empty(t, sender.Events())
	assert.Equal(t, uint64(1), client.Transport().Stats().DroppedClosed)
	assert.NoError(t, client.Close(time.Second))
}

func TestClient_CaptureDoesNotBlock(t *testing.T) {
	sender := transport.NewMemorySender()
	sender.SetDelay(time.Hour)
	client, err := NewClient(nil, sender, WithTransportConfig(transport.Config{QueueSize: 4}))
	require.NoError(t, err)

	start := time.Now()
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				client.CaptureMessage("burst")
			}
		}()
	}
	wg.Wait()
	assert.Less(t, time.Since(start), time.Second)

	err = client.Close(0)
	assert.ErrorIs(t, err, transport.ErrDrainTimeout)
}

func TestClient_CaptureDoesNotBlockOnFailingSender(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transient", errors.New("collector unreachable")},
		{"permanent", &rverrors.HTTPError{StatusCode: 403, Message: "project disabled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := transport.NewMemorySender()
			sender.FailAlways(tt.err)
			client, err := NewClient(nil, sender, WithTransportConfig(transport.Config{
				QueueSize: 4,
				Retry:     rverrors.DefaultRetry,
			}))
			require.NoError(t, err)

			start := time.Now()
			var wg sync.WaitGroup
			for g := 0; g < 4; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < 50; i++ {
						assert.NotEmpty(t, client.CaptureMessage("doomed"))
					}
				}()
			}
			wg.Wait()
			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, uint64(200), client.Transport().Stats().Enqueued)

			start = time.Now()
			_ = client.Close(0)
			assert.Less(t, time.Since(start), time.Second)
			assert.Empty(t, sender.Events())
		})
	}
}

func TestClient_DeadLettersClosedWithClient(t *testing.T) {
	store := &closeTrackingStore{MemoryStore: deadletter.NewMemoryStore(10)}
	sender := transport.NewMemorySender()
	sender.FailAlways(errors.New("offline"))

	client, err := NewClient(nil, sender,
		WithDeadLetters(store),
		WithTransportConfig(transport.Config{}),
	)
	require.NoError(t, err)
	assert.Same(t, store, client.DeadLetters())

	client.CaptureMessage("lost")
	require.NoError(t, client.Close(time.Second))

	assert.True(t, store.closed)
	assert.Equal(t, 1, store.savedAtClose)
}

func TestClient_CaptureSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	client, _ := newTestClient(t, WithTracing(observability.NewSpanManager()))
	client.CaptureMessage("traced")
	require.NoError(t, client.Close(time.Second))

	var names []string
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "raven.capture")
	assert.Contains(t, names, "raven.send")
}

type closeTrackingStore struct {
	*deadletter.MemoryStore
	closed       bool
	savedAtClose int
}

func (s *closeTrackingStore) Close() error {
	s.closed = true
	s.savedAtClose, _ = s.MemoryStore.Count(context.Background())
	return s.MemoryStore.Close()
}
