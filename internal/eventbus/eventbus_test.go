package eventbus

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-world/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typeHeartbeat - посторонний тип событий для проверки фильтров
const typeHeartbeat = "Heartbeat"

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) handle(_ context.Context, ev *Envelope) {
	r.mu.Lock()
	r.ids = append(r.ids, string(ev.Payload))
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestNewEnvelope(t *testing.T) {
	ev := NewEnvelope("world", TypeExposureBatch, []byte("x"))
	assert.Len(t, ev.ID, 36)
	assert.Equal(t, "world", ev.Source)
	assert.Equal(t, TypeExposureBatch, ev.EventType)
	assert.Equal(t, 1, ev.Version)
	assert.NotEqual(t, ev.ID, NewEnvelope("world", TypeExposureBatch, nil).ID)
}

func TestMemoryBus_OrderedDeliveryWithFilter(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()
	ctx := context.Background()

	all, batches := &recorder{}, &recorder{}
	_, err := bus.Subscribe(ctx, Filter{}, all.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, Filter{Types: []string{TypeExposureBatch}}, batches.handle)
	require.NoError(t, err)

	var want, wantBatches []string
	for i := 0; i < 100; i++ {
		typ := typeHeartbeat
		if i%2 == 0 {
			typ = TypeExposureBatch
		}
		payload := string(rune('A' + i%26))
		payload += strings.Repeat("!", i/26)
		ev := NewEnvelope("test", typ, []byte(payload))
		ev.Priority = 9
		require.NoError(t, bus.Publish(ctx, ev))
		want = append(want, payload)
		if typ == TypeExposureBatch {
			wantBatches = append(wantBatches, payload)
		}
	}

	require.Eventually(t, func() bool { return len(all.got()) == 100 && len(batches.got()) == 50 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, all.got())
	assert.Equal(t, wantBatches, batches.got())

	stats := bus.Metrics()
	assert.Equal(t, uint64(100), stats.Published)
	assert.Equal(t, uint64(150), stats.Consumed)
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()
	ctx := context.Background()

	block := make(chan struct{})
	_, err := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { <-block })
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(ctx, NewEnvelope("test", typeHeartbeat, nil)))
	}
	assert.Greater(t, bus.Metrics().Dropped, uint64(0))
	close(block)
}

func TestMemoryBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(4)
	ctx := context.Background()

	rec := &recorder{}
	sub, err := bus.Subscribe(ctx, Filter{}, rec.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	ev := NewEnvelope("test", typeHeartbeat, []byte("late"))
	ev.Priority = 9
	require.NoError(t, bus.Publish(ctx, ev))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, rec.got())

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ctx, ev), ErrClosed)
	_, err = bus.Subscribe(ctx, Filter{}, rec.handle)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLoggingListener(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()

	var buf bytes.Buffer
	var mu sync.Mutex
	log := logging.NewWriterLogger("bus", &lockedWriter{w: &buf, mu: &mu}, logging.DEBUG)

	sub, err := StartLoggingListener(bus, log)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev := NewEnvelope("world", TypeExposureBatch, []byte("abc"))
	ev.Priority = 9
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), ev.ID)
	}, time.Second, 5*time.Millisecond)
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(4)
	defer bus.Close()
	reg := prometheus.NewRegistry()

	me, err := NewMetricsExporter(bus, reg, time.Hour)
	require.NoError(t, err)

	ev := NewEnvelope("test", typeHeartbeat, nil)
	ev.Priority = 9
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	me.Collect()
	me.Collect()
	assert.Equal(t, 2.0, testutil.ToFloat64(me.published))

	_, err = NewMetricsExporter(bus, reg, time.Hour)
	assert.Error(t, err, "повторная регистрация")
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
