package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUnavailable = errors.New("bus unavailable")

// flakyBus отказывает в первых failures публикациях
type flakyBus struct {
	eventbus.EventBus
	failures atomic.Int32
}

func (b *flakyBus) Publish(ctx context.Context, ev *eventbus.Envelope) error {
	if b.failures.Add(-1) >= 0 {
		return errUnavailable
	}
	return b.EventBus.Publish(ctx, ev)
}

// flakyEncoder не может закодировать первые failures пакетов
type flakyEncoder struct {
	DeltaEncoder
	failures atomic.Int32
}

func (e *flakyEncoder) Encode(b Batch) ([]byte, error) {
	if e.failures.Add(-1) >= 0 {
		return nil, errors.New("encoder broken")
	}
	return e.DeltaEncoder.Encode(b)
}

func TestBatchManager_FailedPublishIsRetried(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	flaky := &flakyBus{EventBus: bus}
	flaky.failures.Store(1)

	mirror := NewRenderMirror(nil, 0)
	consumer, err := NewSyncConsumer(bus, mirror, nil)
	require.NoError(t, err)
	defer consumer.Stop()

	bm := NewBatchManager(flaky, "test", 100, time.Hour, nil, nil)
	defer bm.Stop()

	bm.Add(world.Delta{Entered: []vec.Vec3{{X: 0}}}, 1)
	require.ErrorIs(t, bm.flush(), errUnavailable)
	assert.Equal(t, 1, bm.Pending(), "неотправленный пакет остаётся в буфере")

	bm.Add(world.Delta{Entered: []vec.Vec3{{X: 5}}}, 2)
	require.NoError(t, bm.flush())

	require.Eventually(t, func() bool { return mirror.Version() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []vec.Vec3{{X: 0}, {X: 5}}, mirror.Exposed())
	assert.Zero(t, mirror.Gaps())
	assert.Equal(t, uint64(1), mirror.Batches())
}

func TestBatchManager_RestoredBatchMergesWithLaterChanges(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	defer bus.Close()
	batches, sub := collectBatches(t, bus)
	defer sub.Unsubscribe()

	enc := &flakyEncoder{DeltaEncoder: NewPassthroughEncoder()}
	enc.failures.Store(1)
	bm := NewBatchManager(bus, "test", 100, time.Hour, enc, nil)

	p, q := vec.Vec3{Y: 1}, vec.Vec3{Y: 2}
	bm.Add(world.Delta{Entered: []vec.Vec3{p, q}}, 4)
	bm.Add(world.Delta{}, 5)
	require.Error(t, bm.flush())

	// Позиция p уходит уже после неудачи: чистая дельта её не содержит
	bm.Add(world.Delta{Left: []vec.Vec3{p}}, 6)
	bm.Stop()

	select {
	case b := <-batches:
		assert.Equal(t, uint64(4), b.FromVersion)
		assert.Equal(t, uint64(6), b.ToVersion)
		assert.Equal(t, 3, b.Changes)
		assert.Equal(t, []vec.Vec3{q}, b.Delta.Entered)
		assert.Empty(t, b.Delta.Left)
	case <-time.After(time.Second):
		t.Fatal("пакет не пришёл после восстановления")
	}
	assert.Zero(t, bm.Pending())
}
