package storage

import (
	"context"
	"testing"

	"github.com/annel0/voxel-world/internal/cache"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T, c cache.CacheRepo) *WorldStorage {
	t.Helper()
	ws, err := NewWorldStorage(Options{Path: t.TempDir(), Cache: c})
	require.NoError(t, err, "не удалось создать хранилище")
	t.Cleanup(func() { ws.Close() })
	return ws
}

func demoMap() *world.VoxelMap {
	m := world.NewVoxelMap()
	world.Populate(m, world.Compose(
		world.FlatGenerator{HalfExtent: 20},
		world.HillsGenerator{HalfExtent: 20, Count: 5, Seed: 3},
	))
	m.Add(vec.Vec3{X: -17, Y: 9, Z: 33}, block.Brick)
	return m
}

func TestColumnCodec_RoundTrip(t *testing.T) {
	codec, err := NewColumnCodec()
	require.NoError(t, err)

	key := vec.Vec2{X: -1, Y: 2}
	in := []BlockRecord{
		{Pos: vec.Vec3{X: -1, Y: -300, Z: 47}, Type: block.Bedrock},
		{Pos: vec.Vec3{X: -16, Y: 5, Z: 32}, Type: block.Water},
	}
	data, err := codec.Encode(key, in)
	require.NoError(t, err)

	out, err := codec.Decode(key, data)
	require.NoError(t, err)
	assert.ElementsMatch(t, in, out)

	_, err = codec.Encode(key, []BlockRecord{{Pos: vec.Vec3{}, Type: block.Stone}})
	assert.Error(t, err, "блок из другой колонки")

	_, err = codec.Decode(key, []byte("garbage"))
	assert.ErrorIs(t, err, ErrCorruptColumn)
}

func TestColumnKey(t *testing.T) {
	key := vec.Vec2{X: -3, Y: 12}
	assert.Equal(t, "column:-3:12", ColumnKey(key))

	parsed, err := ParseColumnKey(ColumnKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	_, err = ParseColumnKey("chunk:1:2")
	assert.Error(t, err)
}

// Сохранение и загрузка сохраняют блоки и открытое множество
func TestSaveSnapshotAndLoad(t *testing.T) {
	ws := setupTestStorage(t, nil)
	ctx := context.Background()

	m := demoMap()
	snap := world.NewSnapshot(m, 42)
	n, err := ws.SaveSnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, snap.ColumnCount(), n)

	loaded := world.NewVoxelMap()
	st, err := ws.LoadInto(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), st.Version)
	assert.Equal(t, m.Len(), st.Blocks)
	assert.Equal(t, snap.ColumnCount(), st.Columns)

	assert.Equal(t, m.Len(), loaded.Len())
	assert.Equal(t, m.Exposed(), loaded.Exposed())
	m.ForEach(func(p vec.Vec3, bt block.Type) bool {
		got, ok := loaded.Block(p)
		assert.True(t, ok)
		assert.Equal(t, bt, got)
		return true
	})
	assert.NoError(t, loaded.Verify())
}

func TestSaveSnapshot_RemovesStaleColumns(t *testing.T) {
	ws := setupTestStorage(t, nil)
	ctx := context.Background()

	far := vec.Vec3{X: 100, Y: 0, Z: 100}
	m := world.NewVoxelMap()
	m.Add(vec.Vec3{}, block.Stone)
	m.Add(far, block.Sand)
	_, err := ws.SaveSnapshot(ctx, world.NewSnapshot(m, 1))
	require.NoError(t, err)

	m.Remove(far)
	_, err = ws.SaveSnapshot(ctx, world.NewSnapshot(m, 2))
	require.NoError(t, err)

	blocks, err := ws.LoadColumn(ctx, far.Column())
	require.NoError(t, err)
	assert.Empty(t, blocks)

	loaded := world.NewVoxelMap()
	st, err := ws.LoadInto(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Columns)
	assert.Equal(t, uint64(2), st.Version)
}

func TestLoadColumn_ThroughCache(t *testing.T) {
	mc := cache.NewMemoryCache()
	ws := setupTestStorage(t, mc)
	ctx := context.Background()

	m := world.NewVoxelMap()
	p := vec.Vec3{X: 3, Y: 1, Z: -4}
	m.Add(p, block.Wood)
	snap := world.NewSnapshot(m, 1)
	require.NoError(t, ws.SaveColumns(ctx, snap, []vec.Vec2{p.Column()}))

	ok, err := mc.Exists(ctx, ColumnKey(p.Column()))
	require.NoError(t, err)
	assert.True(t, ok, "запись прогрета в кеше")

	blocks, err := ws.LoadColumn(ctx, p.Column())
	require.NoError(t, err)
	assert.Equal(t, []BlockRecord{{Pos: p, Type: block.Wood}}, blocks)
	assert.Equal(t, int64(1), mc.GetMetrics().CacheHits)

	// После вытеснения из кеша запись читается с диска и снова кешируется
	require.NoError(t, mc.Delete(ctx, ColumnKey(p.Column())))
	blocks, err = ws.LoadColumn(ctx, p.Column())
	require.NoError(t, err)
	assert.Len(t, blocks, 1)
	ok, _ = mc.Exists(ctx, ColumnKey(p.Column()))
	assert.True(t, ok)

	m.Remove(p)
	require.NoError(t, ws.SaveColumns(ctx, world.NewSnapshot(m, 2), []vec.Vec2{p.Column()}))
	ok, _ = mc.Exists(ctx, ColumnKey(p.Column()))
	assert.False(t, ok, "удалённая колонка вычищена из кеша")
}

func TestClosedStorage(t *testing.T) {
	ws, err := NewWorldStorage(Options{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close())

	_, err = ws.LoadInto(context.Background(), world.NewVoxelMap())
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = ws.SaveSnapshot(context.Background(), world.NewSnapshot(world.NewVoxelMap(), 0))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSaver_FlushesDirtyColumns(t *testing.T) {
	ws := setupTestStorage(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var saver *Saver
	w := world.NewWorld(nil, world.Options{Sinks: []world.DeltaSink{world.SinkFunc(func(ch world.Change) {
		saver.OnChange(ch)
	})}})
	saver = NewSaver(ws, w.Snapshot, 0, nil)
	go w.Run(ctx)

	_, err := w.Populate(ctx, world.FlatGenerator{HalfExtent: 3})
	require.NoError(t, err)
	require.NoError(t, saver.Flush(ctx))

	p := vec.Vec3{X: 40, Y: 0, Z: 0}
	_, err = w.Add(ctx, p, block.Snow)
	require.NoError(t, err)
	_, err = w.Add(ctx, p, block.Stone)
	require.NoError(t, err)
	assert.Equal(t, 1, saver.Pending())
	require.NoError(t, saver.Flush(ctx))
	assert.Equal(t, 0, saver.Pending())

	loaded := world.NewVoxelMap()
	st, err := ws.LoadInto(ctx, loaded)
	require.NoError(t, err)
	assert.Equal(t, w.Snapshot().Len(), loaded.Len())
	assert.Equal(t, w.Snapshot().Version(), st.Version)
	bt, ok := loaded.Block(p)
	assert.True(t, ok)
	assert.Equal(t, block.Snow, bt)
}

// После перезапуска мир продолжает нумерацию версий с сохранённой
func TestRestart_ContinuesPersistedVersion(t *testing.T) {
	ws := setupTestStorage(t, nil)
	ctx := context.Background()

	m := demoMap()
	_, err := ws.SaveSnapshot(ctx, world.NewSnapshot(m, 42))
	require.NoError(t, err)

	loaded := world.NewVoxelMap()
	st, err := ws.LoadInto(ctx, loaded)
	require.NoError(t, err)
	require.Equal(t, uint64(42), st.Version)

	w := world.NewWorld(loaded, world.Options{StartVersion: st.Version})
	runCtx, cancel := context.WithCancel(ctx)
	go w.Run(runCtx)
	defer func() {
		cancel()
		<-w.Done()
	}()

	assert.Equal(t, uint64(42), w.Snapshot().Version())
	ch, err := w.Add(ctx, vec.Vec3{X: 100, Y: 100, Z: 100}, block.Wood)
	require.NoError(t, err)
	assert.Equal(t, uint64(43), ch.Version)
	assert.Equal(t, uint64(43), w.Snapshot().Version())
}
