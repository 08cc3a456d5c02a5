package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-world/internal/cache"
	"github.com/annel0/voxel-world/internal/logging"
	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/dgraph-io/badger/v3"
)

const (
	columnPrefix = "column:"
	versionKey   = "meta:version"
)

// ErrNotReady возвращается после закрытия хранилища
var ErrNotReady = errors.New("хранилище не готово")

// Options настраивает WorldStorage
type Options struct {
	// Path каталог BadgerDB; игнорируется при InMemory
	Path     string
	InMemory bool
	// Cache необязательный кеш записей колонок
	Cache    cache.CacheRepo
	CacheTTL time.Duration
	Logger   *logging.Logger
}

// WorldStorage представляет собой хранилище данных мира.
// Карта хранится по одной записи на колонку 16×16 (ключ column:<x>:<z>).
type WorldStorage struct {
	db       *badger.DB
	dbPath   string
	mutex    sync.RWMutex
	isReady  bool
	codec    *ColumnCodec
	cache    cache.CacheRepo
	cacheTTL time.Duration
	log      *logging.Logger
}

// LoadStats итог загрузки мира с диска
type LoadStats struct {
	Columns int
	Blocks  int
	Version uint64
}

// NewWorldStorage создает новое хранилище мира
func NewWorldStorage(opts Options) (*WorldStorage, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	codec, err := NewColumnCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	return &WorldStorage{
		db:       db,
		dbPath:   opts.Path,
		isReady:  true,
		codec:    codec,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      opts.Logger,
	}, nil
}

// Close закрывает хранилище данных
func (ws *WorldStorage) Close() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.isReady {
		return nil
	}

	ws.isReady = false
	return ws.db.Close()
}

// SaveSnapshot полностью записывает снапшот: все его колонки плюс удаление
// записей колонок, которых в снапшоте больше нет. Возвращает число записанных колонок.
func (ws *WorldStorage) SaveSnapshot(ctx context.Context, snap *world.Snapshot) (int, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return 0, ErrNotReady
	}

	present := snap.Columns()
	stale, err := ws.staleColumns(present)
	if err != nil {
		return 0, err
	}
	if err := ws.writeColumns(ctx, snap, append(present, stale...)); err != nil {
		return 0, err
	}
	return len(present), nil
}

// SaveColumns записывает только перечисленные колонки снапшота;
// пустая колонка удаляется с диска.
func (ws *WorldStorage) SaveColumns(ctx context.Context, snap *world.Snapshot, keys []vec.Vec2) error {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return ErrNotReady
	}
	return ws.writeColumns(ctx, snap, keys)
}

// staleColumns возвращает колонки на диске, которых нет в present
func (ws *WorldStorage) staleColumns(present []vec.Vec2) ([]vec.Vec2, error) {
	keep := make(map[vec.Vec2]struct{}, len(present))
	for _, k := range present {
		keep[k] = struct{}{}
	}

	var stale []vec.Vec2
	err := ws.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: []byte(columnPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key, err := ParseColumnKey(string(it.Item().Key()))
			if err != nil {
				ws.log.Warn("Пропускаем неизвестный ключ: %v", err)
				continue
			}
			if _, ok := keep[key]; !ok {
				stale = append(stale, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения ключей из BadgerDB: %w", err)
	}
	return stale, nil
}

func (ws *WorldStorage) writeColumns(ctx context.Context, snap *world.Snapshot, keys []vec.Vec2) error {
	wb := ws.db.NewWriteBatch()
	defer wb.Cancel()

	cached := make(map[string][]byte, len(keys))
	var removed []string
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		var blocks []BlockRecord
		snap.ColumnBlocks(key, func(pos vec.Vec3, t block.Type) {
			blocks = append(blocks, BlockRecord{Pos: pos, Type: t})
		})

		name := ColumnKey(key)
		if len(blocks) == 0 {
			if err := wb.Delete([]byte(name)); err != nil {
				return fmt.Errorf("ошибка удаления %s: %w", name, err)
			}
			removed = append(removed, name)
			continue
		}

		data, err := ws.codec.Encode(key, blocks)
		if err != nil {
			return fmt.Errorf("ошибка сериализации %s: %w", name, err)
		}
		if err := wb.Set([]byte(name), data); err != nil {
			return fmt.Errorf("ошибка сохранения %s: %w", name, err)
		}
		cached[name] = data
	}

	version := binary.BigEndian.AppendUint64(nil, snap.Version())
	if err := wb.Set([]byte(versionKey), version); err != nil {
		return fmt.Errorf("ошибка сохранения версии: %w", err)
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	// Кеш обновляется после диска; ошибка кеша не делает запись неудачной
	if ws.cache != nil {
		if err := ws.cache.Delete(ctx, removed...); err != nil {
			ws.log.Warn("Кеш: не удалось удалить %d колонок: %v", len(removed), err)
		}
		if err := ws.cache.BatchSet(ctx, cached, ws.cacheTTL); err != nil {
			ws.log.Warn("Кеш: не удалось записать %d колонок: %v", len(cached), err)
		}
	}

	ws.log.Debug("💾 Сохранено колонок: %d, удалено: %d, версия %d", len(cached), len(removed), snap.Version())
	return nil
}

// LoadColumn загружает блоки одной колонки. Сначала смотрит в кеш,
// при промахе читает BadgerDB и прогревает кеш. Отсутствующая колонка - пустой результат.
func (ws *WorldStorage) LoadColumn(ctx context.Context, key vec.Vec2) ([]BlockRecord, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	if !ws.isReady {
		return nil, ErrNotReady
	}

	name := ColumnKey(key)
	if ws.cache != nil {
		data, err := ws.cache.Get(ctx, name)
		if err == nil {
			return ws.codec.Decode(key, data)
		}
		if !cache.IsCacheMiss(err) {
			ws.log.Warn("Кеш: ошибка чтения %s: %v", name, err)
		}
	}

	var data []byte
	err := ws.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}

	blocks, err := ws.codec.Decode(key, data)
	if err != nil {
		return nil, err
	}
	if ws.cache != nil {
		if err := ws.cache.Set(ctx, name, data, ws.cacheTTL); err != nil {
			ws.log.Warn("Кеш: не удалось записать %s: %v", name, err)
		}
	}
	return blocks, nil
}

// LoadInto читает все колонки с диска и добавляет блоки в карту m.
// Уже занятые позиции карты не перезаписываются.
func (ws *WorldStorage) LoadInto(ctx context.Context, m *world.VoxelMap) (LoadStats, error) {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()

	var st LoadStats
	if !ws.isReady {
		return st, ErrNotReady
	}

	err := ws.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get([]byte(versionKey)); err == nil {
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 64, Prefix: []byte(columnPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key, err := ParseColumnKey(string(item.Key()))
			if err != nil {
				return err
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			blocks, err := ws.codec.Decode(key, data)
			if err != nil {
				return fmt.Errorf("колонка %v: %w", key, err)
			}
			for _, b := range blocks {
				m.Add(b.Pos, b.Type)
			}
			st.Columns++
			st.Blocks += len(blocks)
		}
		return nil
	})
	if err != nil {
		return LoadStats{}, fmt.Errorf("ошибка загрузки мира: %w", err)
	}

	ws.log.Info("📦 Загружено колонок: %d, блоков: %d, версия %d", st.Columns, st.Blocks, st.Version)
	return st, nil
}
