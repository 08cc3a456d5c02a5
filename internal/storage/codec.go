package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world/block"
	"github.com/klauspost/compress/zstd"
)

// ErrCorruptColumn возвращается при разборе повреждённой записи колонки
var ErrCorruptColumn = errors.New("corrupt column record")

// columnFormat - версия бинарного формата колонки
const columnFormat = 1

// BlockRecord - блок колонки для записи на диск
type BlockRecord struct {
	Pos  vec.Vec3
	Type block.Type
}

// ColumnCodec кодирует колонку 16×16 в компактную запись:
// [format][count] затем на блок [lx][lz][y varint][type], всё под zstd.
// Зависимость состояний нет, поэтому EncodeAll/DecodeAll можно звать параллельно.
type ColumnCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewColumnCodec() (*ColumnCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &ColumnCodec{enc: enc, dec: dec}, nil
}

// Encode сериализует блоки колонки key. Блоки из других колонок - ошибка.
func (c *ColumnCodec) Encode(key vec.Vec2, blocks []BlockRecord) ([]byte, error) {
	sorted := append([]BlockRecord(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pos.Less(sorted[j].Pos) })

	raw := make([]byte, 0, 2+5*len(sorted))
	raw = append(raw, columnFormat)
	raw = binary.AppendUvarint(raw, uint64(len(sorted)))
	for _, b := range sorted {
		if b.Pos.Column() != key {
			return nil, fmt.Errorf("блок %v вне колонки %v", b.Pos, key)
		}
		if !b.Type.Valid() {
			return nil, fmt.Errorf("%w: %d в %v", block.ErrUnknownBlock, uint8(b.Type), b.Pos)
		}
		raw = append(raw, byte(b.Pos.X-key.X*vec.ChunkSize), byte(b.Pos.Z-key.Y*vec.ChunkSize))
		raw = binary.AppendVarint(raw, int64(b.Pos.Y))
		raw = append(raw, byte(b.Type))
	}
	return c.enc.EncodeAll(raw, nil), nil
}

// Decode восстанавливает блоки колонки key
func (c *ColumnCodec) Decode(key vec.Vec2, data []byte) ([]BlockRecord, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptColumn, err)
	}
	if len(raw) == 0 || raw[0] != columnFormat {
		return nil, fmt.Errorf("%w: unknown format", ErrCorruptColumn)
	}
	raw = raw[1:]

	n, k := binary.Uvarint(raw)
	if k <= 0 || n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: bad count", ErrCorruptColumn)
	}
	raw = raw[k:]

	out := make([]BlockRecord, 0, n)
	for i := uint64(0); i < n; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("%w: truncated at block %d", ErrCorruptColumn, i)
		}
		lx, lz := int(raw[0]), int(raw[1])
		y, k := binary.Varint(raw[2:])
		if k <= 0 || len(raw) < 2+k+1 {
			return nil, fmt.Errorf("%w: bad y at block %d", ErrCorruptColumn, i)
		}
		t := block.Type(raw[2+k])
		raw = raw[2+k+1:]

		if lx >= vec.ChunkSize || lz >= vec.ChunkSize || !t.Valid() {
			return nil, fmt.Errorf("%w: bad block %d", ErrCorruptColumn, i)
		}
		out = append(out, BlockRecord{
			Pos:  vec.Vec3{X: key.X*vec.ChunkSize + lx, Y: int(y), Z: key.Y*vec.ChunkSize + lz},
			Type: t,
		})
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorruptColumn, len(raw))
	}
	return out, nil
}

// ColumnKey возвращает ключ записи колонки: column:<x>:<z>
func ColumnKey(key vec.Vec2) string {
	return fmt.Sprintf("%s%d:%d", columnPrefix, key.X, key.Y)
}

// ParseColumnKey разбирает ключ записи колонки
func ParseColumnKey(s string) (vec.Vec2, error) {
	var key vec.Vec2
	if _, err := fmt.Sscanf(s, columnPrefix+"%d:%d", &key.X, &key.Y); err != nil {
		return key, fmt.Errorf("ключ колонки %q: %w", s, err)
	}
	return key, nil
}
