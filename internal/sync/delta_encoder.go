package sync

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/annel0/voxel-world/internal/vec"
	"github.com/annel0/voxel-world/internal/world"
	"github.com/klauspost/compress/zstd"
)

// ErrCorruptBatch возвращается при разборе повреждённого пакета
var ErrCorruptBatch = errors.New("corrupt exposure batch")

// Batch - чистое изменение открытого множества за диапазон версий мира
// (FromVersion..ToVersion включительно).
type Batch struct {
	FromVersion uint64
	ToVersion   uint64
	Changes     int // сколько мутаций слито в пакет
	Delta       world.Delta
}

// DeltaEncoder кодирует/декодирует пакеты дельт в компактный вид.
type DeltaEncoder interface {
	Name() string
	Encode(b Batch) ([]byte, error)
	Decode(payload []byte) (Batch, error)
}

// batchFormat - версия бинарного формата
const batchFormat = 1

type passthroughEncoder struct{}

// NewPassthroughEncoder возвращает кодировщик без сжатия: varint-формат как есть
func NewPassthroughEncoder() DeltaEncoder { return passthroughEncoder{} }

func (passthroughEncoder) Name() string { return "raw" }

func (passthroughEncoder) Encode(b Batch) ([]byte, error) {
	// формат: [format][from][to][changes][len(entered)][xyz...][len(left)][xyz...]
	buf := make([]byte, 0, 16+6*b.Delta.Size())
	buf = append(buf, batchFormat)
	buf = binary.AppendUvarint(buf, b.FromVersion)
	buf = binary.AppendUvarint(buf, b.ToVersion)
	buf = binary.AppendUvarint(buf, uint64(b.Changes))
	buf = appendPositions(buf, b.Delta.Entered)
	buf = appendPositions(buf, b.Delta.Left)
	return buf, nil
}

func appendPositions(buf []byte, ps []vec.Vec3) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(ps)))
	for _, p := range ps {
		buf = binary.AppendVarint(buf, int64(p.X))
		buf = binary.AppendVarint(buf, int64(p.Y))
		buf = binary.AppendVarint(buf, int64(p.Z))
	}
	return buf
}

func (passthroughEncoder) Decode(payload []byte) (Batch, error) {
	var b Batch
	if len(payload) == 0 || payload[0] != batchFormat {
		return b, fmt.Errorf("%w: unknown format", ErrCorruptBatch)
	}
	r := reader{buf: payload[1:]}
	b.FromVersion = r.uvarint()
	b.ToVersion = r.uvarint()
	b.Changes = int(r.uvarint())
	b.Delta.Entered = r.positions()
	b.Delta.Left = r.positions()
	if r.err != nil {
		return Batch{}, r.err
	}
	if len(r.buf) != 0 {
		return Batch{}, fmt.Errorf("%w: %d trailing bytes", ErrCorruptBatch, len(r.buf))
	}
	return b, nil
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = fmt.Errorf("%w: bad uvarint", ErrCorruptBatch)
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *reader) varint() int {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = fmt.Errorf("%w: bad varint", ErrCorruptBatch)
		return 0
	}
	r.buf = r.buf[n:]
	return int(v)
}

func (r *reader) positions() []vec.Vec3 {
	n := r.uvarint()
	if r.err != nil || n == 0 {
		return nil
	}
	// каждая позиция занимает минимум 3 байта
	if n > uint64(len(r.buf)/3) {
		r.err = fmt.Errorf("%w: %d positions do not fit", ErrCorruptBatch, n)
		return nil
	}
	ps := make([]vec.Vec3, 0, n)
	for i := uint64(0); i < n && r.err == nil; i++ {
		ps = append(ps, vec.Vec3{X: r.varint(), Y: r.varint(), Z: r.varint()})
	}
	return ps
}

// zstdEncoder применяет zstd поверх бинарного формата
type zstdEncoder struct {
	raw passthroughEncoder
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewZstdEncoder создаёт кодировщик со сжатием zstd.
// EncodeAll/DecodeAll безопасны для параллельного использования.
func NewZstdEncoder() (DeltaEncoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &zstdEncoder{enc: enc, dec: dec}, nil
}

func (z *zstdEncoder) Name() string { return "zstd" }

func (z *zstdEncoder) Encode(b Batch) ([]byte, error) {
	raw, err := z.raw.Encode(b)
	if err != nil {
		return nil, err
	}
	return z.enc.EncodeAll(raw, nil), nil
}

func (z *zstdEncoder) Decode(payload []byte) (Batch, error) {
	raw, err := z.dec.DecodeAll(payload, nil)
	if err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrCorruptBatch, err)
	}
	return z.raw.Decode(raw)
}

// EncoderFor возвращает кодировщик по имени из метаданных конверта
func EncoderFor(name string) (DeltaEncoder, error) {
	switch name {
	case "", "raw":
		return NewPassthroughEncoder(), nil
	case "zstd":
		return NewZstdEncoder()
	default:
		return nil, fmt.Errorf("unknown delta encoding %q", name)
	}
}
