package block

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBlock возвращается Parse для неизвестного имени блока
var ErrUnknownBlock = errors.New("unknown block type")

// Type - закрытое перечисление типов блоков.
// Нулевое значение Air означает отсутствие блока и в карте не хранится.
type Type uint8

const (
	Air Type = iota
	Grass
	Dirt
	Stone
	Sand
	Water
	Wood
	Leaves
	Snow
	Bedrock
	Brick

	typeCount // всегда последний
)

// RGB - цвет блока для цветного режима рендера
type RGB struct {
	R float32 `json:"r"`
	G float32 `json:"g"`
	B float32 `json:"b"`
}

// AtlasCell - ячейка текстурного атласа 4x4
type AtlasCell struct {
	Col int `json:"col"`
	Row int `json:"row"`
}

// Info описывает внешний вид блока. Поведения у блоков нет, это просто метка.
type Info struct {
	Name   string    `json:"name"`
	Color  RGB       `json:"color"`
	Top    AtlasCell `json:"top"`
	Bottom AtlasCell `json:"bottom"`
	Side   AtlasCell `json:"side"`
}

var registry = [typeCount]Info{
	Air:     {Name: "air"},
	Grass:   {Name: "grass", Color: RGB{0.2, 0.8, 0.3}, Top: AtlasCell{1, 0}, Bottom: AtlasCell{1, 0}, Side: AtlasCell{1, 0}},
	Dirt:    {Name: "dirt", Color: RGB{0.5, 0.4, 0.2}, Top: AtlasCell{2, 0}, Bottom: AtlasCell{2, 0}, Side: AtlasCell{2, 0}},
	Stone:   {Name: "stone", Color: RGB{0.6, 0.6, 0.6}, Top: AtlasCell{2, 1}, Bottom: AtlasCell{2, 1}, Side: AtlasCell{2, 1}},
	Sand:    {Name: "sand", Color: RGB{0.9, 0.8, 0.5}, Top: AtlasCell{1, 1}, Bottom: AtlasCell{1, 1}, Side: AtlasCell{1, 1}},
	Water:   {Name: "water", Color: RGB{0.2, 0.5, 0.9}, Top: AtlasCell{0, 1}, Bottom: AtlasCell{0, 1}, Side: AtlasCell{0, 1}},
	Wood:    {Name: "wood", Color: RGB{0.6, 0.4, 0.2}, Top: AtlasCell{1, 2}, Bottom: AtlasCell{1, 2}, Side: AtlasCell{1, 2}},
	Leaves:  {Name: "leaves", Color: RGB{0.3, 0.7, 0.3}, Top: AtlasCell{0, 2}, Bottom: AtlasCell{0, 2}, Side: AtlasCell{0, 2}},
	Snow:    {Name: "snow", Color: RGB{0.95, 0.95, 0.95}, Top: AtlasCell{3, 0}, Bottom: AtlasCell{2, 0}, Side: AtlasCell{3, 1}},
	Bedrock: {Name: "bedrock", Color: RGB{0.2, 0.2, 0.2}, Top: AtlasCell{0, 3}, Bottom: AtlasCell{0, 3}, Side: AtlasCell{0, 3}},
	Brick:   {Name: "brick", Color: RGB{0.7, 0.3, 0.25}, Top: AtlasCell{2, 2}, Bottom: AtlasCell{2, 2}, Side: AtlasCell{2, 2}},
}

// Valid возвращает true для настоящих (не Air) типов блоков
func (t Type) Valid() bool {
	return t > Air && t < typeCount
}

// Info возвращает описание блока; для недопустимых значений - описание Air
func (t Type) Info() Info {
	if t >= typeCount {
		return registry[Air]
	}
	return registry[t]
}

// String возвращает имя типа блока
func (t Type) String() string {
	if t >= typeCount {
		return fmt.Sprintf("block(%d)", uint8(t))
	}
	return registry[t].Name
}

// Parse находит тип блока по имени без учёта регистра
func Parse(name string) (Type, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for t := Grass; t < typeCount; t++ {
		if registry[t].Name == n {
			return t, nil
		}
	}
	return Air, fmt.Errorf("%w: %q", ErrUnknownBlock, name)
}

// All возвращает все допустимые типы блоков
func All() []Type {
	out := make([]Type, 0, typeCount-1)
	for t := Grass; t < typeCount; t++ {
		out = append(out, t)
	}
	return out
}

// MarshalText позволяет использовать Type в JSON и YAML по имени
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBlock, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText разбирает имя блока
func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
