package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueType represents the type of a property value
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeBytes
	TypeTimestamp
)

// String returns the schema name of the type
func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeTimestamp:
		return "timestamp"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseValueType converts a schema name back into a ValueType
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "int":
		return TypeInt, nil
	case "float":
		return TypeFloat, nil
	case "bool":
		return TypeBool, nil
	case "bytes":
		return TypeBytes, nil
	case "timestamp":
		return TypeTimestamp, nil
	}
	return 0, fmt.Errorf("unknown value type %q", s)
}

// MarshalText encodes the type by name in JSON, YAML and TOML
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ValueType) UnmarshalText(text []byte) error {
	parsed, err := ParseValueType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value represents a typed property value
type Value struct {
	Type ValueType `json:"type"`
	Data []byte    `json:"data"`
}

// Clone returns a Value that shares no bytes with v
func (v Value) Clone() Value {
	return Value{Type: v.Type, Data: bytes.Clone(v.Data)}
}

func StringValue(s string) Value {
	return Value{Type: TypeString, Data: []byte(s)}
}

func IntValue(i int64) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(i))
	return Value{Type: TypeInt, Data: data}
}

func FloatValue(f float64) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, math.Float64bits(f))
	return Value{Type: TypeFloat, Data: data}
}

func BoolValue(b bool) Value {
	data := []byte{0}
	if b {
		data[0] = 1
	}
	return Value{Type: TypeBool, Data: data}
}

func BytesValue(b []byte) Value {
	data := make([]byte, len(b))
	copy(data, b)
	return Value{Type: TypeBytes, Data: data}
}

// TimestampValue stores t with nanosecond precision
func TimestampValue(t time.Time) Value {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, uint64(t.UnixNano()))
	return Value{Type: TypeTimestamp, Data: data}
}

// IDValue encodes an element identifier, as used by the edge endpoint pseudo properties
func IDValue(id uint64) Value {
	return IntValue(int64(id))
}

// ValueOf converts a Go scalar into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case Value:
		return x, nil
	case string:
		return StringValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case int32:
		return IntValue(int64(x)), nil
	case int64:
		return IntValue(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, fmt.Errorf("%w: %d overflows int", ErrTypeMismatch, x)
		}
		return IntValue(int64(x)), nil
	case float32:
		return FloatValue(float64(x)), nil
	case float64:
		return FloatValue(x), nil
	case bool:
		return BoolValue(x), nil
	case []byte:
		return BytesValue(x), nil
	case time.Time:
		return TimestampValue(x), nil
	}
	return Value{}, fmt.Errorf("%w: unsupported Go type %T", ErrTypeMismatch, v)
}

func (v Value) AsString() (string, error) {
	if v.Type != TypeString {
		return "", fmt.Errorf("%w: value is %s, not a string", ErrTypeMismatch, v.Type)
	}
	return string(v.Data), nil
}

func (v Value) AsInt() (int64, error) {
	if v.Type != TypeInt || len(v.Data) != 8 {
		return 0, fmt.Errorf("%w: value is %s, not an int", ErrTypeMismatch, v.Type)
	}
	return int64(binary.LittleEndian.Uint64(v.Data)), nil
}

func (v Value) AsFloat() (float64, error) {
	if v.Type != TypeFloat || len(v.Data) != 8 {
		return 0, fmt.Errorf("%w: value is %s, not a float", ErrTypeMismatch, v.Type)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(v.Data)), nil
}

func (v Value) AsBool() (bool, error) {
	if v.Type != TypeBool || len(v.Data) != 1 {
		return false, fmt.Errorf("%w: value is %s, not a bool", ErrTypeMismatch, v.Type)
	}
	return v.Data[0] == 1, nil
}

func (v Value) AsBytes() ([]byte, error) {
	if v.Type != TypeBytes {
		return nil, fmt.Errorf("%w: value is %s, not bytes", ErrTypeMismatch, v.Type)
	}
	out := make([]byte, len(v.Data))
	copy(out, v.Data)
	return out, nil
}

func (v Value) AsTimestamp() (time.Time, error) {
	if v.Type != TypeTimestamp || len(v.Data) != 8 {
		return time.Time{}, fmt.Errorf("%w: value is %s, not a timestamp", ErrTypeMismatch, v.Type)
	}
	return time.Unix(0, int64(binary.LittleEndian.Uint64(v.Data))), nil
}

// Equal reports whether two values have the same type and encoding
func (v Value) Equal(other Value) bool {
	return v.Type == other.Type && bytes.Equal(v.Data, other.Data)
}

// String renders the value for logs and error messages
func (v Value) String() string {
	switch v.Type {
	case TypeString:
		return strconv.Quote(string(v.Data))
	case TypeInt:
		i, _ := v.AsInt()
		return strconv.FormatInt(i, 10)
	case TypeFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case TypeBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case TypeTimestamp:
		ts, _ := v.AsTimestamp()
		return ts.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("0x%x", v.Data)
	}
}

// Pseudo properties resolved on edges. They make edge endpoints indexable.
const (
	EdgeOutKey = "@out"
	EdgeInKey  = "@in"
)

// ElementKind distinguishes vertices from edges
type ElementKind uint8

const (
	KindVertex ElementKind = iota
	KindEdge
)

func (k ElementKind) String() string {
	if k == KindEdge {
		return "edge"
	}
	return "vertex"
}

func (k ElementKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ElementKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "vertex", "":
		*k = KindVertex
	case "edge":
		*k = KindEdge
	default:
		return fmt.Errorf("unknown element kind %q", text)
	}
	return nil
}

// Element is the part of a vertex or edge that indexes and framing need
type Element interface {
	ElementID() uint64
	ElementKind() ElementKind
	ElementLabel() string
	// Property resolves a property, including edge pseudo properties
	Property(key string) (Value, bool)
}

// Vertex is a labeled node of the graph
type Vertex struct {
	ID         uint64
	Label      string
	Properties map[string]Value
	// Version is the commit sequence number that last wrote the vertex
	Version   uint64
	CreatedAt int64
	UpdatedAt int64
}

// Edge is a directed, labeled relationship between two vertices
type Edge struct {
	ID         uint64
	Label      string
	FromID     uint64
	ToID       uint64
	Properties map[string]Value
	Version    uint64
	CreatedAt  int64
	UpdatedAt  int64
}

// Clone creates a deep copy of a vertex
func (v *Vertex) Clone() *Vertex {
	clone := *v
	clone.Properties = cloneProperties(v.Properties)
	return &clone
}

func (v *Vertex) ElementID() uint64        { return v.ID }
func (v *Vertex) ElementKind() ElementKind { return KindVertex }
func (v *Vertex) ElementLabel() string     { return v.Label }

func (v *Vertex) Property(key string) (Value, bool) {
	val, ok := v.Properties[key]
	return val, ok
}

// Clone creates a deep copy of an edge
func (e *Edge) Clone() *Edge {
	clone := *e
	clone.Properties = cloneProperties(e.Properties)
	return &clone
}

func (e *Edge) ElementID() uint64        { return e.ID }
func (e *Edge) ElementKind() ElementKind { return KindEdge }
func (e *Edge) ElementLabel() string     { return e.Label }

func (e *Edge) Property(key string) (Value, bool) {
	switch key {
	case EdgeOutKey:
		return IDValue(e.FromID), true
	case EdgeInKey:
		return IDValue(e.ToID), true
	}
	val, ok := e.Properties[key]
	return val, ok
}

// Other returns the endpoint opposite to vertexID
func (e *Edge) Other(vertexID uint64) uint64 {
	if e.FromID == vertexID {
		return e.ToID
	}
	return e.FromID
}

func cloneProperties(props map[string]Value) map[string]Value {
	out := make(map[string]Value, len(props))
	for k, v := range props {
		out[k] = v.Clone()
	}
	return out
}
