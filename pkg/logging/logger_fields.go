package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Graph-specific helpers

func Component(name string) Field {
	return String("component", name)
}

func VertexID(id uint64) Field {
	return Uint64("vertex_id", id)
}

func EdgeID(id uint64) Field {
	return Uint64("edge_id", id)
}

func Label(label string) Field {
	return String("label", label)
}

// TxID identifies a transaction by its trace identifier
func TxID(id string) Field {
	return String("tx_id", id)
}

// Seq is the commit sequence number of a published version
func Seq(seq uint64) Field {
	return Uint64("seq", seq)
}

func Index(name string) Field {
	return String("index", name)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
