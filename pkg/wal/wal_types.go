package wal

import "strconv"

// OpType represents the type of operation in the WAL
type OpType uint8

const (
	// OpCommit carries the mutation set of one committed transaction
	OpCommit OpType = iota + 1
	OpCreateIndex
	OpDropIndex
	OpDeclareProperty
)

func (o OpType) String() string {
	switch o {
	case OpCommit:
		return "commit"
	case OpCreateIndex:
		return "create_index"
	case OpDropIndex:
		return "drop_index"
	case OpDeclareProperty:
		return "declare_property"
	default:
		return "op(" + strconv.Itoa(int(o)) + ")"
	}
}

// Entry represents a single WAL entry
type Entry struct {
	LSN       uint64 // Log Sequence Number
	OpType    OpType
	Data      []byte
	Checksum  uint32
	Timestamp int64
}

// Stats counts appended payload bytes before and after encoding
type Stats struct {
	Appends      uint64
	BytesLogical uint64
	BytesWritten uint64
}

// Ratio is written/logical, 1.0 without compression
func (s Stats) Ratio() float64 {
	if s.BytesLogical == 0 {
		return 1
	}
	return float64(s.BytesWritten) / float64(s.BytesLogical)
}
