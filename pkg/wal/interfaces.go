package wal

// WALAppender is the interface for appending entries to a WAL.
type WALAppender interface {
	// Append appends a new entry to the WAL.
	// Returns the LSN (Log Sequence Number) assigned to the entry.
	Append(opType OpType, data []byte) (uint64, error)
}

// WALReader is the interface for reading entries from a WAL.
type WALReader interface {
	// Replay iterates through all WAL entries in LSN order and calls the
	// handler for each. Used for recovery after restart.
	Replay(handler func(*Entry) error) error
}

// WALManager is the interface for WAL lifecycle management.
type WALManager interface {
	// Truncate removes all entries from the WAL.
	// Called after a successful checkpoint.
	Truncate() error

	// Close flushes any buffered data and closes the WAL.
	Close() error

	// GetCurrentLSN returns the current Log Sequence Number.
	GetCurrentLSN() uint64
}

// WriteAheadLog is the journal the transaction manager appends committed
// work to. Log and kvlog.Log implement it.
type WriteAheadLog interface {
	WALAppender
	WALReader
	WALManager
}

var _ WriteAheadLog = (*Log)(nil)
