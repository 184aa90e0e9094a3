// Package kvlog is a write-ahead log stored in BadgerDB. Entries live under
// wal/<big-endian LSN> so key order is replay order.
package kvlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

var entryPrefix = []byte("wal/")

// Options configure the badger journal
type Options struct {
	// Dir is the badger directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	// SyncWrites fsyncs every append
	SyncWrites bool
	Logger     logging.Logger
}

// Log implements wal.WriteAheadLog over a badger database
type Log struct {
	db         *badger.DB
	currentLSN uint64
	logger     logging.Logger
	mu         sync.Mutex
}

var _ wal.WriteAheadLog = (*Log)(nil)

// Open opens the badger directory and recovers the current LSN
func Open(opts Options) (*Log, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("kvlog: directory required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With(logging.Component("kvlog"))

	bopts := badger.DefaultOptions(opts.Dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{logger})
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger journal: %w", err)
	}

	l := &Log{db: db, logger: logger}
	if err := l.recoverLSN(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to recover LSN: %w", err)
	}
	return l, nil
}

func entryKey(lsn uint64) []byte {
	key := make([]byte, len(entryPrefix)+8)
	copy(key, entryPrefix)
	binary.BigEndian.PutUint64(key[len(entryPrefix):], lsn)
	return key
}

// value layout: [OpType:1][Timestamp:8][Data:N]
func encodeValue(op wal.OpType, ts int64, data []byte) []byte {
	v := make([]byte, 9+len(data))
	v[0] = byte(op)
	binary.BigEndian.PutUint64(v[1:9], uint64(ts))
	copy(v[9:], data)
	return v
}

func decodeValue(lsn uint64, v []byte) (*wal.Entry, error) {
	if len(v) < 9 {
		return nil, fmt.Errorf("journal entry LSN=%d is %d bytes", lsn, len(v))
	}
	data := make([]byte, len(v)-9)
	copy(data, v[9:])
	return &wal.Entry{
		LSN:       lsn,
		OpType:    wal.OpType(v[0]),
		Timestamp: int64(binary.BigEndian.Uint64(v[1:9])),
		Data:      data,
	}, nil
}

func (l *Log) recoverLSN() error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // key only
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks to the largest key <= the seek key
		it.Seek(entryKey(^uint64(0)))
		if it.ValidForPrefix(entryPrefix) {
			l.currentLSN = binary.BigEndian.Uint64(it.Item().Key()[len(entryPrefix):])
		}
		return nil
	})
}

// Append stores one entry
func (l *Log) Append(opType wal.OpType, data []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lsn := l.currentLSN + 1
	err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(lsn), encodeValue(opType, time.Now().UnixNano(), data))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append journal entry: %w", err)
	}
	l.currentLSN = lsn
	return lsn, nil
}

// Replay visits entries in LSN order
func (l *Log) Replay(handler func(*wal.Entry) error) error {
	return l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(entryPrefix); it.ValidForPrefix(entryPrefix); it.Next() {
			item := it.Item()
			lsn := binary.BigEndian.Uint64(item.Key()[len(entryPrefix):])
			var entry *wal.Entry
			err := item.Value(func(v []byte) error {
				var err error
				entry, err = decodeValue(lsn, v)
				return err
			})
			if err != nil {
				return err
			}
			if err := handler(entry); err != nil {
				return fmt.Errorf("failed to replay entry LSN=%d: %w", lsn, err)
			}
		}
		return nil
	})
}

// Truncate drops every entry. LSNs restart at 1.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.db.DropPrefix(entryPrefix); err != nil {
		return fmt.Errorf("failed to truncate journal: %w", err)
	}
	l.currentLSN = 0
	return nil
}

// GetCurrentLSN returns the LSN of the last appended entry
func (l *Log) GetCurrentLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLSN
}

// Close closes the badger database
func (l *Log) Close() error {
	return l.db.Close()
}

// badgerLogger routes badger's own messages into the structured logger.
// Badger is chatty at info level, so info goes to debug.
type badgerLogger struct {
	logger logging.Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(fmt.Sprintf(format, args...))
}
