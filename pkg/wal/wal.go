package wal

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-framegraph/pkg/logging"
)

const (
	plainFile      = "wal.log"
	compressedFile = "wal_compressed.log"
)

// Options configure a file log
type Options struct {
	// Compress stores payloads snappy-encoded in wal_compressed.log
	Compress bool
	// NoSync skips fsync after each append. Tests only.
	NoSync bool
	Logger logging.Logger
}

// Log is a single-file write-ahead log. Every Append is flushed and synced
// before it returns.
type Log struct {
	path       string
	opts       Options
	file       *os.File
	writer     *bufio.Writer
	size       int64 // end of the last durable entry
	syncFile   func(*os.File) error
	currentLSN uint64
	stats      Stats
	logger     logging.Logger
	mu         sync.Mutex
}

// Open opens or creates the log in dataDir and recovers the current LSN.
// A torn tail left by a crash is cut off.
func Open(dataDir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory: %w", err)
	}

	name := plainFile
	if opts.Compress {
		name = compressedFile
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	w := &Log{
		path:     filepath.Join(dataDir, name),
		opts:     opts,
		syncFile: (*os.File).Sync,
		logger:   logger.With(logging.Component("wal"), logging.Path(filepath.Join(dataDir, name))),
	}

	file, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAL file: %w", err)
	}
	w.file = file

	valid, err := w.scan(nil)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to recover LSN: %w", err)
	}
	if err := file.Truncate(valid); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to cut torn WAL tail: %w", err)
	}
	w.size = valid
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, err
	}
	w.writer = bufio.NewWriter(file)
	return w, nil
}

// Append appends a new entry to the WAL. A failed append is cut from the
// file so recovery never replays it.
func (w *Log) Append(opType OpType, data []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, errors.New("WAL is closed")
	}
	// Check for LSN overflow
	if w.currentLSN == ^uint64(0) {
		return 0, errors.New("WAL LSN space exhausted")
	}

	payload := data
	if w.opts.Compress {
		payload = snappy.Encode(nil, data)
	}

	entry := Entry{
		LSN:       w.currentLSN + 1,
		OpType:    opType,
		Data:      payload,
		Checksum:  crc32.ChecksumIEEE(payload),
		Timestamp: time.Now().UnixNano(),
	}

	if err := writeEntry(w.writer, &entry); err != nil {
		return 0, w.discardTail(fmt.Errorf("failed to write WAL entry: %w", err))
	}
	if err := w.writer.Flush(); err != nil {
		return 0, w.discardTail(fmt.Errorf("failed to flush WAL: %w", err))
	}
	if !w.opts.NoSync {
		if err := w.syncFile(w.file); err != nil {
			return 0, w.discardTail(fmt.Errorf("failed to sync WAL: %w", err))
		}
	}
	end, err := w.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, w.discardTail(fmt.Errorf("failed to locate WAL end: %w", err))
	}

	w.size = end
	w.currentLSN = entry.LSN
	w.stats.Appends++
	w.stats.BytesLogical += uint64(len(data))
	w.stats.BytesWritten += uint64(len(payload))
	return entry.LSN, nil
}

// discardTail cuts the file back to the last durable entry so a failed
// append is never replayed. If that fails too the entry's fate is unknown
// and the returned error says so.
func (w *Log) discardTail(cause error) error {
	w.writer.Reset(w.file)
	if err := w.file.Truncate(w.size); err != nil {
		w.logger.Error("failed to discard partial WAL entry", logging.Error(err), logging.Int64("offset", w.size))
		return fmt.Errorf("%w (entry may survive a restart: %v)", cause, err)
	}
	if _, err := w.file.Seek(w.size, io.SeekStart); err != nil {
		return fmt.Errorf("%w (entry may survive a restart: %v)", cause, err)
	}
	return cause
}

// Replay replays WAL entries to reconstruct state
func (w *Log) Replay(handler func(*Entry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.New("WAL is closed")
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	_, err := w.scan(handler)
	if _, seekErr := w.file.Seek(0, io.SeekEnd); seekErr != nil && err == nil {
		err = seekErr
	}
	return err
}

// scan reads every intact entry from the start of the file, sets
// currentLSN and returns the byte length of the intact prefix.
func (w *Log) scan(handler func(*Entry) error) (int64, error) {
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	counter := &countingReader{r: w.file}
	reader := bufio.NewReader(counter)

	var valid int64
	var lastLSN uint64
	for {
		entry, err := readEntry(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			w.logger.Warn("WAL recovery stopped at a torn entry",
				logging.Error(err),
				logging.Uint64("last_lsn", lastLSN),
				logging.Int64("valid_bytes", valid))
			break
		}
		if w.opts.Compress {
			decoded, err := snappy.Decode(nil, entry.Data)
			if err != nil {
				return valid, fmt.Errorf("failed to decompress WAL entry LSN=%d: %w", entry.LSN, err)
			}
			entry.Data = decoded
		}
		if handler != nil {
			if err := handler(entry); err != nil {
				return valid, fmt.Errorf("failed to replay entry LSN=%d: %w", entry.LSN, err)
			}
		}
		lastLSN = entry.LSN
		valid = counter.n - int64(reader.Buffered())
	}

	w.currentLSN = lastLSN
	return valid, nil
}

// Truncate empties the log after a checkpoint. LSNs restart at 1.
func (w *Log) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return errors.New("WAL is closed")
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush WAL before truncate: %w", err)
	}

	// Create the new file before closing the old one
	tmp := w.path + ".new"
	newFile, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new WAL file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		newFile.Close()
		return fmt.Errorf("failed to rename WAL file: %w", err)
	}
	if err := w.file.Close(); err != nil {
		w.logger.Warn("failed to close old WAL file during truncate", logging.Error(err))
	}

	w.logger.Debug("WAL truncated",
		logging.Uint64("entries", w.currentLSN),
		logging.Uint64("appends_since_open", w.stats.Appends),
		logging.Float64("compression_ratio", w.stats.Ratio()))
	w.file = newFile
	w.writer = bufio.NewWriter(newFile)
	w.size = 0
	w.currentLSN = 0
	return nil
}

// GetCurrentLSN returns the LSN of the last appended entry
func (w *Log) GetCurrentLSN() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentLSN
}

// Stats returns append counters since Open
func (w *Log) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Close closes the WAL
func (w *Log) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	err := w.file.Close()
	w.file = nil
	return err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
