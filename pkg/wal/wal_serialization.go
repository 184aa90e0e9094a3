package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Format: [LSN:8][OpType:1][DataLen:4][Data:N][Checksum:4][Timestamp:8]
// Data is the encoded payload; the checksum covers it.
const headerSize = 8 + 1 + 4

// maxEntrySize bounds DataLen so a corrupt header cannot trigger a huge allocation
const maxEntrySize = 256 << 20

var errTornEntry = errors.New("torn or corrupt entry")

func writeEntry(w *bufio.Writer, entry *Entry) error {
	var header [headerSize]byte
	binary.BigEndian.PutUint64(header[0:8], entry.LSN)
	header[8] = byte(entry.OpType)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(entry.Data)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(entry.Data); err != nil {
		return err
	}

	var trailer [12]byte
	binary.BigEndian.PutUint32(trailer[0:4], entry.Checksum)
	binary.BigEndian.PutUint64(trailer[4:12], uint64(entry.Timestamp))
	_, err := w.Write(trailer[:])
	return err
}

// readEntry returns io.EOF at a clean end of file and errTornEntry for a
// partial or corrupt tail.
func readEntry(r *bufio.Reader) (*Entry, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: header: %v", errTornEntry, err)
	}

	entry := &Entry{
		LSN:    binary.BigEndian.Uint64(header[0:8]),
		OpType: OpType(header[8]),
	}
	dataLen := binary.BigEndian.Uint32(header[9:13])
	if dataLen > maxEntrySize {
		return nil, fmt.Errorf("%w: entry LSN %d claims %d bytes", errTornEntry, entry.LSN, dataLen)
	}

	entry.Data = make([]byte, dataLen)
	if _, err := io.ReadFull(r, entry.Data); err != nil {
		return nil, fmt.Errorf("%w: data: %v", errTornEntry, err)
	}

	var trailer [12]byte
	if _, err := io.ReadFull(r, trailer[:]); err != nil {
		return nil, fmt.Errorf("%w: trailer: %v", errTornEntry, err)
	}
	entry.Checksum = binary.BigEndian.Uint32(trailer[0:4])
	entry.Timestamp = int64(binary.BigEndian.Uint64(trailer[4:12]))

	if crc32.ChecksumIEEE(entry.Data) != entry.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch at LSN %d", errTornEntry, entry.LSN)
	}
	return entry, nil
}
