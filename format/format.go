// Package format implements the BrowserDB on-disk format: the file
// header, the framed log entry stream, the file footer and the varint
// primitive they share. All multi-byte integers are little-endian.
package format

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"github.com/pkg/errors"
)

const (
	// Magic opens every headered BrowserDB file.
	Magic = "BROWSERDB"

	// Version is the current format version.
	Version = 1

	// MaxFrameSize bounds a single log-entry frame. Anything larger is
	// treated as corruption on read and rejected on write.
	MaxFrameSize = 16 << 20 // 16MB

	// HeaderSize is the encoded size of a FileHeader.
	HeaderSize = 9 + 1 + 8 + 8 + 4 + 4 + 1 + 1 + 1 + 6 + 4

	// FooterSize is the encoded size of a FileFooter.
	FooterSize = 8 + 8 + 8 + 4 + 8 + 8 + 2 + 2 + 4
)

var (
	// ErrCorrupt reports bytes that cannot be a valid BrowserDB
	// structure: bad magic, CRC mismatch, varint overflow, or a frame
	// that runs past its bounds.
	ErrCorrupt = errors.New("browserdb: corrupt data")

	// ErrFrameTooLarge reports a frame exceeding MaxFrameSize on write.
	ErrFrameTooLarge = errors.New("browserdb: frame too large")
)

// TableKind identifies one of the five logical tables.
type TableKind uint8

const (
	TableHistory    TableKind = 1
	TableCookies    TableKind = 2
	TableCache      TableKind = 3
	TableLocalStore TableKind = 4
	TableSettings   TableKind = 5
)

// Tables lists every valid TableKind.
var Tables = [...]TableKind{TableHistory, TableCookies, TableCache, TableLocalStore, TableSettings}

// String returns the on-disk file-name prefix for the table.
func (t TableKind) String() string {
	switch t {
	case TableHistory:
		return "history"
	case TableCookies:
		return "cookies"
	case TableCache:
		return "cache"
	case TableLocalStore:
		return "localstore"
	case TableSettings:
		return "settings"
	}
	return "history"
}

// Valid reports whether t is one of the five defined tables.
func (t TableKind) Valid() bool {
	return t >= TableHistory && t <= TableSettings
}

// EntryKind is the operation a log entry records.
type EntryKind uint8

const (
	EntryInsert     EntryKind = 1
	EntryUpdate     EntryKind = 2
	EntryDelete     EntryKind = 3
	EntryBatchStart EntryKind = 4
	EntryBatchEnd   EntryKind = 5
)

// Compression tags the (reserved) file compression scheme.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZlib Compression = 1
	CompressionLz4  Compression = 2
	CompressionZstd Compression = 3
)

// Encryption tags the (reserved) file encryption scheme.
type Encryption uint8

const (
	EncryptionNone     Encryption = 0
	EncryptionAES256   Encryption = 1
	EncryptionChaCha20 Encryption = 2
)

// Now returns the current wall clock as a millisecond timestamp.
func Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

// WriteUvarint writes v in base-128 continuation encoding and returns
// the number of bytes written.
func WriteUvarint(w io.Writer, v uint64) (int, error) {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	if _, err := w.Write(buf[:n]); err != nil {
		return 0, err
	}
	return n, nil
}

// ReadUvarint reads a base-128 varint. It fails with ErrCorrupt once
// the value would no longer fit in 64 bits.
func ReadUvarint(r io.Reader) (uint64, int, error) {
	var (
		v     uint64
		shift uint
		n     int
		b     [1]byte
	)
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, n, err
		}
		n++
		if shift == 63 && b[0] > 1 {
			return 0, n, errors.Wrap(ErrCorrupt, "varint overflow")
		}
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			return v, n, nil
		}
		shift += 7
		if shift > 63 {
			return 0, n, errors.Wrap(ErrCorrupt, "varint overflow")
		}
	}
}

// LogEntry is one framed record.
//
// Frame layout:
//
//	| kind (1) | varint key_len | varint value_len | key | value | timestamp (8) | crc32 (4) |
//
// The CRC covers kind, key, value and timestamp. The length varints are
// not covered; this is fixed for format version 1.
type LogEntry struct {
	Kind      EntryKind
	Key       []byte
	Value     []byte
	Timestamp uint64
	CRC       uint32
}

// NewLogEntry builds an entry stamped with the current time.
func NewLogEntry(kind EntryKind, key, value []byte) *LogEntry {
	return &LogEntry{
		Kind:      kind,
		Key:       key,
		Value:     value,
		Timestamp: Now(),
	}
}

// Deleted reports whether the entry is a tombstone.
func (e *LogEntry) Deleted() bool {
	return e.Kind == EntryDelete
}

// AccountedSize is the in-memory charge for the entry: key plus value
// plus timestamp and kind byte.
func (e *LogEntry) AccountedSize() int {
	return len(e.Key) + len(e.Value) + 8 + 1
}

// FrameSize is the exact encoded size of the entry.
func (e *LogEntry) FrameSize() int {
	return 1 +
		uvarintLen(uint64(len(e.Key))) +
		uvarintLen(uint64(len(e.Value))) +
		len(e.Key) + len(e.Value) + 8 + 4
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

func (e *LogEntry) computeCRC() uint32 {
	crc := crc32.NewIEEE()
	crc.Write([]byte{byte(e.Kind)})
	crc.Write(e.Key)
	crc.Write(e.Value)
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], e.Timestamp)
	crc.Write(ts[:])
	return crc.Sum32()
}

// Encode writes the frame and returns the number of bytes written.
func (e *LogEntry) Encode(w io.Writer) (int, error) {
	if e.FrameSize() > MaxFrameSize {
		return 0, ErrFrameTooLarge
	}
	e.CRC = e.computeCRC()

	written := 0

	if _, err := w.Write([]byte{byte(e.Kind)}); err != nil {
		return written, err
	}
	written++

	n, err := WriteUvarint(w, uint64(len(e.Key)))
	if err != nil {
		return written, err
	}
	written += n

	n, err = WriteUvarint(w, uint64(len(e.Value)))
	if err != nil {
		return written, err
	}
	written += n

	if _, err := w.Write(e.Key); err != nil {
		return written, err
	}
	written += len(e.Key)

	if _, err := w.Write(e.Value); err != nil {
		return written, err
	}
	written += len(e.Value)

	if err := binary.Write(w, binary.LittleEndian, e.Timestamp); err != nil {
		return written, err
	}
	written += 8

	if err := binary.Write(w, binary.LittleEndian, e.CRC); err != nil {
		return written, err
	}
	written += 4

	return written, nil
}

func cleanEOF(err error) error {
	if err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return err
}

// DecodeEntry reads one frame, verifying the stored CRC. io.EOF is
// returned untouched at a clean stream end; a frame cut short also
// surfaces as io.EOF so sequential scans stop at a truncation.
func DecodeEntry(r io.Reader) (*LogEntry, error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return nil, cleanEOF(err)
	}

	keyLen, _, err := ReadUvarint(r)
	if err != nil {
		return nil, cleanEOF(err)
	}
	valLen, _, err := ReadUvarint(r)
	if err != nil {
		return nil, cleanEOF(err)
	}

	if keyLen > MaxFrameSize || valLen > MaxFrameSize || keyLen+valLen+13 > MaxFrameSize {
		return nil, errors.Wrap(ErrCorrupt, "frame length out of range")
	}

	e := &LogEntry{
		Kind:  EntryKind(kind[0]),
		Key:   make([]byte, keyLen),
		Value: make([]byte, valLen),
	}

	if _, err := io.ReadFull(r, e.Key); err != nil {
		return nil, cleanEOF(err)
	}
	if _, err := io.ReadFull(r, e.Value); err != nil {
		return nil, cleanEOF(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.Timestamp); err != nil {
		return nil, cleanEOF(err)
	}
	if err := binary.Read(r, binary.LittleEndian, &e.CRC); err != nil {
		return nil, cleanEOF(err)
	}

	if e.computeCRC() != e.CRC {
		return nil, errors.Wrap(ErrCorrupt, "frame CRC mismatch")
	}

	return e, nil
}
