package format

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// FileHeader is the fixed 47-byte preamble of a headered BrowserDB
// file. The trailing CRC covers every field before it.
type FileHeader struct {
	Version     uint8
	CreatedAt   uint64
	ModifiedAt  uint64
	Flags       uint32
	Reserved    uint32
	Table       TableKind
	Compression Compression
	Encryption  Encryption
	ReservedB   [6]byte
	CRC         uint32
}

// NewFileHeader builds a header for the given table, stamped now.
func NewFileHeader(table TableKind) *FileHeader {
	ts := Now()
	return &FileHeader{
		Version:    Version,
		CreatedAt:  ts,
		ModifiedAt: ts,
		Table:      table,
	}
}

func (h *FileHeader) coveredBytes() []byte {
	var buf bytes.Buffer
	buf.WriteString(Magic)
	buf.WriteByte(h.Version)
	binary.Write(&buf, binary.LittleEndian, h.CreatedAt)
	binary.Write(&buf, binary.LittleEndian, h.ModifiedAt)
	binary.Write(&buf, binary.LittleEndian, h.Flags)
	binary.Write(&buf, binary.LittleEndian, h.Reserved)
	buf.WriteByte(byte(h.Table))
	buf.WriteByte(byte(h.Compression))
	buf.WriteByte(byte(h.Encryption))
	buf.Write(h.ReservedB[:])
	return buf.Bytes()
}

// ComputeCRC returns the CRC32 over the fields the header CRC covers.
func (h *FileHeader) ComputeCRC() uint32 {
	return crc32.ChecksumIEEE(h.coveredBytes())
}

// Encode writes the header, computing and storing its CRC.
func (h *FileHeader) Encode(w io.Writer) error {
	h.CRC = h.ComputeCRC()
	if _, err := w.Write(h.coveredBytes()); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, h.CRC)
}

// DecodeHeader reads and validates a header. Magic, version and CRC
// mismatches all surface as ErrCorrupt.
func DecodeHeader(r io.Reader) (*FileHeader, error) {
	var magic [len(Magic)]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if string(magic[:]) != Magic {
		return nil, errors.Wrap(ErrCorrupt, "bad magic bytes")
	}

	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h.Version); err != nil {
		return nil, err
	}
	if h.Version != Version {
		return nil, errors.Wrapf(ErrCorrupt, "unsupported format version %d", h.Version)
	}
	if err := binary.Read(r, binary.LittleEndian, &h.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.ModifiedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Flags); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.Reserved); err != nil {
		return nil, err
	}

	var tags [3]byte
	if _, err := io.ReadFull(r, tags[:]); err != nil {
		return nil, err
	}
	h.Table = TableKind(tags[0])
	h.Compression = Compression(tags[1])
	h.Encryption = Encryption(tags[2])

	if _, err := io.ReadFull(r, h.ReservedB[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.CRC); err != nil {
		return nil, err
	}

	if h.ComputeCRC() != h.CRC {
		return nil, errors.Wrap(ErrCorrupt, "header CRC mismatch")
	}
	return &h, nil
}

// FileFooter closes a headered BrowserDB file with aggregate counters.
type FileFooter struct {
	EntryCount       uint64
	FileSize         uint64
	DataOffset       uint64
	MaxEntrySize     uint32
	TotalKeySize     uint64
	TotalValueSize   uint64
	CompressionRatio uint16
	Reserved         [2]byte
	FileCRC          uint32
}

// NewFileFooter returns a footer with the uncompressed ratio preset.
func NewFileFooter() *FileFooter {
	return &FileFooter{CompressionRatio: 100}
}

// Encode writes the footer at the writer's current position. Offset
// bookkeeping belongs to the caller.
func (f *FileFooter) Encode(w io.Writer) error {
	for _, v := range []any{
		f.EntryCount, f.FileSize, f.DataOffset, f.MaxEntrySize,
		f.TotalKeySize, f.TotalValueSize, f.CompressionRatio,
	} {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if _, err := w.Write(f.Reserved[:]); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, f.FileCRC)
}

// DecodeFooter reads a footer.
func DecodeFooter(r io.Reader) (*FileFooter, error) {
	var f FileFooter
	for _, v := range []any{
		&f.EntryCount, &f.FileSize, &f.DataOffset, &f.MaxEntrySize,
		&f.TotalKeySize, &f.TotalValueSize, &f.CompressionRatio,
	} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(r, f.Reserved[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &f.FileCRC); err != nil {
		return nil, err
	}
	return &f, nil
}
