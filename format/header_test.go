package format

import (
	"bytes"
	"errors"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	for _, table := range Tables {
		t.Run(table.String(), func(t *testing.T) {
			h := NewFileHeader(table)

			var buf bytes.Buffer
			if err := h.Encode(&buf); err != nil {
				t.Fatal(err)
			}
			if buf.Len() != HeaderSize {
				t.Fatalf("encoded %d bytes, want %d", buf.Len(), HeaderSize)
			}

			got, err := DecodeHeader(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if got.Table != table || got.Version != Version ||
				got.CreatedAt != h.CreatedAt || got.ModifiedAt != h.ModifiedAt {
				t.Fatalf("mismatch: got %+v want %+v", got, h)
			}
		})
	}
}

func TestHeaderRejectsAnyBitFlip(t *testing.T) {
	h := NewFileHeader(TableCookies)

	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	pristine := buf.Bytes()

	for pos := 0; pos < len(pristine); pos++ {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), pristine...)
			flipped[pos] ^= 1 << bit

			if _, err := DecodeHeader(bytes.NewReader(flipped)); err == nil {
				t.Fatalf("flip byte %d bit %d: decode succeeded", pos, bit)
			}
		}
	}
}

func TestHeaderBadMagic(t *testing.T) {
	h := NewFileHeader(TableHistory)

	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatal(err)
	}

	raw := buf.Bytes()
	copy(raw, "NOTABROWS")

	if _, err := DecodeHeader(bytes.NewReader(raw)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestFooterRoundTrip(t *testing.T) {
	f := NewFileFooter()
	f.EntryCount = 42
	f.FileSize = 123456
	f.DataOffset = uint64(HeaderSize)
	f.MaxEntrySize = 512
	f.TotalKeySize = 4200
	f.TotalValueSize = 99000

	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != FooterSize {
		t.Fatalf("encoded %d bytes, want %d", buf.Len(), FooterSize)
	}

	got, err := DecodeFooter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *f {
		t.Fatalf("mismatch: got %+v want %+v", got, f)
	}
}
