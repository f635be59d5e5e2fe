//go:build !unix

package sstable

import (
	"io"
	"os"
)

// mapFile falls back to reading the file into memory on platforms
// without a usable mmap.
func mapFile(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func unmapFile([]byte) error {
	return nil
}
