//go:build unix

package sstable

import (
	"os"

	"golang.org/x/sys/unix"
)

// mapFile maps the whole file read-only. The mapping outlives the file
// descriptor, so callers may close f afterwards.
func mapFile(f *os.File) ([]byte, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, nil
	}
	return unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
}

func unmapFile(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
