//go:build linux

package store

import (
	"golang.org/x/sys/unix"
)

// allocate maps anonymous private memory, which the kernel hands out zeroed
func allocate(size int) ([]byte, bool, error) {
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func release(data []byte) error {
	return unix.Munmap(data)
}
