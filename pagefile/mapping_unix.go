//go:build linux || darwin

package pagefile

import (
	"golang.org/x/sys/unix"
)

func mapFile(f *OSFile) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(int(f.file.Fd()), 0, int(f.size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, unix.Munmap, nil
}
