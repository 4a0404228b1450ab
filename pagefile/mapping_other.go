//go:build !linux && !darwin

package pagefile

import "io"

// mapFile reads the whole file on platforms without mmap.
func mapFile(f *OSFile) ([]byte, func([]byte) error, error) {
	data := make([]byte, f.size)
	if _, err := f.ReadAt(data, 0); err != nil && err != io.EOF {
		return nil, nil, err
	}
	return data, func([]byte) error { return nil }, nil
}
