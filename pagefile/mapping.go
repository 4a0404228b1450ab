package pagefile

import (
	"errors"
	"fmt"
)

var ErrPageOutOfRange = errors.New("pagefile: page out of range")

// Mapping exposes a whole file as one read only byte range. It serves pages when the buffer pool is turned off:
// locking a page just slices the mapping and unlocking does nothing.
type Mapping struct {
	file     *OSFile
	data     []byte
	pageSize int
	release  func([]byte) error
}

// Map maps f. The mapping keeps f open until Close.
func Map(f *OSFile) (*Mapping, error) {
	data, release, err := mapFile(f)
	if err != nil {
		return nil, fmt.Errorf("pagefile: map %s: %w", f.Name(), err)
	}
	return &Mapping{
		file:     f,
		data:     data,
		pageSize: f.PageSize(),
		release:  release,
	}, nil
}

func (m *Mapping) PageSize() int {
	return m.pageSize
}

func (m *Mapping) PageCount() int {
	return len(m.data) / m.pageSize
}

func (m *Mapping) IsOpen() bool {
	return m.data != nil
}

// LockPage returns the bytes of page. The slice stays valid until Close.
func (m *Mapping) LockPage(page int) ([]byte, error) {
	if m.data == nil {
		return nil, errors.New("pagefile: mapping is closed")
	}
	if page < 0 || page >= m.PageCount() {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, m.PageCount())
	}
	off := page * m.pageSize
	return m.data[off : off+m.pageSize : off+m.pageSize], nil
}

func (m *Mapping) UnlockPage(int) {}

func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	err := m.release(m.data)
	m.data = nil
	if cerr := m.file.Close(); err == nil {
		err = cerr
	}
	return err
}
