package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var ErrInjected = errors.New("testutil: injected read error")

// PageByte is the value of every byte of page i in files made by this package.
func PageByte(i int) byte {
	return byte(i*7 + 1)
}

func pageData(pages, pageSize int) []byte {
	data := make([]byte, pages*pageSize)
	for i := range data {
		data[i] = PageByte(i / pageSize)
	}
	return data
}

// MemFile is an in memory database file that counts reads and can stall or fail them.
type MemFile struct {
	data     []byte
	pageSize int
	reads    atomic.Int64

	mu      sync.Mutex
	gate    chan struct{}
	failing map[int64]bool
}

func NewMemFile(pages, pageSize int) *MemFile {
	return &MemFile{
		data:     pageData(pages, pageSize),
		pageSize: pageSize,
		failing:  map[int64]bool{},
	}
}

func (f *MemFile) Size() int64 {
	return int64(len(f.data))
}

func (f *MemFile) PageSize() int {
	return f.pageSize
}

func (f *MemFile) Close() error {
	return nil
}

// Reads returns the number of ReadAt calls so far.
func (f *MemFile) Reads() int {
	return int(f.reads.Load())
}

// Hold makes reads block until the returned function is called.
func (f *MemFile) Hold() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	once := sync.Once{}
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Fail makes reads at offset fail until Heal is called.
func (f *MemFile) Fail(off int64) {
	f.mu.Lock()
	f.failing[off] = true
	f.mu.Unlock()
}

func (f *MemFile) Heal() {
	f.mu.Lock()
	f.failing = map[int64]bool{}
	f.mu.Unlock()
}

func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	f.reads.Add(1)

	f.mu.Lock()
	gate := f.gate
	fail := f.failing[off]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return 0, fmt.Errorf("%w at offset %d", ErrInjected, off)
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteFile writes a database file of the given number of pages into a temporary directory and returns its path.
func WriteFile(t *testing.T, pages, pageSize int) string {
	id, _ := uuid.NewUUID()
	path := filepath.Join(t.TempDir(), id.String()+".mdf")
	require.NoError(t, os.WriteFile(path, pageData(pages, pageSize), 0o600))
	return path
}
