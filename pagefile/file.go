package pagefile

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrBadFileSize = errors.New("pagefile: file size is not a positive multiple of the page size")
	ErrShortRead   = errors.New("pagefile: short read")
	ErrBadRun      = errors.New("pagefile: read is not page aligned")
)

// File is the read side of a database file. Implementations must allow concurrent ReadAt calls.
type File interface {
	io.ReaderAt
	io.Closer
	Size() int64
	PageSize() int
}

// OSFile is a database file opened read only.
type OSFile struct {
	file     *os.File
	name     string
	size     int64
	pageSize int
}

// Open opens path read only. The file size must be a non-zero multiple of pageSize.
func Open(path string, pageSize int) (*OSFile, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("pagefile: bad page size %d", pageSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !ValidSize(st.Size(), pageSize) {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes, page size is %d", ErrBadFileSize, path, st.Size(), pageSize)
	}

	return &OSFile{
		file:     f,
		name:     path,
		size:     st.Size(),
		pageSize: pageSize,
	}, nil
}

// ValidSize reports whether size can be the size of a database file with the given page size.
func ValidSize(size int64, pageSize int) bool {
	return size > 0 && size%int64(pageSize) == 0
}

func (f *OSFile) Name() string {
	return f.name
}

func (f *OSFile) Size() int64 {
	return f.size
}

func (f *OSFile) PageSize() int {
	return f.pageSize
}

func (f *OSFile) PageCount() int {
	return int(f.size / int64(f.pageSize))
}

func (f *OSFile) ReadAt(p []byte, off int64) (int, error) {
	return f.file.ReadAt(p, off)
}

func (f *OSFile) Close() error {
	return f.file.Close()
}

// ReadRun fills dest with the bytes of f starting at off. off and len(dest) must be multiples of the page size.
// A run that would cross the end of the file is cut at the end of the file and the rest of dest is left untouched.
// It returns the number of bytes read.
func ReadRun(f File, dest []byte, off int64) (int, error) {
	ps := int64(f.PageSize())
	if off < 0 || off%ps != 0 || int64(len(dest))%ps != 0 {
		return 0, fmt.Errorf("%w: offset %d, length %d, page size %d", ErrBadRun, off, len(dest), ps)
	}
	if off >= f.Size() {
		return 0, fmt.Errorf("%w: offset %d is past the end of the file (%d bytes)", ErrShortRead, off, f.Size())
	}

	if rest := f.Size() - off; int64(len(dest)) > rest {
		dest = dest[:rest]
	}

	n, err := f.ReadAt(dest, off)
	if n == len(dest) {
		// ReaderAt may report io.EOF together with a full read at the end of the file
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = fmt.Errorf("%w: got %d of %d bytes at offset %d", ErrShortRead, n, len(dest), off)
	}
	return n, err
}
