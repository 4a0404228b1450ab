package db

import (
	"fmt"
	"io"

	"dataserver/pagefile"
	"github.com/zeebo/blake3"
)

// Digest is a blake3 hash over the hashes of all pages of a file in page order.
type Digest [32]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

func combine(pages [][32]byte) Digest {
	h := blake3.New()
	for i := range pages {
		_, _ = h.Write(pages[i][:])
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Digest hashes every page as served to readers.
func (d *DB) Digest(workers int) (Digest, error) {
	pages := make([][32]byte, d.PageCount())
	err := d.Scan(workers, func(page int, data []byte) error {
		pages[page] = blake3.Sum256(data)
		return nil
	})
	if err != nil {
		return Digest{}, err
	}
	return combine(pages), nil
}

// FileDigest hashes the file at path the way Digest does, reading it sequentially without any cache.
func FileDigest(path string, pageSize int) (Digest, error) {
	f, err := pagefile.Open(path, pageSize)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	pages := make([][32]byte, f.PageCount())
	buf := make([]byte, pageSize)
	r := io.NewSectionReader(f, 0, f.Size())
	for i := range pages {
		if _, err := io.ReadFull(r, buf); err != nil {
			return Digest{}, fmt.Errorf("%s: page %d: %w", path, i, err)
		}
		pages[i] = blake3.Sum256(buf)
	}
	return combine(pages), nil
}
