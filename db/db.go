// Package db opens a database file for reading. Pages are served by a buffer pool, or straight from a read only
// mapping of the whole file when the pool is turned off.
package db

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"dataserver/buffer"
	"dataserver/config"
	"dataserver/pagefile"
	log "github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("db: database is closed")

const scanRetries = 1000

type DB struct {
	file    *pagefile.OSFile
	cfg     config.Config
	pool    *buffer.Pool
	mapping *pagefile.Mapping
	log     *log.Entry

	mu     sync.Mutex
	closed bool
}

// Open opens the database file at path with the settings of cfg.
func Open(path string, cfg config.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := pagefile.Open(path, cfg.PageSize)
	if err != nil {
		return nil, err
	}

	d := &DB{
		file: f,
		cfg:  cfg,
		log:  log.WithField("file", path),
	}

	if cfg.UseBufferPool {
		d.pool, err = buffer.New(f, cfg.PoolOptions())
	} else {
		d.mapping, err = pagefile.Map(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	d.log.WithFields(log.Fields{
		"pages":       d.PageCount(),
		"buffer_pool": cfg.UseBufferPool,
	}).Info("database is opened")
	return d, nil
}

func (d *DB) PageCount() int {
	return d.file.PageCount()
}

func (d *DB) PageSize() int {
	return d.file.PageSize()
}

func (d *DB) Size() int64 {
	return d.file.Size()
}

func (d *DB) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed
}

// Pool returns the buffer pool or nil when pages are mapped.
func (d *DB) Pool() *buffer.Pool {
	return d.pool
}

// Stats returns the buffer pool state. Without a pool only the page count is set.
func (d *DB) Stats() buffer.Stats {
	if d.pool == nil {
		return buffer.Stats{PageCount: d.PageCount()}
	}
	return d.pool.Stats()
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.mapping != nil {
		// the mapping owns the file
		return d.mapping.Close()
	}

	err := d.pool.Close()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.log.Info("database is closed")
	return err
}

// Reader reads pages on behalf of one goroutine. Pages stay valid until they are unlocked or the reader is closed.
type Reader struct {
	db     *DB
	thread *buffer.Thread
}

func (d *DB) NewReader() *Reader {
	r := &Reader{db: d}
	if d.pool != nil {
		r.thread = d.pool.NewThread()
	}
	return r
}

// Page returns the bytes of page.
func (r *Reader) Page(page int) ([]byte, error) {
	if !r.db.IsOpen() {
		return nil, ErrClosed
	}
	if page < 0 {
		return nil, fmt.Errorf("%w: %d", buffer.ErrPageOutOfRange, page)
	}

	if r.thread == nil {
		return r.db.mapping.LockPage(page)
	}
	ref, err := r.thread.LockPage(buffer.PageIndex(page))
	if err != nil {
		return nil, err
	}
	return ref.Data(), nil
}

func (r *Reader) UnlockPage(page int) bool {
	if r.thread == nil || page < 0 {
		return false
	}
	return r.thread.UnlockPage(buffer.PageIndex(page))
}

// Unlock releases every page held by the reader.
func (r *Reader) Unlock() int {
	if r.thread == nil {
		return 0
	}
	return r.thread.Unlock()
}

func (r *Reader) Close() int {
	if r.thread == nil {
		return 0
	}
	return r.thread.Close()
}

// Scan calls fn for every page using the given number of readers. Pages are handed out in runs of one block so
// that a block is read by a single reader. fn must not keep data after it returns. The first error stops the scan.
func (d *DB) Scan(workers int, fn func(page int, data []byte) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	run := d.cfg.BlockPages
	runs := make(chan int)
	errs := make(chan error, workers)
	stop := make(chan struct{})
	stopOnce := sync.Once{}

	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := d.NewReader()
			defer r.Close()

			for first := range runs {
				if err := d.scanRun(r, first, run, fn); err != nil {
					errs <- err
					stopOnce.Do(func() { close(stop) })
					return
				}
			}
		}()
	}

feed:
	for first := 0; first < d.PageCount(); first += run {
		select {
		case runs <- first:
		case <-stop:
			break feed
		}
	}
	close(runs)
	wg.Wait()
	close(errs)

	return <-errs
}

// page retries for a while when every block of the pool is held by other readers.
func (r *Reader) page(page int) ([]byte, error) {
	for i := 0; ; i++ {
		data, err := r.Page(page)
		if !errors.Is(err, buffer.ErrNoPageAvailable) || i == scanRetries {
			return data, err
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *DB) scanRun(r *Reader, first, run int, fn func(int, []byte) error) error {
	defer r.Unlock()
	for page := first; page < first+run && page < d.PageCount(); page++ {
		data, err := r.page(page)
		if err != nil {
			return err
		}
		if err := fn(page, data); err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
	}
	return nil
}
