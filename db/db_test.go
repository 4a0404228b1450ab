package db

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"dataserver/buffer"
	"dataserver/config"
	"dataserver/pagefile"
	"dataserver/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 512

func testConfig(pool bool) config.Config {
	c := config.Default()
	c.PageSize = testPageSize
	c.BlockPages = 2
	c.ArenaBlocks = 16
	c.MaintenancePeriod = 5 * time.Millisecond
	c.DefragPeriod = 20 * time.Millisecond
	c.UseBufferPool = pool
	return c
}

func openTestDB(t *testing.T, pages int, cfg config.Config) (*DB, string) {
	testutil.SetupLogger()
	path := testutil.WriteFile(t, pages, testPageSize)
	d, err := Open(path, cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, d.Close())
	})
	return d, path
}

func TestDB_Reader(t *testing.T) {
	for _, pool := range []bool{true, false} {
		d, _ := openTestDB(t, 40, testConfig(pool))
		assert.Equal(t, 40, d.PageCount())
		assert.Equal(t, pool, d.Pool() != nil)

		r := d.NewReader()
		for _, page := range []int{0, 1, 17, 39} {
			data, err := r.Page(page)
			require.NoError(t, err)
			assert.Equal(t, bytes.Repeat([]byte{testutil.PageByte(page)}, testPageSize), data)
		}

		_, err := r.Page(40)
		assert.Error(t, err)
		_, err = r.Page(-1)
		assert.ErrorIs(t, err, buffer.ErrPageOutOfRange)

		if pool {
			assert.True(t, r.UnlockPage(17))
			assert.Equal(t, 1, r.Close())
			assert.Equal(t, 40, d.Stats().PageCount)
			assert.Equal(t, 0, d.Stats().Locked)
		} else {
			assert.False(t, r.UnlockPage(17))
			assert.Equal(t, 0, r.Close())
		}
	}
}

func TestDB_Scan_Visits_Every_Page(t *testing.T) {
	cfg := testConfig(true)
	cfg.MaxMemory = 4 * 2 * testPageSize
	d, _ := openTestDB(t, 101, cfg)

	seen := make([]atomic.Int32, d.PageCount())
	err := d.Scan(4, func(page int, data []byte) error {
		if data[0] != testutil.PageByte(page) {
			return errors.New("unexpected page content")
		}
		seen[page].Add(1)
		return nil
	})
	require.NoError(t, err)
	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "page %d", i)
	}
	assert.Equal(t, 0, d.Stats().Locked)
	require.NoError(t, d.Pool().Validate())
}

func TestDB_Scan_Stops_On_Error(t *testing.T) {
	d, _ := openTestDB(t, 64, testConfig(true))

	boom := errors.New("boom")
	err := d.Scan(3, func(page int, data []byte) error {
		if page == 33 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}

func TestDB_Digest_Matches_File(t *testing.T) {
	for _, pool := range []bool{true, false} {
		d, path := openTestDB(t, 77, testConfig(pool))

		want, err := FileDigest(path, testPageSize)
		require.NoError(t, err)
		got, err := d.Digest(3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Len(t, got.String(), 64)
	}
}

func TestOpen_Should_Fail(t *testing.T) {
	testutil.SetupLogger()
	id, _ := uuid.NewUUID()
	path := filepath.Join(t.TempDir(), id.String()+".mdf")
	require.NoError(t, os.WriteFile(path, make([]byte, testPageSize+3), 0o600))

	_, err := Open(path, testConfig(true))
	assert.ErrorIs(t, err, pagefile.ErrBadFileSize)

	cfg := testConfig(true)
	cfg.MaxThreads = 0
	_, err = Open(testutil.WriteFile(t, 4, testPageSize), cfg)
	assert.ErrorIs(t, err, buffer.ErrBadOptions)
}

func TestDB_Close(t *testing.T) {
	testutil.SetupLogger()
	d, err := Open(testutil.WriteFile(t, 8, testPageSize), testConfig(true))
	require.NoError(t, err)
	r := d.NewReader()

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.False(t, d.IsOpen())

	_, err = r.Page(1)
	assert.ErrorIs(t, err, ErrClosed)
}
