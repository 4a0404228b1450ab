//go:build linux || darwin

package vm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapRegion reserves one anonymous PROT_NONE mapping and flips protection per arena. Decommitted arenas are
// advised away so the kernel can drop their pages.
type mmapRegion struct {
	data      []byte
	arenaSize int
}

func reserveRegion(size, arenaSize int) (region, error) {
	if ps := unix.Getpagesize(); arenaSize%ps != 0 {
		return nil, fmt.Errorf("arena size %d is not a multiple of the os page size %d", arenaSize, ps)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}

	return &mmapRegion{data: data, arenaSize: arenaSize}, nil
}

func (r *mmapRegion) arena(i int) []byte {
	off := i * r.arenaSize
	return r.data[off : off+r.arenaSize : off+r.arenaSize]
}

func (r *mmapRegion) commit(i int) ([]byte, error) {
	mem := r.arena(i)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return nil, fmt.Errorf("mprotect arena %d: %w", i, err)
	}
	return mem, nil
}

func (r *mmapRegion) decommit(i int, mem []byte) error {
	if err := unix.Madvise(mem, unix.MADV_DONTNEED); err != nil {
		return fmt.Errorf("madvise arena %d: %w", i, err)
	}
	if err := unix.Mprotect(mem, unix.PROT_NONE); err != nil {
		return fmt.Errorf("mprotect arena %d: %w", i, err)
	}
	return nil
}

func (r *mmapRegion) release() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return err
}
