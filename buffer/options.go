package buffer

import (
	"fmt"
	"time"

	"dataserver/common"
	"dataserver/threadid"
	"dataserver/vm"
)

// Options are the construction parameters of a Pool.
type Options struct {
	Geometry vm.Geometry

	// MinMemory is the amount of resident memory FreeUnlocked never goes below.
	MinMemory int64

	// MaxMemory is the most memory the pool allocates for blocks before it starts evicting unlocked ones. Zero means
	// no limit other than the size of the file.
	MaxMemory int64

	// MaintenancePeriod is how often the background goroutine frees unlocked blocks. Zero disables the goroutine.
	MaintenancePeriod time.Duration

	// DefragPeriod is how often the background goroutine defragments. Zero disables defragmentation. It is rounded
	// to a whole number of maintenance periods.
	DefragPeriod time.Duration

	// MaxThreads is the number of threads that may hold pages at the same time.
	MaxThreads int

	// ExtentSize is the file range covered by one bit of a thread's extent bitmap.
	ExtentSize int64
}

func DefaultOptions() Options {
	return Options{
		Geometry:          vm.DefaultGeometry(),
		MaintenancePeriod: common.DefaultMaintenancePeriod,
		DefragPeriod:      common.DefaultDefragPeriod,
		MaxThreads:        common.MaxThreads,
		ExtentSize:        common.DefaultExtentSize,
	}
}

func (o Options) Validate() error {
	if err := o.Geometry.Validate(); err != nil {
		return err
	}
	if o.MinMemory < 0 || o.MaxMemory < 0 {
		return fmt.Errorf("%w: negative memory limit", ErrBadOptions)
	}
	if o.MaxMemory > 0 && o.MinMemory > o.MaxMemory {
		return fmt.Errorf("%w: min memory %d is above max memory %d", ErrBadOptions, o.MinMemory, o.MaxMemory)
	}
	if o.MaxMemory > 0 && o.MaxMemory < 2*int64(o.Geometry.BlockSize()) {
		return fmt.Errorf("%w: max memory %d is less than two blocks", ErrBadOptions, o.MaxMemory)
	}
	if o.MaintenancePeriod < 0 || o.DefragPeriod < 0 {
		return fmt.Errorf("%w: negative period", ErrBadOptions)
	}
	if o.MaxThreads <= 0 || o.MaxThreads > threadid.MaxSlots {
		return fmt.Errorf("%w: max threads %d out of range [1, %d]", ErrBadOptions, o.MaxThreads, threadid.MaxSlots)
	}
	if o.ExtentSize <= 0 {
		return fmt.Errorf("%w: extent size %d", ErrBadOptions, o.ExtentSize)
	}
	return nil
}

// defragEvery returns after how many maintenance rounds defragmentation runs, 0 for never.
func (o Options) defragEvery() int {
	if o.DefragPeriod == 0 || o.MaintenancePeriod == 0 {
		return 0
	}
	n := int(o.DefragPeriod / o.MaintenancePeriod)
	if n < 1 {
		n = 1
	}
	return n
}
