// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errtrack

import (
	"runtime"
	"runtime/debug"

	"github.com/pbnjay/memory"
)

const (
	lowMemThreshold      = 512 // bytes of driver pool headroom
	memRecoveryThreshold = 256
)

// MemStats is a snapshot of the driver memory pool.
type MemStats struct {
	Allocated uint64
	Free      uint64
	Peak      uint64
}

// Allocator exposes the pool introspection hooks memory recovery needs.
type Allocator interface {
	// Stats returns a snapshot of the pool.
	Stats() MemStats
	// Compact coalesces free space and returns the bytes reclaimed.
	Compact() uint64
	// Check verifies pool integrity.
	Check() bool
	// Scrub drops every cache and non-essential buffer, returning the
	// bytes released.
	Scrub() uint64
}

// recoverMemory runs the staged memory recovery: compact, verify, and --
// if the pool is still under the low watermark -- scrub caches. A pool
// that fails the integrity check is beyond software repair.
func (tr *Tracker) recoverMemory() Status {
	freed := tr.alloc.Compact()
	tr.msg.Infof("memory-recovery: compaction reclaimed %d bytes", freed)

	if !tr.alloc.Check() {
		tr.msg.Errorf("memory-recovery: pool integrity check failed")
		return StatusCorrupt
	}

	st := tr.alloc.Stats()
	if st.Free < lowMemThreshold {
		freed = tr.alloc.Scrub()
		tr.msg.Infof("memory-recovery: scrub released %d bytes", freed)
		if !tr.alloc.Check() {
			tr.msg.Errorf("memory-recovery: pool integrity check failed after scrub")
			return StatusCorrupt
		}
		st = tr.alloc.Stats()
	}

	if st.Free <= memRecoveryThreshold {
		tr.msg.Errorf("memory-recovery: pool exhausted (%d bytes free)", st.Free)
		return StatusNoMemory
	}
	return StatusOK
}

// runtimeAllocator backs the Allocator interface with the Go runtime heap
// and the machine free-memory gauge.
type runtimeAllocator struct {
	peak uint64
}

// NewRuntimeAllocator returns an Allocator over the process heap.
func NewRuntimeAllocator() Allocator {
	return &runtimeAllocator{}
}

func (a *runtimeAllocator) Stats() MemStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	if ms.HeapInuse > a.peak {
		a.peak = ms.HeapInuse
	}
	return MemStats{
		Allocated: ms.HeapInuse,
		Free:      memory.FreeMemory(),
		Peak:      a.peak,
	}
}

func (a *runtimeAllocator) Compact() uint64 {
	before := a.Stats().Allocated
	runtime.GC()
	after := a.Stats().Allocated
	if after >= before {
		return 0
	}
	return before - after
}

func (a *runtimeAllocator) Check() bool { return true }

func (a *runtimeAllocator) Scrub() uint64 {
	before := a.Stats().Allocated
	debug.FreeOSMemory()
	after := a.Stats().Allocated
	if after >= before {
		return 0
	}
	return before - after
}
