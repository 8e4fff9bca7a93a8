// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errtrack

import (
	"testing"
)

type fakeAlloc struct {
	free      uint64 // pool headroom before scrubbing
	freeAfter uint64 // pool headroom after scrubbing
	ok        bool   // integrity before scrubbing
	okAfter   bool   // integrity after scrubbing

	compacted bool
	scrubbed  bool
}

func (a *fakeAlloc) Stats() MemStats {
	return MemStats{Free: a.free}
}

func (a *fakeAlloc) Compact() uint64 {
	a.compacted = true
	return 128
}

func (a *fakeAlloc) Check() bool {
	if a.scrubbed {
		return a.okAfter
	}
	return a.ok
}

func (a *fakeAlloc) Scrub() uint64 {
	a.scrubbed = true
	a.free = a.freeAfter
	return 256
}

func TestMemoryRecovery(t *testing.T) {
	for _, tc := range []struct {
		name  string
		alloc fakeAlloc
		want  Status
		scrub bool
	}{
		{
			name:  "healthy-pool",
			alloc: fakeAlloc{free: 4096, ok: true},
			want:  StatusOK,
			scrub: false,
		},
		{
			name:  "scrub-recovers",
			alloc: fakeAlloc{free: 100, freeAfter: 600, ok: true, okAfter: true},
			want:  StatusOK,
			scrub: true,
		},
		{
			name:  "pool-exhausted",
			alloc: fakeAlloc{free: 100, freeAfter: 200, ok: true, okAfter: true},
			want:  StatusNoMemory,
			scrub: true,
		},
		{
			name:  "corrupt-pool",
			alloc: fakeAlloc{free: 4096, ok: false},
			want:  StatusCorrupt,
			scrub: false,
		},
		{
			name:  "corrupt-after-scrub",
			alloc: fakeAlloc{free: 100, freeAfter: 600, ok: true, okAfter: false},
			want:  StatusCorrupt,
			scrub: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			alloc := tc.alloc
			tr, _, _ := newTestTracker(0x00, WithAllocator(&alloc))
			tr.SetCorrelation(false)

			got := tr.Report(FaultMemory, 0, CodeOutOfMemory, "pool low", "")
			if got != tc.want {
				t.Fatalf("invalid status: got=%v, want=%v", got, tc.want)
			}
			if !alloc.compacted {
				t.Fatalf("pool not compacted")
			}
			if alloc.scrubbed != tc.scrub {
				t.Fatalf("invalid scrub: got=%v, want=%v", alloc.scrubbed, tc.scrub)
			}

			e := tr.History()[0]
			if got, want := e.Recovered, tc.want == StatusOK; got != want {
				t.Fatalf("invalid recovered flag: got=%v, want=%v", got, want)
			}
		})
	}
}

func TestRuntimeAllocator(t *testing.T) {
	alloc := NewRuntimeAllocator()

	st := alloc.Stats()
	if st.Allocated == 0 {
		t.Fatalf("invalid allocated bytes: got=0")
	}
	if st.Free == 0 {
		t.Fatalf("invalid free bytes: got=0")
	}
	if !alloc.Check() {
		t.Fatalf("runtime heap reported corrupt")
	}
	alloc.Compact()
	alloc.Scrub()
}
