// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"fmt"
	"io"
	"testing"

	"github.com/go-nic/elx/nic/internal/regs"
)

const testBase = 0x300

func TestSelectWindow(t *testing.T) {
	for _, tc := range []struct {
		window uint16
	}{
		{window: 0},
		{window: 1},
		{window: 4},
		{window: 6},
	} {
		t.Run(fmt.Sprintf("window=%d", tc.window), func(t *testing.T) {
			port := newFakePort(testBase)
			dev := NewDevice(port, testBase, VariantEL3)

			dev.selectWindow(tc.window)
			if dev.err != nil {
				t.Fatalf("could not select window: %+v", dev.err)
			}

			if got, want := port.cmds[len(port.cmds)-1], uint16(regs.CMD_SELECT_WINDOW)|tc.window; got != want {
				t.Fatalf("invalid select-window command: got=0x%04x, want=0x%04x", got, want)
			}
			if got, want := port.window, tc.window; got != want {
				t.Fatalf("invalid window: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestWaitCmdClear(t *testing.T) {
	for _, tc := range []struct {
		name    string
		pending int
		polls   int
		want    bool
	}{
		{name: "immediate", pending: 0, polls: 4, want: true},
		{name: "slow", pending: 3, polls: 8, want: true},
		{name: "stuck", pending: 1 << 30, polls: 4, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			port := newFakePort(testBase)
			port.pending = tc.pending
			dev := NewDevice(port, testBase, VariantEL3)

			if got, want := dev.waitCmdClear(tc.polls), tc.want; got != want {
				t.Fatalf("invalid wait-cmd-clear: got=%v, want=%v", got, want)
			}
		})
	}
}

type brokenPort struct{}

func (brokenPort) ReadAt(p []byte, off int64) (int, error)  { return 0, io.ErrUnexpectedEOF }
func (brokenPort) WriteAt(p []byte, off int64) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestStickyError(t *testing.T) {
	dev := NewDevice(brokenPort{}, testBase, VariantEL3)

	if got, want := dev.status(), uint16(0); got != want {
		t.Fatalf("invalid status on broken port: got=0x%04x, want=0x%04x", got, want)
	}
	if dev.Err() == nil {
		t.Fatalf("expected a sticky error after a failed read")
	}

	// subsequent accesses are no-ops and keep the first error
	first := dev.Err()
	dev.cmd(regs.CMD_TX_ENABLE)
	_ = dev.status()
	if got, want := dev.Err(), first; got != want {
		t.Fatalf("sticky error was overwritten: got=%v, want=%v", got, want)
	}

	if ok := dev.waitCmdClear(8); ok {
		t.Fatalf("wait-cmd-clear must fail on a broken port")
	}

	dev.clearErr()
	if dev.Err() != nil {
		t.Fatalf("could not clear sticky error")
	}
}
