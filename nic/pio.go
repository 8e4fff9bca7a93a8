// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-nic/elx/nic/internal/regs"
)

const (
	// pollDelay is the fixed per-iteration delay of every bounded poll loop.
	pollDelay = 1 * time.Microsecond

	// selectPolls bounds the best-effort wait after a select-window command.
	selectPolls = 200
)

func (dev *Device) readU16(off int64) uint16 {
	if dev.err != nil {
		return 0
	}
	_, dev.err = dev.rw.ReadAt(dev.xbuf[:2], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("nic: could not read register 0x%x: %w", off, dev.err)
		return 0
	}
	return binary.LittleEndian.Uint16(dev.xbuf[:2])
}

func (dev *Device) writeU16(off int64, v uint16) {
	if dev.err != nil {
		return
	}
	binary.LittleEndian.PutUint16(dev.xbuf[:2], v)
	_, dev.err = dev.rw.WriteAt(dev.xbuf[:2], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("nic: could not write register 0x%x: %w", off, dev.err)
		return
	}
}

func (dev *Device) readU8(off int64) uint8 {
	if dev.err != nil {
		return 0
	}
	_, dev.err = dev.rw.ReadAt(dev.xbuf[:1], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("nic: could not read register 0x%x: %w", off, dev.err)
		return 0
	}
	return dev.xbuf[0]
}

func (dev *Device) writeU8(off int64, v uint8) {
	if dev.err != nil {
		return
	}
	dev.xbuf[0] = v
	_, dev.err = dev.rw.WriteAt(dev.xbuf[:1], off)
	if dev.err != nil {
		dev.err = fmt.Errorf("nic: could not write register 0x%x: %w", off, dev.err)
		return
	}
}

// cmd issues a command to the card.
func (dev *Device) cmd(op uint16) {
	dev.writeU16(dev.base+regs.REG_CMD, op)
}

// status reads the card status register.
func (dev *Device) status() uint16 {
	return dev.readU16(dev.base + regs.REG_STATUS)
}

// selectWindow banks in register window n. The wait for command-in-progress
// to clear is best-effort: callers that need to know whether the command
// completed call waitCmdClear explicitly.
func (dev *Device) selectWindow(n uint16) {
	dev.cmd(regs.CMD_SELECT_WINDOW | n)
	for i := 0; i < selectPolls; i++ {
		if dev.err != nil {
			return
		}
		if dev.status()&regs.S_CMD_IN_PROGRESS == 0 {
			return
		}
		time.Sleep(pollDelay)
	}
}

// waitCmdClear polls the status register up to polls times, waiting for
// command-in-progress to clear. It reports whether the command completed
// within the bound. This is the sole timing primitive of the recovery
// procedures: a false return fails the current attempt, not a single step.
func (dev *Device) waitCmdClear(polls int) bool {
	for i := 0; i < polls; i++ {
		if dev.err != nil {
			return false
		}
		if dev.status()&regs.S_CMD_IN_PROGRESS == 0 {
			return true
		}
		time.Sleep(pollDelay)
	}
	return false
}
