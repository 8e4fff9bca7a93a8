// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"encoding/binary"

	"github.com/go-nic/elx/nic/internal/regs"
)

// fakePort emulates the port I/O behaviour of an EtherLink-class card:
// a command/status register at base+0x0e, window-banked data registers,
// and a command-in-progress bit that tests can keep asserted to simulate
// stuck commands.
type fakePort struct {
	base int64
	mem  map[int64]byte // window-banked storage, see key()

	window uint16
	bits   uint16   // status bits returned on every status read
	cmds   []uint16 // log of issued commands

	pending    int            // status reads left with CMD_IN_PROGRESS set
	stuck      map[uint16]int // op -> remaining issues of op that stick
	stuckReads int            // CIP reads per stuck issue
}

func newFakePort(base int64) *fakePort {
	return &fakePort{
		base:       base,
		mem:        make(map[int64]byte),
		stuck:      make(map[uint16]int),
		stuckReads: 1 << 30,
	}
}

func (p *fakePort) key(off int64) int64 {
	return int64(p.window)<<16 | off
}

func (p *fakePort) setReg16(window uint16, off int64, v uint16) {
	k := int64(window)<<16 | off
	p.mem[k] = byte(v)
	p.mem[k+1] = byte(v >> 8)
}

func (p *fakePort) reg16(window uint16, off int64) uint16 {
	k := int64(window)<<16 | off
	return uint16(p.mem[k]) | uint16(p.mem[k+1])<<8
}

func (p *fakePort) ReadAt(b []byte, off int64) (int, error) {
	if off == p.base+regs.REG_STATUS && len(b) == 2 {
		st := p.bits
		if p.pending > 0 {
			p.pending--
			st |= regs.S_CMD_IN_PROGRESS
		}
		binary.LittleEndian.PutUint16(b, st)
		return 2, nil
	}
	for i := range b {
		b[i] = p.mem[p.key(off + int64(i))]
	}
	return len(b), nil
}

func (p *fakePort) WriteAt(b []byte, off int64) (int, error) {
	if off == p.base+regs.REG_CMD && len(b) == 2 {
		v := binary.LittleEndian.Uint16(b)
		p.cmds = append(p.cmds, v)
		op := v & 0xf800
		if op == regs.CMD_SELECT_WINDOW {
			p.window = v & 0x0007
		}
		if op == regs.CMD_TOTAL_RESET {
			// a total reset wipes every data register and banks window 0
			p.mem = make(map[int64]byte)
			p.window = 0
		}
		p.pending = 0
		if n := p.stuck[op]; n > 0 {
			p.stuck[op] = n - 1
			p.pending = p.stuckReads
		}
		return 2, nil
	}

	// latched status registers are write-to-clear
	if p.window == regs.WIN_OPS && off == p.base+regs.W1_RX_STATUS && len(b) == 2 {
		p.setReg16(regs.WIN_OPS, off, 0)
		return 2, nil
	}
	if p.window == regs.WIN_OPS && off == p.base+regs.W1_TX_STATUS && len(b) == 1 {
		p.mem[p.key(off)] = 0
		return 1, nil
	}

	for i := range b {
		p.mem[p.key(off+int64(i))] = b[i]
	}
	return len(b), nil
}

// ops returns the log of issued command opcodes (argument bits stripped).
func (p *fakePort) ops() []uint16 {
	ops := make([]uint16, len(p.cmds))
	for i, v := range p.cmds {
		ops[i] = v & 0xf800
	}
	return ops
}

func (p *fakePort) countOp(op uint16) int {
	n := 0
	for _, v := range p.ops() {
		if v == op {
			n++
		}
	}
	return n
}
