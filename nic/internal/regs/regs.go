// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the register map of EtherLink-class adapters.
//
// The card exposes a 16-register window-banked I/O page at its port base.
// The command/status register is visible in every window; most control and
// status registers are only visible after a select-window command.
package regs // import "github.com/go-nic/elx/nic/internal/regs"

// Command/status register offset from the port base (all windows).
const (
	REG_CMD    = 0x0e // write
	REG_STATUS = 0x0e // read
)

// Command opcodes, written to REG_CMD as op|arg.
// The operation lives in the 5 MSB, the argument in the 11 LSB.
const (
	CMD_TOTAL_RESET    = 0 << 11
	CMD_SELECT_WINDOW  = 1 << 11
	CMD_START_COAX     = 2 << 11
	CMD_RX_DISABLE     = 3 << 11
	CMD_RX_ENABLE      = 4 << 11
	CMD_RX_RESET       = 5 << 11
	CMD_RX_DISCARD     = 8 << 11
	CMD_TX_ENABLE      = 9 << 11
	CMD_TX_DISABLE     = 10 << 11
	CMD_TX_RESET       = 11 << 11
	CMD_REQ_INTR       = 12 << 11
	CMD_ACK_INTR       = 13 << 11
	CMD_SET_INTR_ENB   = 14 << 11
	CMD_SET_STATUS_ENB = 15 << 11
	CMD_SET_RX_FILTER  = 16 << 11
	CMD_STATS_ENABLE   = 21 << 11
	CMD_STATS_DISABLE  = 22 << 11
)

// Status register bits. The low bits double as interrupt latch bits and
// as arguments to CMD_ACK_INTR, CMD_SET_INTR_ENB and CMD_SET_STATUS_ENB.
const (
	S_INT_LATCH       = 0x0001
	S_ADAPTER_FAILURE = 0x0002
	S_TX_COMPLETE     = 0x0004 // latched TX
	S_TX_AVAILABLE    = 0x0008
	S_RX_COMPLETE     = 0x0010 // latched RX
	S_RX_OVERRUN      = 0x0020 // receive overrun latch
	S_INT_REQ         = 0x0040
	S_STATS_FULL      = 0x0080
	S_DMA_DONE        = 0x0100
	S_DMA_IN_PROGRESS = 0x0800
	S_CMD_IN_PROGRESS = 0x1000
)

// Interrupt masks.
const (
	// ACK_ALL acknowledges every latched interrupt source.
	ACK_ALL = S_INT_LATCH | S_ADAPTER_FAILURE | S_TX_COMPLETE |
		S_TX_AVAILABLE | S_RX_COMPLETE | S_RX_OVERRUN |
		S_INT_REQ | S_STATS_FULL | S_DMA_DONE

	// MASK_SAFE is the conservative post-recovery interrupt mask:
	// latched RX, latched TX and adapter failure only.
	MASK_SAFE = S_RX_COMPLETE | S_TX_COMPLETE | S_ADAPTER_FAILURE

	// MASK_BASIC is the interrupt mask installed after a full reset.
	MASK_BASIC = S_INT_LATCH | S_ADAPTER_FAILURE | S_TX_COMPLETE |
		S_RX_COMPLETE | S_RX_OVERRUN | S_STATS_FULL
)

// Register windows.
const (
	WIN_SETUP = 0 // EEPROM/configuration
	WIN_OPS   = 1 // operating set: TX/RX status and FIFO
	WIN_FIFO  = 2
	WIN_CFG   = 3 // internal configuration (Vortex and later)
	WIN_DIAG  = 4 // diagnostics, PHY management
	WIN_MEDIA = 5
	WIN_STATS = 6
)

// Window 1 (operating set) register offsets from the port base.
const (
	W1_RX_FIFO   = 0x00
	W1_RX_STATUS = 0x08
	W1_TX_STATUS = 0x0b // byte, write-to-pop
	W1_TX_FREE   = 0x0c // free TX FIFO bytes; any window on DMA-capable parts
)

// Window 3 (internal configuration) register offsets.
const (
	W3_INTERNAL_CONFIG = 0x00
	W3_MAC_CONTROL     = 0x06
)

// Window 4 (diagnostics) register offsets.
const (
	W4_FIFO_DIAG = 0x04
	W4_NET_DIAG  = 0x06
	W4_PHYS_MGMT = 0x08 // MII management (Vortex and later)
	W4_MEDIA     = 0x0a
)

// TX status bits (byte register at W1_TX_STATUS).
const (
	TXS_RECLAIM_ERROR   = 0x02
	TXS_STATUS_OVERFLOW = 0x04
	TXS_MAX_COLLISIONS  = 0x08
	TXS_UNDERRUN        = 0x10
	TXS_JABBER          = 0x20
	TXS_INTERRUPT       = 0x40
	TXS_COMPLETE        = 0x80
)

// RX filter bits (argument to CMD_SET_RX_FILTER).
const (
	FILTER_STATION   = 0x01
	FILTER_MULTICAST = 0x02
	FILTER_BROADCAST = 0x04
	FILTER_PROM      = 0x08
)

// PHY management default: MII clock idle, management enable (Vortex+).
const PHY_MGMT_DEFAULT = 0x0800

// TX FIFO size in bytes; an on-card free-space read above this value
// is implausible and flags a sick adapter.
const TX_FIFO_SIZE = 0x0800
