// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/go-nic/elx/nic/internal/regs"
)

// maxRetries bounds the number of full attempts of each recovery procedure.
// A failed step aborts the current attempt; the next attempt restarts the
// whole command sequence from step one.
const maxRetries = 3

// defaultPollBound is the per-step poll bound of the recovery procedures.
const defaultPollBound = 2000

// Outcome is the terminal result of a recovery procedure.
type Outcome uint8

const (
	OutcomeOK        Outcome = iota // procedure succeeded
	OutcomeEscalated                // procedure failed, full reset succeeded
	OutcomeTimeout                  // all attempts exhausted
	OutcomeInvalid                  // NIC absent or not brought up
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeEscalated:
		return "escalated"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeInvalid:
		return "invalid"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// Proc names a recovery procedure for dispatch.
type Proc uint8

const (
	ProcTx Proc = iota
	ProcRx
	ProcIntr
	ProcReset
)

func (p Proc) String() string {
	switch p {
	case ProcTx:
		return "tx-recovery"
	case ProcRx:
		return "rx-overflow-recovery"
	case ProcIntr:
		return "interrupt-recovery"
	case ProcReset:
		return "full-reset"
	}
	return fmt.Sprintf("Proc(%d)", uint8(p))
}

// Stats are the monotonically increasing counters of the recovery layer.
type Stats struct {
	TxRecoveries     uint32
	RxRecoveries     uint32
	IntrRecoveries   uint32
	HardwareResets   uint32
	FailedRecoveries uint32
	Escalations      uint32
}

// Recovery runs bounded register-level repair procedures against the cards
// of a registry. It never panics and never blocks beyond its poll bounds
// (plus the fixed settle delay of a full reset); every path returns a
// discrete Outcome.
type Recovery struct {
	msg   *log.Logger
	reg   *Registry
	polls int

	stats Stats
}

// RecoveryOption configures a Recovery.
type RecoveryOption func(rec *Recovery)

// WithPollBound sets the per-step poll bound of the recovery procedures.
func WithPollBound(polls int) RecoveryOption {
	return func(rec *Recovery) {
		rec.polls = polls
	}
}

// WithRecoveryLogger sets the message logger of the recovery layer.
func WithRecoveryLogger(msg *log.Logger) RecoveryOption {
	return func(rec *Recovery) {
		rec.msg = msg
	}
}

// NewRecovery creates a recovery engine over the given registry.
func NewRecovery(reg *Registry, opts ...RecoveryOption) *Recovery {
	rec := &Recovery{
		msg:   log.New(os.Stdout, "elx: ", 0),
		reg:   reg,
		polls: defaultPollBound,
	}
	for _, opt := range opts {
		opt(rec)
	}
	return rec
}

// Stats returns a copy of the recovery counters.
func (rec *Recovery) Stats() Stats { return rec.stats }

// ResetStats zeroes the recovery counters.
func (rec *Recovery) ResetStats() { rec.stats = Stats{} }

// Close logs the final counters and releases the engine.
func (rec *Recovery) Close() error {
	rec.msg.Printf(
		"recovery: tx=%d rx=%d intr=%d resets=%d failed=%d escalations=%d",
		rec.stats.TxRecoveries, rec.stats.RxRecoveries, rec.stats.IntrRecoveries,
		rec.stats.HardwareResets, rec.stats.FailedRecoveries, rec.stats.Escalations,
	)
	return nil
}

// device returns the handle for a NIC index, or nil if the card is absent
// or has not been brought up. Recovery never touches such a card.
func (rec *Recovery) device(id uint32) *Device {
	dev := rec.reg.Device(id)
	if dev == nil || !dev.ready {
		return nil
	}
	return dev
}

// RecoverTx repairs a stuck transmitter: disable, reset and re-enable the
// TX engine, clearing latched TX status in between.
func (rec *Recovery) RecoverTx(id uint32) Outcome {
	dev := rec.device(id)
	if dev == nil {
		return OutcomeInvalid
	}

	start := time.Now()
	for try := 1; try <= maxRetries; try++ {
		if rec.tryTx(dev) {
			rec.stats.TxRecoveries++
			rec.msg.Printf("tx-recovery (nic=%d): ok (attempt=%d, %v)",
				id, try, time.Since(start),
			)
			return OutcomeOK
		}
	}
	rec.stats.FailedRecoveries++
	rec.msg.Printf("tx-recovery (nic=%d): timeout after %d attempts (%v)",
		id, maxRetries, time.Since(start),
	)
	return OutcomeTimeout
}

func (rec *Recovery) tryTx(dev *Device) bool {
	dev.clearErr()

	dev.cmd(regs.CMD_TX_DISABLE)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	dev.cmd(regs.CMD_TX_RESET)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	// pop latched TX status entries
	dev.selectWindow(regs.WIN_OPS)
	for i := 0; i < maxRetries; i++ {
		txs := dev.readU8(dev.base + regs.W1_TX_STATUS)
		if txs&regs.TXS_COMPLETE == 0 {
			break
		}
		dev.writeU8(dev.base+regs.W1_TX_STATUS, txs)
	}

	dev.cmd(regs.CMD_TX_ENABLE)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	return dev.err == nil
}

// RecoverRxOverflow repairs a receiver that overran its FIFO: disable and
// reset the RX engine, clear latched RX state, acknowledge the overrun
// interrupts and re-enable reception. The RX reset is granted a doubled
// poll bound: it drains the FIFO before completing.
func (rec *Recovery) RecoverRxOverflow(id uint32) Outcome {
	dev := rec.device(id)
	if dev == nil {
		return OutcomeInvalid
	}

	start := time.Now()
	for try := 1; try <= maxRetries; try++ {
		if rec.tryRx(dev) {
			rec.stats.RxRecoveries++
			rec.msg.Printf("rx-overflow-recovery (nic=%d): ok (attempt=%d, %v)",
				id, try, time.Since(start),
			)
			return OutcomeOK
		}
	}
	rec.stats.FailedRecoveries++
	rec.msg.Printf("rx-overflow-recovery (nic=%d): timeout after %d attempts (%v)",
		id, maxRetries, time.Since(start),
	)
	return OutcomeTimeout
}

func (rec *Recovery) tryRx(dev *Device) bool {
	dev.clearErr()

	dev.cmd(regs.CMD_RX_DISABLE)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	dev.cmd(regs.CMD_RX_RESET)
	if !dev.waitCmdClear(2 * rec.polls) {
		return false
	}

	dev.selectWindow(regs.WIN_OPS)
	rxs := dev.readU16(dev.base + regs.W1_RX_STATUS)
	if rxs != 0 {
		dev.writeU16(dev.base+regs.W1_RX_STATUS, rxs)
	}

	dev.cmd(regs.CMD_ACK_INTR | regs.S_RX_OVERRUN | regs.S_RX_COMPLETE)

	dev.cmd(regs.CMD_RX_ENABLE)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	return dev.err == nil
}

// RecoverInterrupts repairs a wedged interrupt line: mask everything,
// acknowledge every latched source, clear RX/TX status and re-enable with
// the conservative safe mask.
func (rec *Recovery) RecoverInterrupts(id uint32) Outcome {
	dev := rec.device(id)
	if dev == nil {
		return OutcomeInvalid
	}

	start := time.Now()
	for try := 1; try <= maxRetries; try++ {
		if rec.tryIntr(dev) {
			rec.stats.IntrRecoveries++
			rec.msg.Printf("interrupt-recovery (nic=%d): ok (attempt=%d, %v)",
				id, try, time.Since(start),
			)
			return OutcomeOK
		}
	}
	rec.stats.FailedRecoveries++
	rec.msg.Printf("interrupt-recovery (nic=%d): timeout after %d attempts (%v)",
		id, maxRetries, time.Since(start),
	)
	return OutcomeTimeout
}

func (rec *Recovery) tryIntr(dev *Device) bool {
	dev.clearErr()

	dev.cmd(regs.CMD_SET_INTR_ENB | 0)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	dev.cmd(regs.CMD_ACK_INTR | regs.ACK_ALL)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	dev.selectWindow(regs.WIN_OPS)
	rxs := dev.readU16(dev.base + regs.W1_RX_STATUS)
	if rxs != 0 {
		dev.writeU16(dev.base+regs.W1_RX_STATUS, rxs)
	}
	txs := dev.readU8(dev.base + regs.W1_TX_STATUS)
	if txs&regs.TXS_COMPLETE != 0 {
		dev.writeU8(dev.base+regs.W1_TX_STATUS, txs)
	}

	dev.cmd(regs.CMD_SET_INTR_ENB | regs.MASK_SAFE)
	if !dev.waitCmdClear(rec.polls) {
		return false
	}

	return dev.err == nil
}

// FullReset issues a total reset and reprograms the card to a minimal
// working configuration. It is unconditional: the card is assumed dead
// already, so the reset always reports success.
func (rec *Recovery) FullReset(id uint32) Outcome {
	dev := rec.device(id)
	if dev == nil {
		return OutcomeInvalid
	}

	start := time.Now()
	dev.clearErr()

	// capture the internal configuration before the reset wipes it. a
	// card sick enough to need a full reset may fail the read: restore
	// only what could actually be read.
	var (
		cfg   uint16
		cfgOK bool
	)
	if dev.variant.DMA() {
		dev.selectWindow(regs.WIN_CFG)
		cfg = dev.readU16(dev.base + regs.W3_INTERNAL_CONFIG)
		cfgOK = dev.err == nil
		dev.clearErr()
	}

	dev.cmd(regs.CMD_TOTAL_RESET)

	// settle: the card is deaf for ~1ms after a total reset, then needs
	// ~10ms before the EEPROM reload completes.
	for settle := time.Now(); time.Since(settle) < 1*time.Millisecond; {
		time.Sleep(pollDelay)
	}
	time.Sleep(10 * time.Millisecond)

	dev.selectWindow(regs.WIN_SETUP)

	if dev.variant.DMA() {
		// the total reset wiped the MII management state; re-program the
		// PHY before the MAC is re-enabled.
		dev.selectWindow(regs.WIN_DIAG)
		dev.writeU16(dev.base+regs.W4_PHYS_MGMT, regs.PHY_MGMT_DEFAULT)
		if cfgOK {
			dev.selectWindow(regs.WIN_CFG)
			dev.writeU16(dev.base+regs.W3_INTERNAL_CONFIG, cfg)
		}
	}

	dev.cmd(regs.CMD_SET_RX_FILTER | regs.FILTER_STATION | regs.FILTER_BROADCAST)

	dev.cmd(regs.CMD_RX_ENABLE)
	dev.waitCmdClear(rec.polls)
	dev.cmd(regs.CMD_TX_ENABLE)
	dev.waitCmdClear(rec.polls)

	dev.cmd(regs.CMD_SET_STATUS_ENB | regs.ACK_ALL)
	dev.cmd(regs.CMD_SET_INTR_ENB | regs.MASK_BASIC)
	dev.waitCmdClear(rec.polls)

	rec.stats.HardwareResets++
	if dev.err != nil {
		rec.msg.Printf("full-reset (nic=%d): port I/O error during reset: %+v", id, dev.err)
	}
	rec.msg.Printf("full-reset (nic=%d): done (%v)", id, time.Since(start))
	return OutcomeOK
}

// Dispatch invokes the requested recovery procedure. When the procedure
// times out and escalation is requested, Dispatch falls back to a full
// reset and, if that succeeds, reports OutcomeEscalated rather than plain
// success: callers must be able to see that a more invasive repair ran.
func (rec *Recovery) Dispatch(id uint32, p Proc, escalate bool) Outcome {
	var out Outcome
	switch p {
	case ProcTx:
		out = rec.RecoverTx(id)
	case ProcRx:
		out = rec.RecoverRxOverflow(id)
	case ProcIntr:
		out = rec.RecoverInterrupts(id)
	case ProcReset:
		out = rec.FullReset(id)
	default:
		return OutcomeInvalid
	}

	if out == OutcomeTimeout && escalate && p != ProcReset {
		rec.msg.Printf("%s (nic=%d): escalating to full reset", p, id)
		if rec.FullReset(id) == OutcomeOK {
			rec.stats.Escalations++
			return OutcomeEscalated
		}
	}
	return out
}

// HealthCheck is a side-effect-free diagnostic of one adapter. It reads
// status once; a set command-in-progress bit is given 1ms to clear (a slow
// command is not a hang). The check fails on a stuck command, on adapter
// failure, and, for DMA-capable variants, on an implausible free-space
// register. It never mutates hardware state.
func (rec *Recovery) HealthCheck(id uint32) bool {
	dev := rec.device(id)
	if dev == nil {
		return false
	}

	dev.clearErr()
	st := dev.status()
	if st&regs.S_CMD_IN_PROGRESS != 0 {
		time.Sleep(1 * time.Millisecond)
		st = dev.status()
	}
	if dev.err != nil {
		return false
	}
	if st&regs.S_CMD_IN_PROGRESS != 0 {
		return false
	}
	if st&regs.S_ADAPTER_FAILURE != 0 {
		return false
	}

	if dev.variant.DMA() {
		// W1_TX_FREE is readable from any window on DMA-capable parts.
		free := dev.readU16(dev.base + regs.W1_TX_FREE)
		if dev.err != nil {
			return false
		}
		if free == 0 || free > regs.TX_FIFO_SIZE {
			return false
		}
	}

	return true
}

// DumpRegisters prints the status register and the operating-set window
// of one adapter. Unlike HealthCheck it banks windows, so it must not run
// concurrently with the data path.
func (rec *Recovery) DumpRegisters(id uint32, w io.Writer) error {
	dev := rec.device(id)
	if dev == nil {
		return fmt.Errorf("nic: no ready device for NIC %d", id)
	}

	dev.clearErr()
	st := dev.status()
	fmt.Fprintf(w, "nic=%d base=0x%x variant=%v\n", id, dev.base, dev.variant)
	fmt.Fprintf(w, "status: 0x%04x\n", st)

	dev.selectWindow(regs.WIN_OPS)
	fmt.Fprintf(w, "rx-status: 0x%04x\n", dev.readU16(dev.base+regs.W1_RX_STATUS))
	fmt.Fprintf(w, "tx-status: 0x%02x\n", dev.readU8(dev.base+regs.W1_TX_STATUS))
	fmt.Fprintf(w, "tx-free:   %d\n", dev.readU16(dev.base+regs.W1_TX_FREE))

	if dev.err != nil {
		return fmt.Errorf("nic: could not dump registers of NIC %d: %w", id, dev.err)
	}
	return nil
}
