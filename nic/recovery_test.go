// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"io"
	"log"
	"strings"
	"testing"

	"github.com/go-nic/elx/nic/internal/regs"
)

func newTestRecovery(variant Variant) (*Recovery, *fakePort) {
	port := newFakePort(testBase)
	dev := NewDevice(port, testBase, variant)
	dev.SetReady(true)

	reg := NewRegistry()
	reg.Register(0, dev)

	rec := NewRecovery(reg,
		WithPollBound(8),
		WithRecoveryLogger(log.New(io.Discard, "elx: ", 0)),
	)
	return rec, port
}

func hasSubsequence(ops []uint16, want []uint16) bool {
	i := 0
	for _, op := range ops {
		if i < len(want) && op == want[i] {
			i++
		}
	}
	return i == len(want)
}

func TestRecoverTx(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)

	if got, want := rec.RecoverTx(0), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	want := []uint16{
		regs.CMD_TX_DISABLE,
		regs.CMD_TX_RESET,
		regs.CMD_SELECT_WINDOW,
		regs.CMD_TX_ENABLE,
	}
	if !hasSubsequence(port.ops(), want) {
		t.Fatalf("invalid command sequence: got=%04x, want subsequence %04x", port.ops(), want)
	}

	if got, want := rec.Stats().TxRecoveries, uint32(1); got != want {
		t.Fatalf("invalid tx-recoveries: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().FailedRecoveries, uint32(0); got != want {
		t.Fatalf("invalid failed-recoveries: got=%d, want=%d", got, want)
	}
}

func TestRecoverTxSecondAttempt(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)
	port.stuck[regs.CMD_TX_RESET] = 1 // first attempt times out mid-sequence

	if got, want := rec.RecoverTx(0), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	// the retry restarts the whole sequence, not mid-sequence
	if got, want := port.countOp(regs.CMD_TX_DISABLE), 2; got != want {
		t.Fatalf("invalid number of tx-disable commands: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().TxRecoveries, uint32(1); got != want {
		t.Fatalf("invalid tx-recoveries: got=%d, want=%d", got, want)
	}
}

func TestRecoverTxExhaustion(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)
	port.stuck[regs.CMD_TX_DISABLE] = maxRetries

	if got, want := rec.RecoverTx(0), OutcomeTimeout; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}
	if got, want := port.countOp(regs.CMD_TX_DISABLE), maxRetries; got != want {
		t.Fatalf("invalid number of attempts: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().FailedRecoveries, uint32(1); got != want {
		t.Fatalf("invalid failed-recoveries: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().TxRecoveries, uint32(0); got != want {
		t.Fatalf("invalid tx-recoveries: got=%d, want=%d", got, want)
	}
}

func TestRecoverInvalidNIC(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)

	// absent NIC
	if got, want := rec.RecoverTx(42), OutcomeInvalid; got != want {
		t.Fatalf("invalid outcome for absent NIC: got=%v, want=%v", got, want)
	}

	// registered but not brought up
	down := NewDevice(port, testBase, VariantEL3)
	rec.reg.Register(7, down)
	if got, want := rec.RecoverRxOverflow(7), OutcomeInvalid; got != want {
		t.Fatalf("invalid outcome for down NIC: got=%v, want=%v", got, want)
	}

	// hardware untouched in both cases
	if got, want := len(port.cmds), 0; got != want {
		t.Fatalf("recovery touched hardware of an invalid NIC: %d commands", got)
	}
}

func TestRecoverRxOverflow(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)

	// RX reset drains the FIFO: grant it more polls than the per-step
	// bound, but less than the doubled bound it is given.
	port.stuckReads = 12
	port.stuck[regs.CMD_RX_RESET] = 1
	port.setReg16(regs.WIN_OPS, testBase+regs.W1_RX_STATUS, 0x8020)

	if got, want := rec.RecoverRxOverflow(0), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	want := []uint16{
		regs.CMD_RX_DISABLE,
		regs.CMD_RX_RESET,
		regs.CMD_SELECT_WINDOW,
		regs.CMD_ACK_INTR,
		regs.CMD_RX_ENABLE,
	}
	if !hasSubsequence(port.ops(), want) {
		t.Fatalf("invalid command sequence: got=%04x, want subsequence %04x", port.ops(), want)
	}

	if got, want := port.reg16(regs.WIN_OPS, testBase+regs.W1_RX_STATUS), uint16(0); got != want {
		t.Fatalf("latched rx-status not cleared: got=0x%04x", got)
	}
	if got, want := rec.Stats().RxRecoveries, uint32(1); got != want {
		t.Fatalf("invalid rx-recoveries: got=%d, want=%d", got, want)
	}
}

func TestRecoverInterrupts(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)

	if got, want := rec.RecoverInterrupts(0), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	var (
		maskAll  = false
		ackAll   = false
		safeMask = false
	)
	for _, v := range port.cmds {
		switch {
		case v == regs.CMD_SET_INTR_ENB|0 && !ackAll:
			maskAll = true
		case v == regs.CMD_ACK_INTR|regs.ACK_ALL:
			ackAll = true
		case v == regs.CMD_SET_INTR_ENB|regs.MASK_SAFE:
			safeMask = true
		}
	}
	if !maskAll || !ackAll || !safeMask {
		t.Fatalf("invalid interrupt-recovery sequence (mask-all=%v ack-all=%v safe-mask=%v): %04x",
			maskAll, ackAll, safeMask, port.cmds,
		)
	}

	if got, want := rec.Stats().IntrRecoveries, uint32(1); got != want {
		t.Fatalf("invalid interrupt-recoveries: got=%d, want=%d", got, want)
	}
}

func TestFullReset(t *testing.T) {
	for _, tc := range []struct {
		name    string
		variant Variant
		phy     bool
	}{
		{name: "el3", variant: VariantEL3, phy: false},
		{name: "vortex", variant: VariantVortex, phy: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec, port := newTestRecovery(tc.variant)

			if got, want := rec.FullReset(0), OutcomeOK; got != want {
				t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
			}

			if got, want := port.countOp(regs.CMD_TOTAL_RESET), 1; got != want {
				t.Fatalf("invalid number of total resets: got=%d, want=%d", got, want)
			}
			if got, want := port.countOp(regs.CMD_SET_INTR_ENB), 1; got != want {
				t.Fatalf("invalid number of intr-enable commands: got=%d, want=%d", got, want)
			}
			if got, want := port.cmds[len(port.cmds)-1], uint16(regs.CMD_SET_INTR_ENB)|regs.MASK_BASIC; got != want {
				t.Fatalf("last command not the basic interrupt mask: got=0x%04x, want=0x%04x", got, want)
			}

			phy := port.reg16(regs.WIN_DIAG, testBase+regs.W4_PHYS_MGMT)
			if tc.phy && phy != regs.PHY_MGMT_DEFAULT {
				t.Fatalf("PHY not re-programmed: got=0x%04x, want=0x%04x", phy, regs.PHY_MGMT_DEFAULT)
			}
			if !tc.phy && phy != 0 {
				t.Fatalf("PHY programmed on a PIO-only variant: got=0x%04x", phy)
			}

			if got, want := rec.Stats().HardwareResets, uint32(1); got != want {
				t.Fatalf("invalid hardware-resets: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestFullResetRestoresInternalConfig(t *testing.T) {
	rec, port := newTestRecovery(VariantVortex)
	port.setReg16(regs.WIN_CFG, testBase+regs.W3_INTERNAL_CONFIG, 0x0150)

	if got, want := rec.FullReset(0), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	// the total reset wiped window 3; the pre-reset value must be back
	if got, want := port.reg16(regs.WIN_CFG, testBase+regs.W3_INTERNAL_CONFIG), uint16(0x0150); got != want {
		t.Fatalf("internal configuration not restored: got=0x%04x, want=0x%04x", got, want)
	}
}

func TestDispatchEscalation(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)
	port.stuck[regs.CMD_TX_DISABLE] = maxRetries // TX recovery always fails

	if got, want := rec.Dispatch(0, ProcTx, true), OutcomeEscalated; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}

	if got, want := port.countOp(regs.CMD_TOTAL_RESET), 1; got != want {
		t.Fatalf("invalid number of total resets: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().Escalations, uint32(1); got != want {
		t.Fatalf("invalid escalations: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().FailedRecoveries, uint32(1); got != want {
		t.Fatalf("invalid failed-recoveries: got=%d, want=%d", got, want)
	}
}

func TestDispatchNoEscalation(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)
	port.stuck[regs.CMD_TX_DISABLE] = maxRetries

	if got, want := rec.Dispatch(0, ProcTx, false), OutcomeTimeout; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}
	if got, want := port.countOp(regs.CMD_TOTAL_RESET), 0; got != want {
		t.Fatalf("unexpected total reset: got=%d, want=%d", got, want)
	}
}

func TestDispatchResetNeverEscalates(t *testing.T) {
	rec, port := newTestRecovery(VariantEL3)

	if got, want := rec.Dispatch(0, ProcReset, true), OutcomeOK; got != want {
		t.Fatalf("invalid outcome: got=%v, want=%v", got, want)
	}
	if got, want := port.countOp(regs.CMD_TOTAL_RESET), 1; got != want {
		t.Fatalf("invalid number of total resets: got=%d, want=%d", got, want)
	}
	if got, want := rec.Stats().Escalations, uint32(0); got != want {
		t.Fatalf("invalid escalations: got=%d, want=%d", got, want)
	}
}

func TestHealthCheck(t *testing.T) {
	for _, tc := range []struct {
		name    string
		variant Variant
		setup   func(port *fakePort)
		want    bool
	}{
		{
			name:    "healthy",
			variant: VariantEL3,
			setup:   func(port *fakePort) {},
			want:    true,
		},
		{
			name:    "slow-command",
			variant: VariantEL3,
			setup:   func(port *fakePort) { port.pending = 1 },
			want:    true,
		},
		{
			name:    "stuck-command",
			variant: VariantEL3,
			setup:   func(port *fakePort) { port.pending = 1 << 30 },
			want:    false,
		},
		{
			name:    "adapter-failure",
			variant: VariantEL3,
			setup:   func(port *fakePort) { port.bits = regs.S_ADAPTER_FAILURE },
			want:    false,
		},
		{
			name:    "dma-healthy",
			variant: VariantVortex,
			setup: func(port *fakePort) {
				port.setReg16(0, testBase+regs.W1_TX_FREE, 0x0400)
			},
			want: true,
		},
		{
			name:    "dma-no-free-space",
			variant: VariantVortex,
			setup:   func(port *fakePort) {},
			want:    false,
		},
		{
			name:    "dma-implausible-free-space",
			variant: VariantVortex,
			setup: func(port *fakePort) {
				port.setReg16(0, testBase+regs.W1_TX_FREE, 0x4000)
			},
			want: false,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec, port := newTestRecovery(tc.variant)
			tc.setup(port)

			ncmds := len(port.cmds)
			if got, want := rec.HealthCheck(0), tc.want; got != want {
				t.Fatalf("invalid health: got=%v, want=%v", got, want)
			}
			if got, want := len(port.cmds), ncmds; got != want {
				t.Fatalf("health check mutated hardware state: %d commands issued", got-want)
			}
		})
	}
}

func TestDumpRegisters(t *testing.T) {
	rec, port := newTestRecovery(VariantVortex)
	port.setReg16(regs.WIN_OPS, testBase+regs.W1_TX_FREE, 0x0400)

	o := new(strings.Builder)
	err := rec.DumpRegisters(0, o)
	if err != nil {
		t.Fatalf("could not dump registers: %+v", err)
	}
	for _, want := range []string{"status:", "rx-status:", "tx-status:", "tx-free:"} {
		if !strings.Contains(o.String(), want) {
			t.Fatalf("missing %q in dump:\n%s", want, o.String())
		}
	}

	err = rec.DumpRegisters(42, io.Discard)
	if err == nil {
		t.Fatalf("expected an error dumping an absent NIC")
	}
}
