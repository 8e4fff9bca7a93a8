// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errtrack

import (
	"time"

	"github.com/go-nic/elx/nic"
)

// buildStrategies populates the builtin strategy table. FaultPHY has no
// strategy: link negotiation is owned by the PHY itself and software only
// observes it.
func (tr *Tracker) buildStrategies() {
	for _, typ := range []FaultType{
		FaultTx,
		FaultRxOverrun,
		FaultInterrupt,
		FaultTimeout,
		FaultMemory,
		FaultPHY,
	} {
		if s := tr.newStrategy(typ); s != nil {
			tr.strat = append(tr.strat, s)
		}
	}
}

func (tr *Tracker) newStrategy(typ FaultType) *strategy {
	switch typ {
	case FaultTx:
		return &strategy{
			typ:      typ,
			name:     "tx-recovery",
			priority: 1,
			cooldown: 1 * time.Second,
			fn: func(nicID uint32, code Code) Status {
				return statusOf(tr.rec.Dispatch(nicID, nic.ProcTx, tr.escalate))
			},
		}
	case FaultRxOverrun:
		return &strategy{
			typ:      typ,
			name:     "rx-overflow-recovery",
			priority: 1,
			cooldown: 500 * time.Millisecond,
			fn: func(nicID uint32, code Code) Status {
				return statusOf(tr.rec.RecoverRxOverflow(nicID))
			},
		}
	case FaultInterrupt:
		return &strategy{
			typ:      typ,
			name:     "interrupt-recovery",
			priority: 2,
			cooldown: 2 * time.Second,
			fn: func(nicID uint32, code Code) Status {
				return statusOf(tr.rec.RecoverInterrupts(nicID))
			},
		}
	case FaultTimeout:
		return &strategy{
			typ:      typ,
			name:     "full-reset",
			priority: 3,
			cooldown: 5 * time.Second,
			fn: func(nicID uint32, code Code) Status {
				st := statusOf(tr.rec.FullReset(nicID))
				if st != StatusOK {
					return st
				}
				if !tr.rec.HealthCheck(nicID) {
					return StatusPartial
				}
				return StatusOK
			},
		}
	case FaultMemory:
		return &strategy{
			typ:      typ,
			name:     "memory-recovery",
			priority: 2,
			cooldown: 1 * time.Second,
			fn: func(nicID uint32, code Code) Status {
				return tr.recoverMemory()
			},
		}
	case FaultPHY:
		return nil
	}
	return nil
}

// statusOf maps a register-level recovery outcome to a tracker status.
func statusOf(out nic.Outcome) Status {
	switch out {
	case nic.OutcomeOK:
		return StatusOK
	case nic.OutcomeEscalated:
		return StatusEscalated
	case nic.OutcomeTimeout:
		return StatusTimeout
	case nic.OutcomeInvalid:
		return StatusInvalid
	}
	return StatusInvalid
}
