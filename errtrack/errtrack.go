// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errtrack observes adapter faults across time, detects recurring
// patterns and bursts, and drives the register-level recovery procedures
// of package nic through a cooldown-gated strategy table.
//
// A Tracker is a plain context object: no global state, lifecycle
// bracketed by New and Close. It is not safe for concurrent use; the
// driver model is a single logical thread of control with interrupt-driven
// reentrancy, and the caller serializes fault reports at the boundary.
package errtrack // import "github.com/go-nic/elx/errtrack"

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/go-nic/elx/alert"
	"github.com/go-nic/elx/nic"
)

const (
	maxHistory  = 100
	maxPatterns = 20

	correlationWindow = 30 * time.Second
	patternThreshold  = 3
	burstThreshold    = 5
)

// FaultType is the closed set of fault classes the tracker knows about.
type FaultType uint8

const (
	FaultTx FaultType = iota
	FaultRxOverrun
	FaultInterrupt
	FaultTimeout
	FaultMemory
	FaultPHY
)

func (t FaultType) String() string {
	switch t {
	case FaultTx:
		return "tx-failure"
	case FaultRxOverrun:
		return "buffer-overrun"
	case FaultInterrupt:
		return "interrupt-error"
	case FaultTimeout:
		return "timeout"
	case FaultMemory:
		return "memory-error"
	case FaultPHY:
		return "phy-error"
	}
	return fmt.Sprintf("FaultType(%d)", uint8(t))
}

// Severity grades a fault from informational to critical.
type Severity uint8

const (
	SevInfo     Severity = 1
	SevWarning  Severity = 2
	SevError    Severity = 3
	SevCritical Severity = 4
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	case SevCritical:
		return "critical"
	}
	return fmt.Sprintf("Severity(%d)", uint8(s))
}

// Code is a fault code. Bits 28-31 carry the severity of the fault;
// codes without a mapped severity grade as warnings.
type Code uint32

const (
	sevShift = 28
	sevMask  = 0xf
)

// Severity extracts the embedded severity field of the code.
func (c Code) Severity() Severity {
	switch v := Severity(c >> sevShift & sevMask); v {
	case SevInfo, SevWarning, SevError, SevCritical:
		return v
	}
	return SevWarning
}

// Well-known fault codes.
const (
	CodeTxStall     Code = Code(SevError)<<sevShift | 0x0101
	CodeTxJabber    Code = Code(SevWarning)<<sevShift | 0x0102
	CodeRxOverrun   Code = Code(SevError)<<sevShift | 0x0201
	CodeIntrStorm   Code = Code(SevError)<<sevShift | 0x0301
	CodeIntrLost    Code = Code(SevWarning)<<sevShift | 0x0302
	CodeCmdTimeout  Code = Code(SevCritical)<<sevShift | 0x0401
	CodeOutOfMemory Code = Code(SevCritical)<<sevShift | 0x0501
	CodePHYDown     Code = Code(SevInfo)<<sevShift | 0x0601
)

// Status is the discrete result of a fault report or recovery attempt.
type Status uint8

const (
	StatusOK             Status = iota // recovered
	StatusEscalated                    // recovered, but only after a full reset
	StatusPartial                      // reset ran, health check still failing
	StatusBusy                         // strategy still cooling down
	StatusTimeout                      // recovery attempts exhausted
	StatusInvalid                      // tracking/recovery disabled or NIC invalid
	StatusNotImplemented               // no strategy for this fault type
	StatusNoMemory                     // memory recovery left the heap exhausted
	StatusCorrupt                      // heap integrity check failed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEscalated:
		return "escalated"
	case StatusPartial:
		return "partial"
	case StatusBusy:
		return "busy"
	case StatusTimeout:
		return "timeout"
	case StatusInvalid:
		return "invalid"
	case StatusNotImplemented:
		return "not-implemented"
	case StatusNoMemory:
		return "no-memory"
	case StatusCorrupt:
		return "corrupt"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Entry is one recorded fault occurrence.
type Entry struct {
	Time      time.Time
	Type      FaultType
	NIC       uint32
	Code      Code
	Severity  Severity
	Attempts  int
	Recovered bool
	Desc      string
	Context   string
}

// Pattern aggregates recurring faults of one (type, NIC) pair inside the
// correlation window. Patterns are never evicted, only refreshed.
type Pattern struct {
	Type      FaultType
	NIC       uint32
	Freq      int
	First     time.Time
	Last      time.Time
	Score     uint32
	Attempted bool
	Succeeded bool
}

// Stats are the monotonically increasing counters of the tracker.
type Stats struct {
	TotalErrors      uint64
	ErrorsRecovered  uint64
	RecoveryFailures uint64
	PatternsDetected uint64
}

type strategy struct {
	typ      FaultType
	name     string
	priority int
	cooldown time.Duration
	last     time.Time
	fn       func(nicID uint32, code Code) Status
}

// Tracker owns the error history, the pattern table and the recovery
// strategy table of one driver instance.
type Tracker struct {
	msg   MsgStream
	clk   clock.Clock
	rec   *nic.Recovery
	sink  alert.Sink
	alloc Allocator

	tracking    bool
	correlation bool
	recovery    bool
	escalate    bool

	hist  []Entry
	pats  []Pattern
	strat []*strategy
	burst bool

	stats Stats
}

// Option configures a Tracker.
type Option func(tr *Tracker)

// WithClock sets the clock source used for history timestamps,
// correlation-window arithmetic and cooldown gating.
func WithClock(clk clock.Clock) Option {
	return func(tr *Tracker) { tr.clk = clk }
}

// WithMsgStream sets the leveled logging sink.
func WithMsgStream(msg MsgStream) Option {
	return func(tr *Tracker) { tr.msg = msg }
}

// WithAlertSink sets the alerting sink.
func WithAlertSink(sink alert.Sink) Option {
	return func(tr *Tracker) { tr.sink = sink }
}

// WithAllocator sets the allocator introspection used by memory recovery.
func WithAllocator(alloc Allocator) Option {
	return func(tr *Tracker) { tr.alloc = alloc }
}

// WithEscalation controls whether a failed recovery procedure may fall
// back to a full hardware reset. Escalation is enabled by default.
func WithEscalation(on bool) Option {
	return func(tr *Tracker) { tr.escalate = on }
}

// New creates a Tracker driving the given recovery engine. Tracking,
// correlation and recovery all start enabled.
func New(rec *nic.Recovery, opts ...Option) *Tracker {
	tr := &Tracker{
		msg:   NewLogStream(nil),
		clk:   clock.New(),
		rec:   rec,
		sink:  alert.Nop{},
		alloc: NewRuntimeAllocator(),

		tracking:    true,
		correlation: true,
		recovery:    true,
		escalate:    true,

		hist: make([]Entry, 0, maxHistory),
		pats: make([]Pattern, 0, maxPatterns),
	}
	for _, opt := range opts {
		opt(tr)
	}
	tr.buildStrategies()
	return tr
}

// Close logs final statistics and drops the tracker state.
func (tr *Tracker) Close() error {
	tr.msg.Infof(
		"errtrack: total=%d recovered=%d failures=%d patterns=%d",
		tr.stats.TotalErrors, tr.stats.ErrorsRecovered,
		tr.stats.RecoveryFailures, tr.stats.PatternsDetected,
	)
	tr.tracking = false
	tr.hist = nil
	tr.pats = nil
	tr.strat = nil
	return nil
}

// SetTracking toggles fault tracking. With tracking off, Report rejects
// every fault with StatusInvalid.
func (tr *Tracker) SetTracking(on bool) { tr.tracking = on }

// SetCorrelation toggles pattern correlation and burst alerting.
func (tr *Tracker) SetCorrelation(on bool) { tr.correlation = on }

// SetRecovery toggles automatic recovery attempts.
func (tr *Tracker) SetRecovery(on bool) { tr.recovery = on }

// Stats returns a copy of the tracker counters.
func (tr *Tracker) Stats() Stats { return tr.stats }

// History returns a copy of the error history, oldest first.
func (tr *Tracker) History() []Entry {
	hist := make([]Entry, len(tr.hist))
	copy(hist, tr.hist)
	return hist
}

// Patterns returns a copy of the pattern table.
func (tr *Tracker) Patterns() []Pattern {
	pats := make([]Pattern, len(tr.pats))
	copy(pats, tr.pats)
	return pats
}

// Report records one fault occurrence: it appends a history entry (FIFO
// eviction beyond the capacity), correlates, and -- if recovery is enabled
// -- runs the matching strategy through its cooldown gate. Correlation
// always runs before the recovery attempt, so a pattern created by the
// current fault is visible to alerting in the same call.
//
// The returned status is the recovery outcome, or StatusOK when recovery
// is disabled for this tracker.
func (tr *Tracker) Report(typ FaultType, nicID uint32, code Code, desc, context string) Status {
	if tr == nil || !tr.tracking {
		return StatusInvalid
	}

	now := tr.clk.Now()
	tr.hist = append(tr.hist, Entry{
		Time:     now,
		Type:     typ,
		NIC:      nicID,
		Code:     code,
		Severity: code.Severity(),
		Desc:     desc,
		Context:  context,
	})
	if len(tr.hist) > maxHistory {
		n := copy(tr.hist, tr.hist[len(tr.hist)-maxHistory:])
		tr.hist = tr.hist[:n]
	}
	tr.stats.TotalErrors++

	tr.msg.Debugf("fault %v (nic=%d, code=0x%08x, sev=%v): %s",
		typ, nicID, uint32(code), code.Severity(), desc,
	)

	if tr.correlation {
		tr.correlate(now)
	}

	if !tr.recovery {
		return StatusOK
	}
	return tr.AttemptRecovery(typ, nicID, code, context)
}

type bucket struct {
	count int
	first time.Time
}

// correlate scans the whole history, bucketing in-window occurrences by
// (type, NIC) for pattern detection, and counting all in-window entries
// for burst alerting. The two triggers are independent.
func (tr *Tracker) correlate(now time.Time) {
	type key struct {
		typ FaultType
		nic uint32
	}

	var (
		buckets = make(map[key]*bucket)
		total   = 0
	)
	for i := range tr.hist {
		e := &tr.hist[i]
		if now.Sub(e.Time) > correlationWindow {
			continue
		}
		total++
		k := key{typ: e.Type, nic: e.NIC}
		b := buckets[k]
		if b == nil {
			b = &bucket{first: e.Time}
			buckets[k] = b
		}
		if e.Time.Before(b.first) {
			b.first = e.Time
		}
		b.count++
	}

	for k, b := range buckets {
		if b.count < patternThreshold {
			continue
		}
		tr.upsertPattern(k.typ, k.nic, b, now)
	}

	if total >= burstThreshold {
		if !tr.burst {
			tr.burst = true
			tr.msg.Warnf("error rate high: %d faults within %v", total, correlationWindow)
			tr.sink.Notify(alert.ErrRateHigh,
				fmt.Sprintf("%d faults within %v", total, correlationWindow),
			)
		}
	} else {
		tr.burst = false
	}
}

func (tr *Tracker) upsertPattern(typ FaultType, nicID uint32, b *bucket, now time.Time) {
	for i := range tr.pats {
		p := &tr.pats[i]
		if p.Type != typ || p.NIC != nicID {
			continue
		}
		p.Freq = b.count
		p.Last = now
		p.Score++
		return
	}

	if len(tr.pats) >= maxPatterns {
		tr.msg.Debugf("pattern table full, not recording %v (nic=%d)", typ, nicID)
		return
	}

	tr.pats = append(tr.pats, Pattern{
		Type:  typ,
		NIC:   nicID,
		Freq:  b.count,
		First: b.first,
		Last:  now,
		Score: 1,
	})
	tr.stats.PatternsDetected++
	tr.msg.Warnf("recurring fault pattern: %v (nic=%d, freq=%d within %v)",
		typ, nicID, b.count, correlationWindow,
	)
}

// AttemptRecovery runs the strategy for a fault type through its cooldown
// gate. A strategy still cooling down returns StatusBusy without invoking
// the recovery function and without touching any statistics. The cooldown
// timestamp is taken before the recovery function runs, so a slow or
// reentrant call cannot race the gate.
func (tr *Tracker) AttemptRecovery(typ FaultType, nicID uint32, code Code, context string) Status {
	if tr == nil || !tr.tracking || !tr.recovery {
		return StatusInvalid
	}

	s := tr.strategyFor(typ)
	if s == nil {
		tr.msg.Debugf("no recovery strategy for %v (nic=%d)", typ, nicID)
		return StatusNotImplemented
	}

	now := tr.clk.Now()
	if !s.last.IsZero() && now.Sub(s.last) < s.cooldown {
		tr.msg.Debugf("%s (nic=%d): cooling down (%v left)",
			s.name, nicID, s.cooldown-now.Sub(s.last),
		)
		return StatusBusy
	}
	s.last = now

	tr.msg.Infof("%s (nic=%d, code=0x%08x): attempting recovery [%s]",
		s.name, nicID, uint32(code), context,
	)
	st := s.fn(nicID, code)

	success := st == StatusOK || st == StatusEscalated
	for i := range tr.hist {
		e := &tr.hist[i]
		if e.Type != typ || e.NIC != nicID || e.Recovered {
			continue
		}
		e.Attempts++
		if success {
			e.Recovered = true
			tr.stats.ErrorsRecovered++
		}
	}

	for i := range tr.pats {
		p := &tr.pats[i]
		if p.Type != typ || p.NIC != nicID {
			continue
		}
		p.Attempted = true
		if success {
			p.Succeeded = true
		}
	}

	switch {
	case success:
		tr.msg.Infof("%s (nic=%d): %v", s.name, nicID, st)
	case st == StatusPartial:
		tr.stats.RecoveryFailures++
		tr.msg.Warnf("%s (nic=%d): partial recovery, adapter still unhealthy", s.name, nicID)
	default:
		tr.stats.RecoveryFailures++
		tr.msg.Errorf("%s (nic=%d): recovery failed: %v", s.name, nicID, st)
	}
	return st
}

// strategyFor looks up the single strategy for a fault type.
func (tr *Tracker) strategyFor(typ FaultType) *strategy {
	for _, s := range tr.strat {
		if s.typ == typ {
			return s
		}
	}
	return nil
}
