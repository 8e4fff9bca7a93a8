// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert delivers fire-and-forget operator notifications for the
// fault-recovery layer. Senders never inspect delivery results: a lost
// alert must not affect recovery control flow.
package alert // import "github.com/go-nic/elx/alert"

import (
	"log"
)

// Kind names a class of alert.
type Kind string

const (
	ErrRateHigh    Kind = "error-rate-high"
	AdapterFailure Kind = "adapter-failure"
	TempHigh       Kind = "temperature-high"
)

// Sink receives alerts. Implementations must not block the caller beyond
// what a local log write would.
type Sink interface {
	Notify(kind Kind, msg string)
}

// Func adapts a function to the Sink interface.
type Func func(kind Kind, msg string)

func (f Func) Notify(kind Kind, msg string) { f(kind, msg) }

// Log is a Sink that writes alerts to a logger.
type Log struct {
	msg *log.Logger
}

func NewLog(msg *log.Logger) *Log {
	return &Log{msg: msg}
}

func (l *Log) Notify(kind Kind, msg string) {
	l.msg.Printf("ALERT [%s]: %s", kind, msg)
}

// Multi fans an alert out to several sinks.
type Multi []Sink

func (m Multi) Notify(kind Kind, msg string) {
	for _, sink := range m {
		sink.Notify(kind, msg)
	}
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Notify(kind Kind, msg string) {}
