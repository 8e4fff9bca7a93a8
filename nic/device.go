// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nic

import (
	"io"
	"log"
	"os"
)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// Device is a handle on one adapter: its port range, variant tag and
// liveness flag. The handle carries a sticky error: once a port access
// fails, subsequent accesses are no-ops until the error is collected.
//
// A Device is not safe for concurrent use; the recovery layer assumes a
// single logical thread of control per card.
type Device struct {
	msg     *log.Logger
	rw      rwer
	base    int64
	variant Variant
	ready   bool

	err  error
	xbuf [2]byte
}

// Option configures a Device.
type Option func(dev *Device)

// WithLogger sets the message logger of the device.
func WithLogger(msg *log.Logger) Option {
	return func(dev *Device) {
		dev.msg = msg
	}
}

// NewDevice creates a handle for an adapter at the given port base.
// rw is the port I/O space (usually a ports.Handle over /dev/port).
func NewDevice(rw rwer, base int64, variant Variant, opts ...Option) *Device {
	dev := &Device{
		msg:     log.New(os.Stdout, "elx: ", 0),
		rw:      rw,
		base:    base,
		variant: variant,
	}
	for _, opt := range opts {
		opt(dev)
	}
	return dev
}

// Base returns the port base address of the adapter.
func (dev *Device) Base() int64 { return dev.base }

// Variant returns the adapter variant tag.
func (dev *Device) Variant() Variant { return dev.variant }

// Ready reports whether the adapter has been brought up by the data path.
func (dev *Device) Ready() bool { return dev.ready }

// SetReady records the liveness of the adapter. The data path calls this
// after bring-up and before tear-down; recovery refuses to touch a card
// that is not marked ready.
func (dev *Device) SetReady(ready bool) { dev.ready = ready }

// Err returns the sticky port I/O error, if any.
func (dev *Device) Err() error { return dev.err }

func (dev *Device) clearErr() { dev.err = nil }
