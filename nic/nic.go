// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nic implements the hardware side of the fault-recovery layer for
// legacy EtherLink-class Ethernet adapters: the window-banked register
// protocol, and bounded register-level recovery procedures (TX, RX-overflow,
// interrupt recovery and full reset) with escalation and statistics.
//
// The package drives cards through port-mapped I/O expressed as an
// io.ReaderAt/io.WriterAt pair, so tests can substitute an in-memory fake
// for the /dev/port handle.
package nic // import "github.com/go-nic/elx/nic"

import (
	"fmt"
	"sort"
)

// Variant tags the adapter generation a Device belongs to.
type Variant uint8

const (
	VariantUnknown Variant = iota
	VariantEL3              // 3C509-class ISA, PIO only
	VariantPCMCIA           // 3C589-class PC-Card, PIO only
	VariantVortex           // 3C59x-class, PIO with bus-master DMA
	VariantBoomerang        // 3C90x-class, descriptor-based DMA
)

// DMA reports whether the variant is bus-master capable.
func (v Variant) DMA() bool {
	return v == VariantVortex || v == VariantBoomerang
}

func (v Variant) String() string {
	switch v {
	case VariantUnknown:
		return "unknown"
	case VariantEL3:
		return "el3"
	case VariantPCMCIA:
		return "pcmcia"
	case VariantVortex:
		return "vortex"
	case VariantBoomerang:
		return "boomerang"
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// VariantFrom maps an inventory tag to a Variant.
func VariantFrom(name string) (Variant, error) {
	switch name {
	case "el3", "3c509":
		return VariantEL3, nil
	case "pcmcia", "3c589":
		return VariantPCMCIA, nil
	case "vortex", "3c59x":
		return VariantVortex, nil
	case "boomerang", "3c90x":
		return VariantBoomerang, nil
	}
	return VariantUnknown, fmt.Errorf("nic: unknown adapter variant %q", name)
}

// Registry maps NIC indices to device handles.
//
// The registry itself never touches hardware: it only hands out handles
// that were registered by whoever brought the cards up.
type Registry struct {
	devs map[uint32]*Device
}

func NewRegistry() *Registry {
	return &Registry{devs: make(map[uint32]*Device)}
}

// Register binds a device handle to a NIC index, replacing any previous one.
func (reg *Registry) Register(id uint32, dev *Device) {
	reg.devs[id] = dev
}

// Device returns the handle for a NIC index, or nil if none is registered.
func (reg *Registry) Device(id uint32) *Device {
	return reg.devs[id]
}

// IDs returns the registered NIC indices, sorted.
func (reg *Registry) IDs() []uint32 {
	ids := make([]uint32, 0, len(reg.devs))
	for id := range reg.devs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
