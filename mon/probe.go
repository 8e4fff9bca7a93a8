// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mon

import (
	"fmt"

	"github.com/go-daq/smbus"
)

type smdev interface {
	ReadReg(addr, reg uint8) (uint8, error)
	Close() error
}

var openSMBus = func(bus int, addr uint8) (smdev, error) {
	return smbus.Open(bus, addr)
}

// probe reads the board temperature off an SMBus sensor.
type probe struct {
	dev  smdev
	addr uint8
	reg  uint8
	max  uint8
}

func newProbe(cfg ProbeConfig) (*probe, error) {
	dev, err := openSMBus(cfg.Bus, cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("mon: could not open smbus %d (addr=0x%x): %w",
			cfg.Bus, cfg.Addr, err,
		)
	}
	return &probe{
		dev:  dev,
		addr: cfg.Addr,
		reg:  cfg.Reg,
		max:  cfg.Max,
	}, nil
}

// read returns the sensor temperature in degrees C and whether it exceeds
// the alert threshold.
func (p *probe) read() (uint8, bool, error) {
	v, err := p.dev.ReadReg(p.addr, p.reg)
	if err != nil {
		return 0, false, fmt.Errorf("mon: could not read temperature: %w", err)
	}
	return v, v > p.max, nil
}

func (p *probe) close() error {
	return p.dev.Close()
}
