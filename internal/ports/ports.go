// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ports gives access to x86 port-mapped I/O space through the
// /dev/port character device.
package ports // import "github.com/go-nic/elx/internal/ports"

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// DevPort is the default port I/O space device.
const DevPort = "/dev/port"

var (
	errClosed = errors.New("ports: closed")
)

// Handle exposes a port I/O space as a random-access byte stream.
// Offsets are absolute port addresses.
type Handle struct {
	fd int
}

// Open opens the port I/O space at name (usually DevPort).
func Open(name string) (*Handle, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("ports: could not open %q: %w", name, err)
	}
	h := &Handle{fd: fd}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h, nil
}

// Close closes the port I/O handle.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}

	if h.fd < 0 {
		return nil
	}
	fd := h.fd
	h.fd = -1
	runtime.SetFinalizer(h, nil)

	return unix.Close(fd)
}

// ReadAt implements the io.ReaderAt interface.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.fd < 0 {
		return 0, errClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("ports: invalid ReadAt offset %d", off)
	}
	n, err := unix.Pread(h.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("ports: could not read port 0x%x: %w", off, err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements the io.WriterAt interface.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h == nil {
		return 0, os.ErrInvalid
	}

	if h.fd < 0 {
		return 0, errClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("ports: invalid WriteAt offset %d", off)
	}
	n, err := unix.Pwrite(h.fd, p, off)
	if err != nil {
		return n, fmt.Errorf("ports: could not write port 0x%x: %w", off, err)
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

var (
	_ io.ReaderAt = (*Handle)(nil)
	_ io.WriterAt = (*Handle)(nil)
	_ io.Closer   = (*Handle)(nil)
)
