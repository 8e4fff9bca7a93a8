// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package errtrack

import (
	"log"
	"os"
)

// MsgStream is the leveled logging surface the tracker writes to.
type MsgStream interface {
	Debugf(format string, a ...interface{})
	Infof(format string, a ...interface{})
	Warnf(format string, a ...interface{})
	Errorf(format string, a ...interface{})
}

// LogStream adapts a standard library logger to MsgStream.
type LogStream struct {
	msg *log.Logger
}

// NewLogStream wraps the given logger. A nil logger yields a stream
// writing to os.Stdout with an "elx: " prefix.
func NewLogStream(msg *log.Logger) *LogStream {
	if msg == nil {
		msg = log.New(os.Stdout, "elx: ", 0)
	}
	return &LogStream{msg: msg}
}

func (s *LogStream) Debugf(format string, a ...interface{}) {
	s.msg.Printf("DBG "+format, a...)
}

func (s *LogStream) Infof(format string, a ...interface{}) {
	s.msg.Printf("INF "+format, a...)
}

func (s *LogStream) Warnf(format string, a ...interface{}) {
	s.msg.Printf("WRN "+format, a...)
}

func (s *LogStream) Errorf(format string, a ...interface{}) {
	s.msg.Printf("ERR "+format, a...)
}

var _ MsgStream = (*LogStream)(nil)
