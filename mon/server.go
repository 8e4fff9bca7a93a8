// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mon exposes the fault-recovery layer as a TDAQ-controlled
// monitoring service: a run loop health-checks every inventoried adapter,
// feeds faults to the error tracker and publishes prometheus metrics,
// with an optional SMBus temperature probe on the side.
package mon // import "github.com/go-nic/elx/mon"

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-daq/tdaq"
	tdaqlog "github.com/go-daq/tdaq/log"

	"github.com/go-nic/elx/alert"
	"github.com/go-nic/elx/errtrack"
	"github.com/go-nic/elx/internal/ports"
	"github.com/go-nic/elx/nic"
	"github.com/go-nic/elx/nicdb"
)

type portRW interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

type inventoryDB interface {
	Nics(ctx context.Context) ([]nicdb.Nic, error)
	LastProfile(ctx context.Context) (string, error)
	Profiles(ctx context.Context) ([]nicdb.Profile, error)
	Close() error
}

var (
	openPort = func() (portRW, error) {
		return ports.Open(ports.DevPort)
	}

	newDB = func(name string) (inventoryDB, error) {
		return nicdb.Open(name)
	}
)

// tdaqStream adapts the TDAQ message stream to the tracker logging
// surface.
type tdaqStream struct {
	msg tdaqlog.MsgStream
}

func (s tdaqStream) Debugf(format string, a ...interface{}) { s.msg.Debugf(format, a...) }
func (s tdaqStream) Infof(format string, a ...interface{})  { s.msg.Infof(format, a...) }
func (s tdaqStream) Warnf(format string, a ...interface{})  { s.msg.Warnf(format, a...) }
func (s tdaqStream) Errorf(format string, a ...interface{}) { s.msg.Errorf(format, a...) }

var _ errtrack.MsgStream = (*tdaqStream)(nil)

// Server drives the recovery layer under TDAQ control.
type Server struct {
	cfg Config

	port portRW
	reg  *nic.Registry
	rec  *nic.Recovery
	trk  *errtrack.Tracker
	prb  *probe
	sink alert.Sink

	nics []nicdb.Nic

	running bool
	status  chan []byte
}

// NewServer creates a monitoring server for the given configuration.
func NewServer(cfg Config) *Server {
	return &Server{
		cfg:    cfg,
		status: make(chan []byte, 1),
	}
}

// loadInventory resolves the adapter inventory, either from the site
// database or from the static configuration.
func (srv *Server) loadInventory(ctx context.Context) error {
	if srv.cfg.DB == "" {
		srv.nics = srv.nics[:0]
		for _, n := range srv.cfg.Nics {
			srv.nics = append(srv.nics, nicdb.Nic{
				ID:       n.ID,
				PortBase: n.PortBase,
				Variant:  n.Variant,
				Enabled:  true,
			})
		}
		return nil
	}

	db, err := newDB(srv.cfg.DB)
	if err != nil {
		return fmt.Errorf("mon: could not open inventory db: %w", err)
	}
	defer db.Close()

	nics, err := db.Nics(ctx)
	if err != nil {
		return fmt.Errorf("mon: could not load inventory: %w", err)
	}
	srv.nics = nics

	return srv.loadProfile(ctx, db)
}

// loadProfile applies the most recently activated recovery tuning profile
// on top of the static configuration. A site without profiles keeps the
// configured values.
func (srv *Server) loadProfile(ctx context.Context, db inventoryDB) error {
	name, err := db.LastProfile(ctx)
	if err != nil {
		return fmt.Errorf("mon: could not load recovery profile: %w", err)
	}
	if name == "" {
		return nil
	}

	profiles, err := db.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("mon: could not load recovery profiles: %w", err)
	}
	for _, p := range profiles {
		if p.Name != name {
			continue
		}
		srv.cfg.PollBound = p.PollBound
		srv.cfg.Escalate = p.Escalate
		return nil
	}
	return fmt.Errorf("mon: unknown recovery profile %q", name)
}

// setup opens the port I/O handle and builds the registry, the recovery
// engine and the tracker over the loaded inventory.
func (srv *Server) setup(msg errtrack.MsgStream) error {
	if len(srv.nics) == 0 {
		return fmt.Errorf("mon: empty adapter inventory")
	}

	port, err := openPort()
	if err != nil {
		return fmt.Errorf("mon: could not open port I/O: %w", err)
	}
	srv.port = port

	srv.reg = nic.NewRegistry()
	for _, n := range srv.nics {
		variant, err := nic.VariantFrom(n.Variant)
		if err != nil {
			return fmt.Errorf("mon: could not resolve nic %d: %w", n.ID, err)
		}
		dev := nic.NewDevice(port, n.PortBase, variant)
		dev.SetReady(true)
		srv.reg.Register(n.ID, dev)
	}

	var recOpts []nic.RecoveryOption
	if srv.cfg.PollBound > 0 {
		recOpts = append(recOpts, nic.WithPollBound(int(srv.cfg.PollBound)))
	}
	srv.rec = nic.NewRecovery(srv.reg, recOpts...)

	lg := log.New(os.Stdout, "elx-mon: ", 0)
	srv.sink = alert.Multi{
		alert.NewLog(lg),
		alert.NewMail(lg),
	}
	srv.trk = errtrack.New(srv.rec,
		errtrack.WithMsgStream(msg),
		errtrack.WithAlertSink(srv.sink),
		errtrack.WithEscalation(srv.cfg.Escalate),
	)

	if srv.cfg.Probe.Enabled {
		prb, err := newProbe(srv.cfg.Probe)
		if err != nil {
			return err
		}
		srv.prb = prb
	}
	return nil
}

// teardown releases everything setup acquired.
func (srv *Server) teardown() error {
	srv.running = false
	if srv.trk != nil {
		_ = srv.trk.Close()
		srv.trk = nil
	}
	if srv.rec != nil {
		_ = srv.rec.Close()
		srv.rec = nil
	}
	if srv.prb != nil {
		_ = srv.prb.close()
		srv.prb = nil
	}
	if srv.port != nil {
		err := srv.port.Close()
		srv.port = nil
		if err != nil {
			return fmt.Errorf("mon: could not close port I/O: %w", err)
		}
	}
	return nil
}

// step runs one monitoring pass: health-check every adapter, report the
// unhealthy ones, read the temperature probe and publish a status
// snapshot.
func (srv *Server) step() {
	for _, n := range srv.nics {
		if srv.rec.HealthCheck(n.ID) {
			continue
		}
		healthFailures.WithLabelValues(strconv.FormatUint(uint64(n.ID), 10)).Inc()
		faultsTotal.WithLabelValues(errtrack.FaultTimeout.String()).Inc()

		st := srv.trk.Report(
			errtrack.FaultTimeout, n.ID, errtrack.CodeCmdTimeout,
			"health check failed", "mon",
		)
		recoveriesTotal.WithLabelValues(st.String()).Inc()
		srv.sink.Notify(alert.AdapterFailure,
			fmt.Sprintf("nic %d failed its health check (recovery: %v)", n.ID, st),
		)
	}

	if srv.prb != nil {
		v, hot, err := srv.prb.read()
		if err == nil {
			boardTemp.Set(float64(v))
			if hot {
				srv.sink.Notify(alert.TempHigh,
					fmt.Sprintf("board at %dC (max=%dC)", v, srv.prb.max),
				)
			}
		}
	}

	buf := new(bytes.Buffer)
	if err := srv.trk.Export(buf); err == nil {
		select {
		case srv.status <- buf.Bytes():
		default:
		}
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	err := srv.loadInventory(ctx.Ctx)
	if err != nil {
		ctx.Msg.Errorf("could not load inventory: %+v", err)
		return err
	}
	ctx.Msg.Infof("inventory: %d adapter(s)", len(srv.nics))
	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	err := srv.setup(tdaqStream{msg: ctx.Msg})
	if err != nil {
		ctx.Msg.Errorf("could not setup monitor: %+v", err)
		return err
	}
	for _, id := range srv.reg.IDs() {
		ctx.Msg.Infof("nic %d: healthy=%v", id, srv.rec.HealthCheck(id))
	}
	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return srv.teardown()
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	if srv.trk == nil {
		return fmt.Errorf("mon: monitor not initialized")
	}
	srv.running = true
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	srv.running = false
	if srv.trk != nil {
		stats := srv.trk.Stats()
		ctx.Msg.Infof("faults=%d recovered=%d failures=%d",
			stats.TotalErrors, stats.ErrorsRecovered, stats.RecoveryFailures,
		)
	}
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return srv.teardown()
}

// Status streams tracker state snapshots to the /status output channel.
func (srv *Server) Status(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case body := <-srv.status:
		dst.Body = body
	}
	return nil
}

// Run is the monitoring loop, polling adapters at the configured period
// while the run is active.
func (srv *Server) Run(ctx tdaq.Context) error {
	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		default:
			if srv.running {
				srv.step()
			}
		}
		time.Sleep(time.Duration(srv.cfg.Period))
	}
}
