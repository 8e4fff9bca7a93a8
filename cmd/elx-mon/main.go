// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command elx-mon starts a TDAQ monitoring server for the adapter
// fault-recovery layer.
package main // import "github.com/go-nic/elx/cmd/elx-mon"

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/go-nic/elx/mon"
)

func main() {
	cmd := flags.New()

	if len(cmd.Args) != 1 {
		log.Fatalf("usage: elx-mon [tdaq-flags] config.yaml")
	}

	cfg, err := mon.LoadConfig(cmd.Args[0])
	if err != nil {
		log.Fatalf("could not load config: %+v", err)
	}

	if cfg.Metrics != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			err := http.ListenAndServe(cfg.Metrics, mux)
			if err != nil {
				log.Printf("could not serve metrics on %q: %+v", cfg.Metrics, err)
			}
		}()
	}

	dev := mon.NewServer(cfg)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/status", dev.Status)

	srv.RunHandle(dev.Run)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
