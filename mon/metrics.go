// Copyright 2024 The go-nic Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	faultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elx_faults_total",
			Help: "Total number of reported adapter faults",
		},
		[]string{"type"},
	)

	recoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elx_recoveries_total",
			Help: "Total number of recovery attempts by result",
		},
		[]string{"status"},
	)

	healthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elx_health_failures_total",
			Help: "Total number of failed adapter health checks",
		},
		[]string{"nic"},
	)

	boardTemp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "elx_board_temperature_celsius",
			Help: "Sideband board temperature",
		},
	)
)
