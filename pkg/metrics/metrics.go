// Copyright 2025 labeldb Developers. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Exporter interface {
	Export()
}

const (
	namespace = "labeldb"
)

var (
	compareDuration = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compare",
			Name:      "duration_seconds",
			Help:      "The total duration of database comparisons. Broken down by mode.",
		},
		[]string{"mode"},
	)

	compareCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compare",
			Name:      "count",
			Help:      "The total comparison runs. Broken down by mode.",
		},
		[]string{"mode"},
	)

	syncSlotsWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "slots_written",
			Help:      "The total image slots written by the synchronizer.",
		},
	)

	syncBytesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "bytes_written",
			Help:      "The total bytes written by the synchronizer.",
		},
	)

	transferBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transfer",
			Name:      "bytes_copied",
			Help:      "The total bytes copied by the chunked transfer engine.",
		},
	)
)

var register sync.Once
var Registry *prometheus.Registry
var exporter Exporter

func sinceInSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// Register registers metrics. This is always called only once.
func Register(exp Exporter) {
	register.Do(func() {
		Registry = prometheus.NewRegistry()
		Registry.MustRegister(compareDuration, compareCount, syncSlotsWritten, syncBytesWritten, transferBytes)
		exporter = exp
	})
}

func Export() {
	if exporter != nil {
		exporter.Export()
	}
}

func CompareDuration(mode string, start time.Time) {
	compareDuration.WithLabelValues(mode).Add(sinceInSeconds(start))
}

func CompareCount(mode string) {
	compareCount.WithLabelValues(mode).Inc()
}

func SyncSlotsWritten(slots int) {
	syncSlotsWritten.Add(float64(slots))
}

func SyncBytesWritten(bytes int64) {
	syncBytesWritten.Add(float64(bytes))
}

func TransferBytes(bytes int64) {
	transferBytes.Add(float64(bytes))
}
