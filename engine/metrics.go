// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/relay/utils/wrappers"
)

type metrics struct {
	loaded           prometheus.Counter
	approved         prometheus.Counter
	executed         prometheus.Counter
	executionsFailed prometheus.Counter
	sigsAccepted     prometheus.Counter
	sigsDuplicate    prometheus.Counter
	sigsPerCall      prometheus.Histogram
	proposals        prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "operations_loaded",
			Help: "Number of operations loaded",
		}),
		approved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "operations_approved",
			Help: "Number of operations that reached consensus",
		}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "operations_executed",
			Help: "Number of operations executed",
		}),
		executionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "executions_failed",
			Help: "Number of execution attempts rolled back by a failing target",
		}),
		sigsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signatures_accepted",
			Help: "Number of signatures from new signers",
		}),
		sigsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signatures_duplicate",
			Help: "Number of signatures skipped because the signer was already counted",
		}),
		sigsPerCall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signatures_per_call",
			Help:    "Number of signatures submitted per sign call",
			Buckets: prometheus.LinearBuckets(1, 3, 6),
		}),
		proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proposals",
			Help: "Number of outbound proposals emitted",
		}),
	}

	errs := wrappers.Errs{}
	errs.Add(
		registerer.Register(m.loaded),
		registerer.Register(m.approved),
		registerer.Register(m.executed),
		registerer.Register(m.executionsFailed),
		registerer.Register(m.sigsAccepted),
		registerer.Register(m.sigsDuplicate),
		registerer.Register(m.sigsPerCall),
		registerer.Register(m.proposals),
	)
	return m, errs.Err
}
