// Copyright 2024 The ai-tournament Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evaluator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Atsuyo64/ai-tournament/pkg/matchrun"
)

// PrometheusMetrics is the default Metrics implementation: three counters,
// a histogram and a gauge registered against a private registry, so a run's
// metrics never collide with another package's use of the global
// DefaultRegisterer.
type PrometheusMetrics struct {
	registry    *prometheus.Registry
	matches     *prometheus.CounterVec
	duration    prometheus.Histogram
	disqualDQ   *prometheus.CounterVec
	runsTotal   prometheus.Counter
	agentsTotal prometheus.Gauge
}

// NewPrometheusMetrics builds a PrometheusMetrics with its own registry
// and registers every collector against it.
func NewPrometheusMetrics() *PrometheusMetrics {
	m := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_matches_total",
			Help: "Matches completed, labeled by each participant's termination reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arena_match_duration_seconds",
			Help:    "Wall-clock duration of completed matches.",
			Buckets: prometheus.DefBuckets,
		}),
		disqualDQ: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_agents_disqualified_total",
			Help: "Agent-match participations ending in disqualification, labeled by agent name.",
		}, []string{"agent"}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arena_runs_total",
			Help: "Tournament runs completed.",
		}),
		agentsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_run_agents",
			Help: "Number of agents discovered in the most recent run.",
		}),
	}

	m.registry.MustRegister(m.matches, m.duration, m.disqualDQ, m.runsTotal, m.agentsTotal)
	return m
}

// Registry exposes the private registry for an HTTP handler to serve.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveMatch records one completed match's outcome.
func (m *PrometheusMetrics) ObserveMatch(outcome matchrun.Outcome) {
	m.duration.Observe(outcome.Elapsed.Seconds())
	for agent, reason := range outcome.Reasons {
		m.matches.WithLabelValues(reason.String()).Inc()
		if reason == matchrun.Disqualified {
			m.disqualDQ.WithLabelValues(agent).Inc()
		}
	}
}

// ObserveRun records a completed tournament run's final size.
func (m *PrometheusMetrics) ObserveRun(agents int, matches int) {
	m.runsTotal.Inc()
	m.agentsTotal.Set(float64(agents))
}
