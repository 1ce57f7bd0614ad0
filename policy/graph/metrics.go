package graph

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var graphBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_graph_builds",
	Help: "Number of policy graph builds, by outcome",
}, []string{"status"})

var graphBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "modpolicy_graph_build_duration_sec",
	Help: "Duration of successful policy graph builds, including hydration",
})
