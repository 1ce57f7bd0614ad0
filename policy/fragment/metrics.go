package fragment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var fragmentFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_fragment_fetches",
	Help: "Number of remote policy fragment fetches, by reference kind and outcome",
}, []string{"kind", "status"})

var fragmentFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name: "modpolicy_fragment_fetch_duration_sec",
	Help: "Duration of remote policy fragment fetches over HTTP",
})
