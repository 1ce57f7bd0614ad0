package resources

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_resource_cache_requests",
	Help: "Resource cache lookups, by resource and outcome",
}, []string{"name", "status"})
