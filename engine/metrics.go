package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "modpolicy_pass_duration_sec",
	Help: "Total duration of an evaluation pass over one item",
}, []string{"kind"})

var passCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_passes",
	Help: "Number of evaluation passes, by item kind",
}, []string{"kind"})

var passErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_pass_errors",
	Help: "Number of evaluation passes aborted by a rule failure",
}, []string{"kind"})

var ruleInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_rule_invocations",
	Help: "Number of times rule logic was run, by rule kind",
}, []string{"kind"})

var ruleSkips = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_rule_skips",
	Help: "Number of rules skipped by a filter gate",
}, []string{"kind", "gate"})

var premiseCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_premise_cache_hits",
	Help: "Number of rule results served from the per-pass premise cache",
}, []string{"kind"})

var ruleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_rule_errors",
	Help: "Number of rule processing failures, by rule kind",
}, []string{"kind"})

var checkTriggers = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modpolicy_check_triggers",
	Help: "Number of triggered checks",
})

var actionDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modpolicy_action_dispatches",
	Help: "Number of actions handed to the dispatcher, by action kind and outcome",
}, []string{"kind", "status"})
