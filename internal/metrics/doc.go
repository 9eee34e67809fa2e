/*
Package metrics exposes the Prometheus instrumentation the supervisor loop
and hook subprocesses report: routing decisions, task outcomes and
duration, per-provider quota remaining and warnings, agent state and
transitions, epic progress, verification runs, memory bus activity, and
epic decomposition calls.

Collector registers every metric through promauto on construction, so a
process needs only one Collector per namespace. Hook subprocesses that
share a Prometheus pushgateway or textfile collector construct their own
Collector against the same namespace as the supervisor.
*/
package metrics
