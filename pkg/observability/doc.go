/*
Package observability provides tools for monitoring the Rewind undo engine.

Everything here is built on domain.LifecycleHooks: Metrics turns unit lifecycle and
replay events into Prometheus collectors, and LogHooks writes them as structured logs.
Both can be combined with LifecycleHooks.Merge.
*/
package observability
