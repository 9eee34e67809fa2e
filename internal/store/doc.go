// Package store wraps Redis with the primitives the orchestrator needs for
// cross-process coordination: atomic claims, counters, bounded FIFO lists,
// set membership, and prefix scans. It is internal and should not be
// imported by external projects.
package store
