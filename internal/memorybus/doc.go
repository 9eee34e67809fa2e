// Package memorybus is the cross-agent learning channel: a short-lived
// per-pattern FIFO held in the coordination store, and a long-lived
// semantic index keyed by the embedding of a command pattern. Agents read
// from both before acting and write to both after a tool use completes,
// so a solution one agent found becomes a suggestion the next agent sees.
package memorybus
