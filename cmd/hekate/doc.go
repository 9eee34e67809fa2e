// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main provides hekate's supervisor entry point.

# Overview

cmd/hekate is hekate's executable entry point: a long-running supervisor
process that decomposes operator-submitted epics, routes ready tasks to
one of several LLM coding providers, and supervises the resulting child
agent processes to completion. It loads a YAML configuration file,
verifies coordination-store connectivity, and runs the scheduler loop
until interrupted.

# Core types

  - wiring.App (internal/wiring) — built by wiring.BuildSupervisor, wires
    every internal package (store, router, agent manager, supervisor) from
    loaded configuration

# Main capabilities

  - Subcommands: serve (run the supervisor loop), version, health
  - Config search order: ~/.hekate/config.yaml,
    ~/.config/hekate/config.yaml, bundled defaults
  - Structured logging via zap, level and format driven by config.yaml
  - Graceful shutdown: SIGINT/SIGTERM kills every live agent before exit
*/
package main
