// Copyright (c) Hekate Authors.
// Licensed under the MIT License.

/*
Package config loads hekate's configuration: per-provider quota and pool
sizing, the supervisor's agent pool cap, per-complexity iteration budgets,
the router's conservative-usage thresholds, and the coordination store and
semantic index connection settings.

# Overview

Config is assembled through Loader, a builder that merges three sources in
order: built-in defaults, an optional YAML file, and environment variable
overrides (HEKATE_ prefixed by default, following the struct's nested `env`
tags). ResolveConfigPath implements the supervisor's config search order:
~/.hekate/config.yaml, then ~/.config/hekate/config.yaml, falling back to
the bundled defaults when neither exists.

# Usage

	cfg, err := config.NewLoader().
	    WithConfigPath(config.ResolveConfigPath()).
	    WithEnvPrefix("HEKATE").
	    WithValidator((*config.Config).Validate).
	    Load()
*/
package config
