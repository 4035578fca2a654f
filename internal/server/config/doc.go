// Package config defines the rafter-node configuration.
//
//   - spec.go: NodeConfig struct definition
//   - default.go: default values
//   - verify.go: validation, all failures are domain.ErrConfiguration
//   - sanitize.go: masking of secrets for logging
//   - peers.go: conversion into the peer table and component configs
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and RAFTER_ environment variables.
package config
