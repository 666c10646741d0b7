// Package config loads gateway configuration from YAML files and environment
// variables. It covers the listener, logging, backend client timeouts, retry
// and circuit breaker policy, namespace aliases, and backends registered at
// startup.
package config
