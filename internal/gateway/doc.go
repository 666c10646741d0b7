// Package gateway wires the registry, breakers, backend client, aggregator,
// metrics and health prober into one value that request handlers receive
// explicitly. Nothing in the gateway is held in package-level state, so
// every test can build its own.
package gateway
