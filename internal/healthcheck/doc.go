// Package healthcheck periodically probes every registered backend and
// writes the outcome to the registry, which decides fan-out eligibility from
// it.
package healthcheck
