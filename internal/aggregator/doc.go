// Package aggregator presents every registered backend as one capability
// surface.
//
// List operations fan out to all eligible backends in parallel; a backend
// that fails is logged and left out, so a list never fails as a whole. Tool
// and prompt names are rewritten to "namespace.name", where the namespace is
// an alias from the Namespacer or the backend id with its suffix stripped.
// Single calls resolve the owning backend through the registry and run
// through that backend's circuit breaker around the client's retrying call.
package aggregator
