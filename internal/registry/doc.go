// Package registry holds the backends known to the gateway and the
// capability index used to route namespaced names to them.
//
// Tools and prompts are indexed as "{backendID}.{name}", resources under
// their literal URI. Resolution tries the exact key first and, for tools and
// prompts, falls back to matching the namespace against registered ids so a
// capability added to a backend after registration can still be reached.
package registry
