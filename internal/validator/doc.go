// Package validator checks inbound gateway requests before anything else
// touches them and turns them into typed requests.
//
// Tool and prompt names must be "namespace.name"; the older
// "namespace__name" form is rewritten to the dotted form first. Arguments
// must be objects and may not contain the keys listed in ForbiddenKeys at any
// depth. Resource URIs need an allowed scheme.
//
// Go maps carry no inherited attributes, so the forbidden-key check exists
// only to protect backends that do; SanitizeInput strips the same keys from
// whatever is forwarded.
package validator
