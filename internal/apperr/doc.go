// Package apperr defines the error taxonomy shared by the gateway core.
//
// Callers match on the concrete types with errors.As:
//
//	var open *apperr.CircuitOpenError
//	if errors.As(err, &open) {
//	    // back off for open.RetryAfter
//	}
package apperr
