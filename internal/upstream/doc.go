// Package upstream implements the outbound half of the proxy: a client for the
// generateContent endpoint of the Gemini API. The credential is attached as
// the key query parameter and the payload is sent byte-for-byte.
//
// Generate returns a *StatusError for non-2xx answers and wraps
// ErrInvalidResponse when a 2xx answer is not JSON. Transport errors carry a
// redacted URL so the credential never reaches logs.
package upstream
