// Package handler implements POST /api/generate, the forwarding endpoint of
// the proxy. It checks that a credential is configured, validates that the
// body is JSON, forwards it to the upstream and maps the outcome to the
// client response: the upstream JSON on success, the upstream status with a
// "Google API Error" message on upstream failure, or a generic 500.
package handler
