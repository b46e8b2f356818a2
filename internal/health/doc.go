// Package health serves GET /health. The document reports whether the
// process is accepting requests and whether an upstream credential is
// configured; it never calls the upstream.
package health
