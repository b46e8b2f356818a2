// Package httpserver runs the proxy's http.Server: it validates the listen
// address, optionally unwraps PROXY protocol headers, and shuts down
// gracefully.
package httpserver
