// Package config loads the proxy configuration from a .env file, an optional
// YAML file and environment variables. The resulting Config is built once at
// startup and passed to the components that need it; it holds the listening
// address, the upstream model and credential, static asset and CORS settings,
// and the log level.
package config
