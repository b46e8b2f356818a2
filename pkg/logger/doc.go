// Package logger builds the structured slog logger shared by the proxy:
// text output while developing, JSON in production.
package logger
