// Package static serves the browser client from a fixed directory. Request
// paths are resolved with filepath-securejoin so neither ".." segments nor
// symlinks can reach files outside the directory.
package static
