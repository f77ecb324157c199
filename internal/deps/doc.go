// Package deps checks that external binaries are installed and resolvable
// from PATH.
package deps
