//go:build purego_sqlite

// Pure Go SQLite driver using modernc.org/sqlite.
// Build with: go build -tags purego_sqlite
// Encrypted files cannot be opened in this mode.
package backends

import (
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)
