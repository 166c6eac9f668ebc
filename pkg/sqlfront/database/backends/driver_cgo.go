//go:build !purego_sqlite

package backends

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver; SQLCipher when built with -tags libsqlite3
)

const (
	driverName    = "sqlite3"
	driverType    = "cgo"
	driverPackage = "github.com/mattn/go-sqlite3"
)
