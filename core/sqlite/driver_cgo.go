//go:build cgo_sqlite

// CGO SQLite driver using mattn/go-sqlite3, selected with -tags cgo_sqlite.
// The driver import lives in contrib/sqlite-external.
package sqlite

import (
	sqliteexternal "github.com/FocuswithJustin/ScoreShift/contrib/sqlite-external"
)

const (
	driverName    = sqliteexternal.DriverName
	driverType    = sqliteexternal.DriverType
	driverPackage = sqliteexternal.DriverPackage + " (via contrib/sqlite-external)"
)
