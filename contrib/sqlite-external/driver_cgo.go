//go:build cgo_sqlite

package sqliteexternal

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the database/sql name ScoreShift registers the CGO driver under.
	DriverName = "scoreshift-sqlite3"

	// DriverType identifies this as the CGO implementation.
	DriverType = "cgo"

	// DriverPackage is the import path of the underlying driver.
	DriverPackage = "github.com/mattn/go-sqlite3"
)

// Every new connection waits up to 5s on a locked ledger instead of
// failing with SQLITE_BUSY.
func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA busy_timeout = 5000", nil)
			return err
		},
	})
}
