// Package sqliteexternal registers the CGO SQLite driver
// (github.com/mattn/go-sqlite3) for builds tagged cgo_sqlite.
//
//	CGO_ENABLED=1 go build -tags cgo_sqlite ./cmd/scoreshift
//
// Without the tag ScoreShift uses modernc.org/sqlite, which needs no C
// toolchain and cross-compiles cleanly. The CGO driver is faster on large
// history databases.
package sqliteexternal
