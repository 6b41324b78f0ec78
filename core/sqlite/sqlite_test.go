package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName == "" || info.DriverType == "" || info.Package == "" {
		t.Errorf("incomplete driver info: %+v", info)
	}
	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}

	t.Logf("SQLite driver: %s (%s) from %s", info.DriverName, info.DriverType, info.Package)
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE scores (id INTEGER PRIMARY KEY, title TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO scores (title) VALUES (?)`, "Chouon"); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	var title string
	if err := db.QueryRow(`SELECT title FROM scores WHERE id = 1`).Scan(&title); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if title != "Chouon" {
		t.Errorf("title = %q", title)
	}

	var fk int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil || fk != 1 {
		t.Errorf("foreign_keys = %d, %v", fk, err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ro.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE t (v INTEGER)`); err != nil {
		t.Fatal(err)
	}
	db.Close()

	ro, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer ro.Close()

	if _, err := ro.Exec(`INSERT INTO t (v) VALUES (1)`); err == nil {
		t.Error("write through read-only handle should fail")
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	db, err := Open(filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	steps := []string{
		`CREATE TABLE a (id INTEGER)`,
		`CREATE TABLE b (id INTEGER)`,
	}
	if err := Migrate(ctx, db, steps); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// Re-running applies nothing new.
	if err := Migrate(ctx, db, steps); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	steps = append(steps, `ALTER TABLE a ADD COLUMN name TEXT`)
	if err := Migrate(ctx, db, steps); err != nil {
		t.Fatalf("third Migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Errorf("user_version = %d, want 3", version)
	}

	if err := Migrate(ctx, db, append(steps, `NOT SQL`)); err == nil {
		t.Error("bad migration should fail")
	}
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil || version != 3 {
		t.Errorf("user_version after failed migration = %d, %v", version, err)
	}
}
