// Package database provides SQLite connectivity for the gallery core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Immediate-lock transactions for check-then-write sequences
//   - Schema migrations embedded in the binary
//
// The returned *DB embeds *sql.DB; repositories take the *sql.DB and never
// reach for a package-level handle, so tests can open isolated databases.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql, and are registered by the migrations package.
package database
