// Package database owns the SQLite identity store for Access Core:
// the connection lifecycle, the WAL and busy-timeout pragmas, and the
// embedded schema migration runner.
//
// The store holds the only credential material at rest (password
// hashes and refresh token hashes; never raw secrets), so the file is
// created with 0600 permissions and all queries are parameterised.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration strategy:
//
// The schema only moves forward. Each change is a single .up.sql file;
// there is no down direction, so new columns must be NULLABLE or carry
// a DEFAULT, and columns are never dropped or renamed. A bad migration
// is corrected by the next one.
package database
