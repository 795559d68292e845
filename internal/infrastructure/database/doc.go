// Package database provides SQLite connectivity for the bridge's state journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Forward-only schema migrations loaded from an fs.FS
//   - Health checks and lifecycle
//
// The database is optional: Open returns ErrDisabled unless
// database.enabled is set. Nothing read from it ever feeds back into
// the bridge's device registry.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named NNN_description.sql and applied in version
// order, each in its own transaction.
package database
