package sqlite

import "time"

// Config is the SQLite slice of the database settings.
type Config struct {
	Path            string // file path or ":memory:"
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// BusyTimeout bounds how long a writer waits on a locked database.
	BusyTimeout time.Duration
}
