package auditlog

import "database/sql"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS poll_ticks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at DATETIME NOT NULL,
		outcome TEXT NOT NULL,
		consecutive_failures INTEGER NOT NULL,
		error_taxonomy TEXT,
		detail TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_poll_ticks_occurred_at ON poll_ticks(occurred_at)`,
}

func runMigrations(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
