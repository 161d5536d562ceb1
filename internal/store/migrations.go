package store

// migrations are applied in order; index i is schema version i+1.
var migrations = []string{
	`CREATE TABLE tunnel_attempts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		provider    TEXT NOT NULL DEFAULT '',
		port        INTEGER NOT NULL,
		attempt     INTEGER NOT NULL DEFAULT 0,
		outcome     TEXT NOT NULL,
		public_url  TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX idx_tunnel_attempts_provider ON tunnel_attempts(provider);
	CREATE INDEX idx_tunnel_attempts_created_at ON tunnel_attempts(created_at);`,
}
