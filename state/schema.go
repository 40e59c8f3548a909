package state

// schema holds the single current snapshot per target plus the two
// observability logs. Timestamps are Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	target_key  TEXT PRIMARY KEY,
	fingerprint TEXT NOT NULL,
	captured_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS heartbeats (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	target_key TEXT NOT NULL,
	status     TEXT NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	emitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_emitted ON heartbeats(target_key, emitted_at DESC);

CREATE TABLE IF NOT EXISTS deliveries (
	id         TEXT PRIMARY KEY,
	event_id   TEXT NOT NULL,
	channel    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at DESC);
`
