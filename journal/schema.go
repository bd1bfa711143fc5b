package journal

// Schema is the journal DDL. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	request_id   TEXT PRIMARY KEY,
	phone        TEXT NOT NULL,
	message      TEXT NOT NULL,
	requested_at INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	strategy     TEXT NOT NULL DEFAULT '',
	finished_at  INTEGER
);

CREATE INDEX IF NOT EXISTS idx_deliveries_requested ON deliveries(requested_at DESC);

CREATE TABLE IF NOT EXISTS delivery_attempts (
	request_id TEXT NOT NULL REFERENCES deliveries(request_id) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	strategy   TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT '',
	started_at INTEGER NOT NULL,
	ended_at   INTEGER NOT NULL,
	PRIMARY KEY (request_id, seq)
);
`
