package recorder

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at       INTEGER NOT NULL,
	connected         INTEGER NOT NULL,
	armed             INTEGER,
	mode              TEXT,
	lat               REAL,
	lon               REAL,
	alt_m             REAL,
	groundspeed_m_s   REAL,
	heading_deg       REAL,
	voltage_v         REAL,
	current_a         REAL,
	remaining_pct     REAL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_recorded_at ON snapshots(recorded_at);

CREATE TABLE IF NOT EXISTS commands (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	recorded_at  INTEGER NOT NULL,
	subscriber   TEXT,
	action       TEXT NOT NULL,
	params       TEXT,
	ok           INTEGER NOT NULL,
	message      TEXT NOT NULL,
	latency_ms   REAL NOT NULL
);
`

const insertSnapshotSQL = `
INSERT INTO snapshots (
	recorded_at, connected, armed, mode, lat, lon, alt_m,
	groundspeed_m_s, heading_deg, voltage_v, current_a, remaining_pct
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertCommandSQL = `
INSERT INTO commands (recorded_at, subscriber, action, params, ok, message, latency_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)`

const selectSnapshotsSQL = `
SELECT recorded_at, connected, armed, mode, lat, lon, alt_m,
	groundspeed_m_s, heading_deg, voltage_v, current_a, remaining_pct
FROM snapshots ORDER BY id DESC LIMIT ?`

const selectCommandsSQL = `
SELECT recorded_at, subscriber, action, params, ok, message, latency_ms
FROM commands ORDER BY id DESC LIMIT ?`
