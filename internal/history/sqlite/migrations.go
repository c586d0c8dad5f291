package sqlite

// schema contains the database schema DDL.
const schema = `
-- Per-zone, per-day temperature aggregates
CREATE TABLE IF NOT EXISTS daily_aggregates (
    zone_id TEXT NOT NULL,
    date TEXT NOT NULL,
    sample_count INTEGER NOT NULL,
    temp_sum REAL NOT NULL,
    temp_min REAL NOT NULL,
    temp_max REAL NOT NULL,
    PRIMARY KEY (zone_id, date)
);
CREATE INDEX IF NOT EXISTS idx_aggregates_date ON daily_aggregates(date);

-- Last seen room name per zone
CREATE TABLE IF NOT EXISTS zone_names (
    zone_id TEXT PRIMARY KEY,
    name TEXT NOT NULL
);
`
