package database

const schema = `
-- Named cache partitions (one row per cache name, version tag embedded in the name)
CREATE TABLE caches (
	name TEXT PRIMARY KEY,
	created_at TIMESTAMP NOT NULL
);

-- Responses keyed by request URL inside a partition
CREATE TABLE cache_entries (
	cache_name TEXT NOT NULL,
	request_url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	response_type TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	body BLOB,
	stored_at TIMESTAMP NOT NULL,
	PRIMARY KEY (cache_name, request_url),
	FOREIGN KEY (cache_name) REFERENCES caches(name) ON DELETE CASCADE
);

CREATE INDEX idx_cache_entries_url ON cache_entries(request_url);

-- Small persistent key-value store (token, last warm timestamp, language)
CREATE TABLE prefs (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// migrations contains incremental schema changes
// migrations[0] is empty because version 0 uses the base schema
var migrations = []string{
	"",
}
