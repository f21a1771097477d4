package sqlite

const schemaSQL = `
-- Sites table
-- Pre-registered source websites with declarative scrape configuration
CREATE TABLE IF NOT EXISTS sites (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	url TEXT NOT NULL,
	category TEXT,
	auth_type TEXT NOT NULL DEFAULT 'none',
	encrypted_credentials BLOB,
	scraping_config TEXT NOT NULL DEFAULT '{}',
	active INTEGER NOT NULL DEFAULT 1,
	legal_blocked INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sites_url ON sites(url);
CREATE INDEX IF NOT EXISTS idx_sites_active ON sites(active);

-- Opportunities table
-- source_url uniqueness provides dedup across runs
CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	description TEXT,
	deadline INTEGER,
	value REAL,
	currency TEXT NOT NULL DEFAULT 'USD',
	reference_number TEXT,
	source_url TEXT NOT NULL,
	categories TEXT,
	location TEXT,
	extracted_payload TEXT,
	confidence REAL NOT NULL DEFAULT 1.0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_opportunities_source_url ON opportunities(source_url);
CREATE INDEX IF NOT EXISTS idx_opportunities_site ON opportunities(site_id);
CREATE INDEX IF NOT EXISTS idx_opportunities_deadline ON opportunities(deadline);

-- Documents table
-- Attachments downloaded for an opportunity and stored in the object store
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL REFERENCES opportunities(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	source_url TEXT NOT NULL,
	object_key TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	mime_type TEXT,
	extracted_text TEXT,
	extracted_payload TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_object_key ON documents(object_key);
CREATE INDEX IF NOT EXISTS idx_documents_opportunity ON documents(opportunity_id);

-- Jobs table
-- Doubles as the durable queue: workers claim pending rows atomically
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	site_id TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	priority INTEGER NOT NULL DEFAULT 5,
	scheduled_at INTEGER NOT NULL,
	started_at INTEGER,
	completed_at INTEGER,
	error TEXT,
	stats TEXT NOT NULL DEFAULT '{}',
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	worker_id TEXT,
	heartbeat_at INTEGER,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

-- Claim ordering: status + scheduled_at filter, priority DESC sort
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, scheduled_at, priority DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_site ON jobs(site_id);
CREATE INDEX IF NOT EXISTS idx_jobs_heartbeat ON jobs(status, heartbeat_at);
`

// migrate applies the schema. Statements are idempotent so this runs on
// every startup.
func (s *SQLiteDB) migrate() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}
