package store

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id               TEXT PRIMARY KEY,
		path             TEXT NOT NULL UNIQUE,
		type             TEXT NOT NULL,
		state            TEXT NOT NULL,
		content_hash     TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		excerpt          TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		modified_at      TEXT NOT NULL,
		state_changed_at TEXT NOT NULL,
		archived_at      TEXT,
		owner            TEXT NOT NULL DEFAULT '',
		reviewer         TEXT NOT NULL DEFAULT '',
		review_due_at    TEXT,
		retention        TEXT NOT NULL DEFAULT '',
		metadata         TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_type_state ON documents(type, state)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified_at DESC)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		from_id    TEXT NOT NULL REFERENCES documents(id),
		to_id      TEXT NOT NULL REFERENCES documents(id),
		kind       TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		id          TEXT NOT NULL UNIQUE,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		field       TEXT NOT NULL,
		old_value   TEXT NOT NULL DEFAULT '',
		new_value   TEXT NOT NULL DEFAULT '',
		actor       TEXT NOT NULL,
		at          TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id, seq)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		doc_id UNINDEXED,
		path,
		title,
		excerpt,
		tags
	)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id               UUID PRIMARY KEY,
		path             TEXT NOT NULL UNIQUE,
		type             TEXT NOT NULL,
		state            TEXT NOT NULL,
		content_hash     TEXT NOT NULL DEFAULT '',
		title            TEXT NOT NULL DEFAULT '',
		excerpt          TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL,
		modified_at      TIMESTAMPTZ NOT NULL,
		state_changed_at TIMESTAMPTZ NOT NULL,
		archived_at      TIMESTAMPTZ,
		owner            TEXT NOT NULL DEFAULT '',
		reviewer         TEXT NOT NULL DEFAULT '',
		review_due_at    TIMESTAMPTZ,
		retention        TEXT NOT NULL DEFAULT '',
		metadata         JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_type_state ON documents(type, state)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_state ON documents(state)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_modified ON documents(modified_at DESC)`,
	`CREATE TABLE IF NOT EXISTS relationships (
		from_id    UUID NOT NULL REFERENCES documents(id),
		to_id      UUID NOT NULL REFERENCES documents(id),
		kind       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (from_id, to_id, kind)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		seq         BIGSERIAL PRIMARY KEY,
		id          UUID NOT NULL UNIQUE,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		field       TEXT NOT NULL,
		old_value   TEXT NOT NULL DEFAULT '',
		new_value   TEXT NOT NULL DEFAULT '',
		actor       TEXT NOT NULL,
		at          TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id, seq)`,
	`CREATE TABLE IF NOT EXISTS documents_fts (
		doc_id UUID PRIMARY KEY REFERENCES documents(id),
		body   TSVECTOR NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_fts_body ON documents_fts USING GIN (body)`,
}
