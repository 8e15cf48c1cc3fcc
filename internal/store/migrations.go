package store

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    story_id TEXT,
    subject TEXT NOT NULL,
    body TEXT,
    author TEXT,
    category TEXT,
    article_date TEXT,
    received_at TEXT NOT NULL,
    topics TEXT,
    people TEXT,
    tickers TEXT,
    completed_stub TEXT,
    indexed_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS embeddings (
    doc_id TEXT PRIMARY KEY REFERENCES documents(id),
    vector TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_story ON documents(story_id);
CREATE INDEX IF NOT EXISTS idx_documents_article_date ON documents(article_date);
CREATE INDEX IF NOT EXISTS idx_documents_received ON documents(received_at);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
