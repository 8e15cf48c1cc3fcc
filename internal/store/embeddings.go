package store

import (
	"encoding/json"
	"fmt"
)

// InsertEmbedding stores the embedding vector for a document. Replaces any
// existing vector for the same document.
func (db *DB) InsertEmbedding(docID string, vector []float64) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encoding vector for %s: %w", docID, err)
	}
	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO embeddings (doc_id, vector) VALUES (?, ?)`,
		docID, string(data),
	)
	return err
}

// Embedding is a stored document vector.
type Embedding struct {
	DocID  string
	Vector []float64
}

// AllEmbeddings returns every stored embedding, ordered by document id.
// Used to rebuild the in-memory index on startup.
func (db *DB) AllEmbeddings() ([]Embedding, error) {
	rows, err := db.conn.Query(`SELECT doc_id, vector FROM embeddings ORDER BY doc_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var embs []Embedding
	for rows.Next() {
		var e Embedding
		var raw string
		if err := rows.Scan(&e.DocID, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Vector); err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", e.DocID, err)
		}
		embs = append(embs, e)
	}
	return embs, rows.Err()
}

// CountEmbeddings returns the number of stored vectors.
func (db *DB) CountEmbeddings() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM embeddings").Scan(&n)
	return n, err
}
