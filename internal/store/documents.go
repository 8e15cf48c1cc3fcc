package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const timeLayout = time.RFC3339

// InsertDocument inserts a document. Returns false without error when the
// id is already present.
func (db *DB) InsertDocument(doc Document) (bool, error) {
	var articleDate any
	if !doc.ArticleDate.IsZero() {
		articleDate = doc.ArticleDate.UTC().Format(timeLayout)
	}
	var completedStub any
	if doc.CompletedStub != "" {
		completedStub = doc.CompletedStub
	}
	var storyID any
	if doc.StoryID != "" {
		storyID = doc.StoryID
	}

	_, err := db.conn.Exec(
		`INSERT INTO documents (id, story_id, subject, body, author, category,
			article_date, received_at, topics, people, tickers, completed_stub)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, storyID, doc.Subject, doc.Body, doc.Author, doc.Category,
		articleDate, doc.ReceivedAt.UTC().Format(timeLayout),
		encodeSet(doc.Topics), encodeSet(doc.People), encodeSet(doc.Tickers),
		completedStub,
	)
	if err != nil {
		// Primary key collision: document already indexed.
		return false, nil //nolint: nilerr
	}
	return true, nil
}

// GetDocument returns the document with the given id, or nil if absent.
func (db *DB) GetDocument(id string) (*Document, error) {
	row := db.conn.QueryRow(selectDocuments+" WHERE id = ?", id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocuments returns documents for the given ids, preserving input order.
// Missing ids are skipped.
func (db *DB) GetDocuments(ids []string) ([]Document, error) {
	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		doc, err := db.GetDocument(id)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

// RecentDocuments returns the most recently indexed documents.
func (db *DB) RecentDocuments(limit int) ([]Document, error) {
	rows, err := db.conn.Query(selectDocuments+" ORDER BY indexed_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of indexed documents.
func (db *DB) CountDocuments() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

const selectDocuments = `SELECT id, story_id, subject, body, author, category,
	article_date, received_at, topics, people, tickers, completed_stub, indexed_at
	FROM documents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var storyID, body, author, category, articleDate, topics, people, tickers, completedStub, indexedAt sql.NullString
	var receivedAt string

	err := row.Scan(&doc.ID, &storyID, &doc.Subject, &body, &author, &category,
		&articleDate, &receivedAt, &topics, &people, &tickers, &completedStub, &indexedAt)
	if err != nil {
		return nil, err
	}

	doc.StoryID = storyID.String
	doc.Body = body.String
	doc.Author = author.String
	doc.Category = category.String
	doc.CompletedStub = completedStub.String
	doc.Topics = decodeSet(topics.String)
	doc.People = decodeSet(people.String)
	doc.Tickers = decodeSet(tickers.String)

	if doc.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
		return nil, fmt.Errorf("parsing received_at for %s: %w", doc.ID, err)
	}
	if articleDate.Valid {
		if doc.ArticleDate, err = time.Parse(timeLayout, articleDate.String); err != nil {
			return nil, fmt.Errorf("parsing article_date for %s: %w", doc.ID, err)
		}
	}
	if indexedAt.Valid {
		// sqlite datetime('now') format
		doc.IndexedAt, _ = time.Parse("2006-01-02 15:04:05", indexedAt.String)
	}
	return &doc, nil
}

func encodeSet(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeSet(s string) []string {
	if s == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	if len(items) == 0 {
		return nil
	}
	return items
}
