// Package mail defines the incoming alert item and the mail store contract
// the ingestion pipeline files items through.
package mail

import "time"

// RawItem is one alert as it arrived, before any classification.
// Read-only to everything downstream of the store.
type RawItem struct {
	ID         string // store-assigned unique identifier
	Subject    string
	Body       string // raw body, possibly HTML
	ReceivedAt time.Time
}

// Store enumerates and files alert items across mailbox folders.
// The ingestion pipeline never deletes items; every disposition is a move.
type Store interface {
	// List returns all items currently in the folder, oldest first.
	List(folder string) ([]RawItem, error)
	// Read returns a single item by id, searching all folders.
	Read(id string) (*RawItem, error)
	// Move files an item from one folder to another.
	Move(id, from, to string) error
}
