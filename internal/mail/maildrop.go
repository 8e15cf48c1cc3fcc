package mail

import (
	"fmt"
	"io"
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Maildrop is a filesystem-backed Store. Each folder is a subdirectory of
// root and each item is a single RFC 822 message file named <id>.eml.
// Moves are atomic renames, so a crash mid-move never duplicates an item.
type Maildrop struct {
	root    string
	folders []string
}

// NewMaildrop opens (creating if needed) a maildrop rooted at root with the
// given folders.
func NewMaildrop(root string, folders ...string) (*Maildrop, error) {
	for _, f := range folders {
		if err := os.MkdirAll(filepath.Join(root, f), 0o755); err != nil {
			return nil, fmt.Errorf("creating mail folder %s: %w", f, err)
		}
	}
	return &Maildrop{root: root, folders: folders}, nil
}

// List returns all items in the folder, oldest received first.
func (m *Maildrop) List(folder string) ([]RawItem, error) {
	dir := filepath.Join(m.root, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing mail folder %s: %w", folder, err)
	}

	var items []RawItem
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".eml") {
			continue
		}
		item, err := readMessage(filepath.Join(dir, e.Name()))
		if err != nil {
			// Skip unreadable messages rather than failing the sweep.
			log.Printf("Skipping unreadable message %s in %s: %v", e.Name(), folder, err)
			continue
		}
		items = append(items, *item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].ReceivedAt.Before(items[j].ReceivedAt)
	})
	return items, nil
}

// Read returns the item with the given id, searching all folders.
func (m *Maildrop) Read(id string) (*RawItem, error) {
	for _, f := range m.folders {
		path := filepath.Join(m.root, f, id+".eml")
		if _, err := os.Stat(path); err == nil {
			return readMessage(path)
		}
	}
	return nil, fmt.Errorf("mail item %s not found", id)
}

// Move files an item from one folder to another via atomic rename.
func (m *Maildrop) Move(id, from, to string) error {
	src := filepath.Join(m.root, from, id+".eml")
	dst := filepath.Join(m.root, to, id+".eml")
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("moving %s from %s to %s: %w", id, from, to, err)
	}
	return nil
}

// Deliver writes a new item into the folder. Used by feed intake and tests;
// a real mail gateway drops .eml files into the source folder directly.
func (m *Maildrop) Deliver(folder string, item RawItem) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\r\n", item.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", item.ReceivedAt.Format(time.RFC1123Z))
	b.WriteString("\r\n")
	b.WriteString(item.Body)

	path := filepath.Join(m.root, folder, item.ID+".eml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing mail item: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("delivering mail item: %w", err)
	}
	return nil
}

func readMessage(path string) (*RawItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening message: %w", err)
	}
	defer f.Close()

	msg, err := mail.ReadMessage(f)
	if err != nil {
		return nil, fmt.Errorf("parsing message %s: %w", filepath.Base(path), err)
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}

	received := time.Time{}
	if d, err := msg.Header.Date(); err == nil {
		received = d
	} else if info, err := os.Stat(path); err == nil {
		received = info.ModTime()
	}

	id := strings.TrimSuffix(filepath.Base(path), ".eml")
	return &RawItem{
		ID:         id,
		Subject:    msg.Header.Get("Subject"),
		Body:       string(body),
		ReceivedAt: received,
	}, nil
}
