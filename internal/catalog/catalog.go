// Package catalog holds the topic → owner table used for routing.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"feedbacktriage/internal/domain"
)

// LoadError is returned when the topic source cannot produce a usable catalog.
// A run cannot continue without one.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load topic catalog %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

var ErrNoRoutableTopics = errors.New("no topic row has both a name and an owner")

type Catalog struct {
	entries []domain.TopicEntry
	owners  map[string]string // lower-cased name -> owner, routable rows only
	names   map[string]string // lower-cased name -> original name, all rows
}

func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	defer f.Close()

	cat, err := load(f, path)
	if err != nil {
		return nil, err
	}
	log.Printf("catalog loaded path=%s topics=%d routable=%d", path, len(cat.entries), len(cat.owners))
	return cat, nil
}

// Load parses a semicolon-delimited table with Name, Owner and optional Note
// columns.
func Load(r io.Reader) (*Catalog, error) {
	return load(r, "reader")
}

func load(r io.Reader, source string) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Source: source, Err: ErrNoRoutableTopics}
		}
		return nil, &LoadError{Source: source, Err: fmt.Errorf("read header: %w", err)}
	}
	cols := headerIndex(header)
	if _, ok := cols["name"]; !ok {
		return nil, &LoadError{Source: source, Err: errors.New("missing Name column")}
	}

	var entries []domain.TopicEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Source: source, Err: fmt.Errorf("read row: %w", err)}
		}
		entry := domain.TopicEntry{
			Name:  field(record, cols, "name"),
			Owner: field(record, cols, "owner"),
			Note:  field(record, cols, "note"),
		}
		if entry.Name == "" {
			continue
		}
		entries = append(entries, entry)
	}

	cat := New(entries)
	if len(cat.owners) == 0 {
		return nil, &LoadError{Source: source, Err: ErrNoRoutableTopics}
	}
	return cat, nil
}

// New builds a catalog from already-parsed entries. Later duplicates of a
// name (case-insensitively) are ignored.
func New(entries []domain.TopicEntry) *Catalog {
	cat := &Catalog{
		owners: make(map[string]string),
		names:  make(map[string]string),
	}
	for _, e := range entries {
		e.Name = strings.TrimSpace(e.Name)
		e.Owner = strings.TrimSpace(e.Owner)
		e.Note = strings.TrimSpace(e.Note)
		if e.Name == "" {
			continue
		}
		key := foldName(e.Name)
		if _, dup := cat.names[key]; dup {
			continue
		}
		cat.names[key] = e.Name
		cat.entries = append(cat.entries, e)
		if e.Routable() {
			cat.owners[key] = e.Owner
		}
	}
	return cat
}

// Owner returns the owner of a routable topic.
func (c *Catalog) Owner(topic string) (string, bool) {
	owner, ok := c.owners[foldName(topic)]
	return owner, ok
}

// CanonicalName returns the catalog spelling of topic, matched case-insensitively.
func (c *Catalog) CanonicalName(topic string) (string, bool) {
	name, ok := c.names[foldName(topic)]
	return name, ok
}

func (c *Catalog) Entries() []domain.TopicEntry {
	out := make([]domain.TopicEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len is the number of routable topics.
func (c *Catalog) Len() int {
	return len(c.owners)
}

// Describe renders the topic list handed to the classifier.
func (c *Catalog) Describe() string {
	lines := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Note != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", e.Name, e.Note))
		} else {
			lines = append(lines, "- "+e.Name)
		}
	}
	return strings.Join(lines, "\n")
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		key := strings.ToLower(strings.TrimSpace(h))
		if _, exists := cols[key]; !exists {
			cols[key] = i
		}
	}
	return cols
}

func field(record []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}
