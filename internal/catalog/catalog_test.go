package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTopics = "Name;Owner;Note\n" +
	"Storage;Owner A;Tables, files and datatypes\n" +
	"Billing;Owner C;\n" +
	"Pricing;Owner C;Plans and limits\n" +
	"Roadmap;;Not routed\n" +
	";Owner X;row without name\n"

func TestLoadBuildsRoutableMapping(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleTopics))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != 3 {
		t.Fatalf("expected 3 routable topics, got %d", cat.Len())
	}
	if owner, ok := cat.Owner("STORAGE"); !ok || owner != "Owner A" {
		t.Fatalf("Owner(STORAGE) = %q, %v", owner, ok)
	}
	if _, ok := cat.Owner("Roadmap"); ok {
		t.Fatal("topic without owner must not be routable")
	}
	if name, ok := cat.CanonicalName("roadmap"); !ok || name != "Roadmap" {
		t.Fatalf("CanonicalName(roadmap) = %q, %v", name, ok)
	}
	var names []string
	for _, e := range cat.Entries() {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "Storage,Billing,Pricing,Roadmap" {
		t.Fatalf("unexpected names: %s", got)
	}
}

func TestDescribeListsNotes(t *testing.T) {
	cat, err := Load(strings.NewReader(sampleTopics))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := "- Storage: Tables, files and datatypes\n- Billing\n- Pricing: Plans and limits\n- Roadmap: Not routed"
	if got := cat.Describe(); got != want {
		t.Fatalf("Describe() =\n%s\nwant\n%s", got, want)
	}
}

func TestLoadHeaderIsCaseInsensitiveAndOrderFree(t *testing.T) {
	src := "\ufeffnote;OWNER;name\nabout storage;Owner A;Storage\n"
	cat, err := Load(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if owner, _ := cat.Owner("storage"); owner != "Owner A" {
		t.Fatalf("unexpected owner %q", owner)
	}
}

func TestLoadRejectsCatalogWithoutRoutableRows(t *testing.T) {
	tests := map[string]string{
		"empty":       "",
		"header only": "Name;Owner;Note\n",
		"no owners":   "Name;Owner\nStorage;\nBilling;\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(strings.NewReader(src))
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
			if !errors.Is(err, ErrNoRoutableTopics) {
				t.Fatalf("expected ErrNoRoutableTopics, got %v", err)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	var loadErr *LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected wrapped not-exist error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "topics.csv")
	if err := os.WriteFile(path, []byte(sampleTopics), 0o644); err != nil {
		t.Fatalf("write topics: %v", err)
	}
	cat, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cat.Len() != 3 {
		t.Fatalf("expected 3 routable topics, got %d", cat.Len())
	}
}

func TestNewIgnoresDuplicateNames(t *testing.T) {
	cat, err := Load(strings.NewReader("Name;Owner\nUX;Owner A\nux;Owner B\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if owner, _ := cat.Owner("UX"); owner != "Owner A" {
		t.Fatalf("first row must win, got %q", owner)
	}
	if len(cat.Entries()) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(cat.Entries()))
	}
}
