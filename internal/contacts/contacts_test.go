package contacts

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Napageneral/msgextract/internal/db"
	"github.com/Napageneral/msgextract/internal/normalize"
	"github.com/Napageneral/msgextract/internal/testutil"
)

func newNormalizer() *normalize.Normalizer {
	return normalize.New("US", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func expectedDirectory() Directory {
	return Directory{
		"frodo@shire.net":       {First: "Frodo", Last: "Baggins"},
		"+1 646-400-1212":       {First: "Frodo", Last: "Baggins"},
		"+1 212-555-1212":       {First: "Samwise", Last: "Gamgee"},
		"+1 646-555-1212":       {First: "Meriadoc", Last: "Brandybuck"},
		"+1 415-555-1212":       {First: "Bilbo", Last: "Baggins"},
		"mithrandir@gondor.net": {First: "Gandalf", Last: "the Grey"},
	}
}

func TestLoad_AddressBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AddressBook.sqlitedb")
	values := append(testutil.DefaultMultiValues(), testutil.MultiValue{RecordID: 5, Value: "http://mithrandir.net"})
	testutil.CreateAddressBookDB(t, path, testutil.DefaultPeople(), values)

	d, err := db.Open(path, db.DriverModernc)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer d.Close()

	n := newNormalizer()
	dir, err := Load(context.Background(), d, n)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(dir, expectedDirectory()) {
		t.Fatalf("unexpected directory:\n got %v\nwant %v", dir, expectedDirectory())
	}

	skipped := n.Skipped()
	if len(skipped) != 1 || skipped[0].Identifier != "http://mithrandir.net" || skipped[0].Source != normalize.SourceAddressBook {
		t.Fatalf("expected the URL to be reported as skipped, got %+v", skipped)
	}
}

func TestLoadEntries_NullNamesAndValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AddressBook.sqlitedb")
	testutil.CreateAddressBookDB(t, path, nil, []testutil.MultiValue{{RecordID: 42, Value: "orphan@example.com"}})

	w, err := db.Open(path, db.DriverModernc)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer w.Close()

	entries, err := LoadEntries(context.Background(), w)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	want := []Entry{{RawIdentifier: "orphan@example.com"}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("entries=%+v want %+v", entries, want)
	}
}

func TestBuild_LastWriteWins(t *testing.T) {
	entries := []Entry{
		{FirstName: "Bilbo", LastName: "Baggins", RawIdentifier: "415 555 1212"},
		{FirstName: "Frodo", LastName: "Baggins", RawIdentifier: "(415) 555-1212"},
	}
	dir := Build(entries, newNormalizer())
	if len(dir) != 1 {
		t.Fatalf("expected 1 key, got %d", len(dir))
	}
	got, ok := dir.Lookup("+1 415-555-1212")
	if !ok || got.First != "Frodo" {
		t.Fatalf("expected the later entry to win, got %+v (ok=%v)", got, ok)
	}
}

func TestBuild_SkipsUnparseable(t *testing.T) {
	n := newNormalizer()
	dir := Build([]Entry{
		{FirstName: "Gandalf", RawIdentifier: "http://www.apple.com"},
		{FirstName: "Nobody", RawIdentifier: "21"},
	}, n)
	if len(dir) != 0 {
		t.Fatalf("expected empty directory, got %v", dir)
	}
	if len(n.Skipped()) != 2 {
		t.Fatalf("expected 2 skipped identifiers, got %+v", n.Skipped())
	}
}
