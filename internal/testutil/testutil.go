// Package testutil builds on-disk backup fixtures: Manifest.plist,
// Manifest.db, AddressBook.sqlitedb and sms.db laid out the way an
// unencrypted device backup stores them.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"howett.net/plist"
	_ "modernc.org/sqlite"
)

// Content-addressed IDs used by the default fixture manifest.
const (
	SMSFileID         = "469af719d01883a826c1bb5e834aafde3e8d5c33"
	AddressBookFileID = "c18c568fb88c22ab4a6b464aba8474edd2586ad4"
)

// ManifestFile is a row of the manifest Files table.
type ManifestFile struct {
	FileID       string
	Domain       string
	RelativePath string
}

// Person is an ABPerson row.
type Person struct {
	RowID int
	First string
	Last  string
}

// MultiValue is an ABMultiValue row (one identifier of a person).
type MultiValue struct {
	RecordID int
	Value    string
}

// Handle is an sms.db handle row.
type Handle struct {
	RowID   int
	ID      string
	Service string
}

// Message is an sms.db message row. Date is in Apple nanoseconds (seconds
// since 2001-01-01 followed by nine fractional digits).
type Message struct {
	HandleID int
	Date     int64
	IsFromMe bool
	Text     string
}

// Descriptor is what gets written to Manifest.plist.
type Descriptor struct {
	IsEncrypted bool
	DeviceName  string
	Version     string
	Date        time.Time
}

// DefaultManifestFiles maps sms.db and AddressBook.sqlitedb.
func DefaultManifestFiles() []ManifestFile {
	return []ManifestFile{
		{FileID: SMSFileID, Domain: "HomeDomain", RelativePath: "Library/SMS/sms.db"},
		{FileID: AddressBookFileID, Domain: "HomeDomain", RelativePath: "Library/AddressBook/AddressBook.sqlitedb"},
	}
}

// DefaultPeople is the address book population used across tests.
func DefaultPeople() []Person {
	return []Person{
		{RowID: 1, First: "Frodo", Last: "Baggins"},
		{RowID: 2, First: "Samwise", Last: "Gamgee"},
		{RowID: 3, First: "Meriadoc", Last: "Brandybuck"},
		{RowID: 4, First: "Bilbo", Last: "Baggins"},
		{RowID: 5, First: "Gandalf", Last: "the Grey"},
	}
}

// DefaultMultiValues are the identifiers of DefaultPeople.
func DefaultMultiValues() []MultiValue {
	return []MultiValue{
		{RecordID: 1, Value: "frodo@shire.net"},
		{RecordID: 1, Value: "(646) 400-1212"},
		{RecordID: 2, Value: "+1 212-555-1212"},
		{RecordID: 3, Value: "646.555.1212"},
		{RecordID: 4, Value: "415 555 1212"},
		{RecordID: 5, Value: "mithrandir@gondor.net"},
	}
}

// DefaultHandles are the sms.db handles used across tests.
func DefaultHandles() []Handle {
	return []Handle{
		{RowID: 1, ID: "mailto:frodo@shire.net", Service: "iMessage"},
		{RowID: 2, ID: "646-400-1212", Service: "iMessage"},
		{RowID: 3, ID: "+1 (212) 555-1212", Service: "iMessage"},
		{RowID: 4, ID: "646 555 1212", Service: "iMessage"},
		{RowID: 5, ID: "tel:415-555-1212", Service: "iMessage"},
		{RowID: 6, ID: "mailto:mithrandir@gondor.net", Service: "iMessage"},
	}
}

// AppleNanos appends the nine fractional digits sms.db stores after the seconds.
func AppleNanos(secondsSince2001 int64) int64 {
	return secondsSince2001 * 1_000_000_000
}

// DefaultMessages is a short exchange, deliberately inserted out of order.
func DefaultMessages() []Message {
	return []Message{
		{HandleID: 6, Date: AppleNanos(345992930), IsFromMe: true, Text: "I wish the ring had never come to me, I wish none of this had happened."},
		{HandleID: 3, Date: AppleNanos(345988845), IsFromMe: false, Text: "Strider'll look after them."},
		{HandleID: 3, Date: AppleNanos(345988810), IsFromMe: true, Text: "Mordor! I hope the others find a safer road."},
		{HandleID: 3, Date: AppleNanos(345988880), IsFromMe: true, Text: "I don't suppose we'll ever see them again."},
	}
}

func openFixtureDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	d, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture %s: %v", path, err)
	}
	return d
}

func mustExec(t *testing.T, d *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := d.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// CreateManifestDB writes a Manifest.db with the given Files rows.
func CreateManifestDB(t *testing.T, path string, files []ManifestFile) {
	t.Helper()
	d := openFixtureDB(t, path)
	defer d.Close()

	mustExec(t, d, `CREATE TABLE Files (fileID TEXT PRIMARY KEY, domain TEXT, relativePath TEXT, flags INTEGER, file BLOB)`)
	for _, f := range files {
		mustExec(t, d, `INSERT INTO Files (fileID, domain, relativePath) VALUES (?, ?, ?)`, f.FileID, f.Domain, f.RelativePath)
	}
}

// CreateAddressBookDB writes an AddressBook.sqlitedb with the given people and identifiers.
func CreateAddressBookDB(t *testing.T, path string, people []Person, values []MultiValue) {
	t.Helper()
	d := openFixtureDB(t, path)
	defer d.Close()

	mustExec(t, d, `
		CREATE TABLE ABPerson (
			ROWID INTEGER, First TEXT, Last TEXT, Middle TEXT, Organization TEXT,
			Note TEXT, Kind INTEGER, Nickname TEXT, DisplayName TEXT, guid TEXT
		)
	`)
	mustExec(t, d, `
		CREATE TABLE ABMultiValue (
			UID INTEGER, record_id INTEGER, property INTEGER, identifier INTEGER,
			label INTEGER, value TEXT, guid TEXT
		)
	`)
	for _, p := range people {
		mustExec(t, d, `INSERT INTO ABPerson (ROWID, First, Last) VALUES (?, ?, ?)`, p.RowID, p.First, p.Last)
	}
	for _, v := range values {
		mustExec(t, d, `INSERT INTO ABMultiValue (record_id, value) VALUES (?, ?)`, v.RecordID, v.Value)
	}
}

// CreateMessageDB writes an sms.db with the given handles and messages.
func CreateMessageDB(t *testing.T, path string, handles []Handle, messages []Message) {
	t.Helper()
	d := openFixtureDB(t, path)
	defer d.Close()

	mustExec(t, d, `
		CREATE TABLE message (
			ROWID INTEGER PRIMARY KEY AUTOINCREMENT, guid TEXT, text TEXT, handle_id INTEGER,
			service TEXT, date INTEGER, date_read INTEGER, date_delivered INTEGER,
			is_from_me INTEGER, is_read INTEGER, cache_has_attachments INTEGER
		)
	`)
	mustExec(t, d, `CREATE TABLE handle (ROWID INTEGER, id TEXT, country TEXT, service TEXT, uncanonicalized_id TEXT)`)
	for _, h := range handles {
		mustExec(t, d, `INSERT INTO handle (ROWID, id, service) VALUES (?, ?, ?)`, h.RowID, h.ID, h.Service)
	}
	for _, m := range messages {
		mustExec(t, d, `INSERT INTO message (handle_id, date, is_from_me, text) VALUES (?, ?, ?, ?)`,
			m.HandleID, m.Date, m.IsFromMe, m.Text)
	}
}

// WriteManifestPlist writes a binary Manifest.plist.
func WriteManifestPlist(t *testing.T, path string, desc Descriptor) {
	t.Helper()
	doc := map[string]any{
		"IsEncrypted": desc.IsEncrypted,
		"Version":     desc.Version,
		"Lockdown": map[string]any{
			"DeviceName":     desc.DeviceName,
			"ProductVersion": "17.4",
		},
	}
	if !desc.Date.IsZero() {
		doc["Date"] = desc.Date
	}
	data, err := plist.Marshal(doc, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("marshal plist: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write plist: %v", err)
	}
}

// Backup describes a fixture backup directory.
type Backup struct {
	Descriptor  Descriptor
	Files       []ManifestFile
	People      []Person
	MultiValues []MultiValue
	Handles     []Handle
	Messages    []Message
}

// DefaultBackup returns the standard unencrypted fixture backup.
func DefaultBackup() Backup {
	return Backup{
		Descriptor:  Descriptor{DeviceName: "Frodo's iPhone", Version: "10.0", Date: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		Files:       DefaultManifestFiles(),
		People:      DefaultPeople(),
		MultiValues: DefaultMultiValues(),
		Handles:     DefaultHandles(),
		Messages:    DefaultMessages(),
	}
}

// HashedPath is where a content-addressed file lives inside a backup.
func HashedPath(dir, fileID string) string {
	return filepath.Join(dir, fileID[:2], fileID)
}

// WriteBackup materializes b under dir (which is created if needed). The
// address book and message stores are written for every manifest entry whose
// relative path ends in AddressBook.sqlitedb or sms.db.
func WriteBackup(t *testing.T, dir string, b Backup) {
	t.Helper()
	WriteManifestPlist(t, filepath.Join(dir, "Manifest.plist"), b.Descriptor)
	CreateManifestDB(t, filepath.Join(dir, "Manifest.db"), b.Files)

	for _, f := range b.Files {
		switch filepath.Base(f.RelativePath) {
		case "AddressBook.sqlitedb":
			CreateAddressBookDB(t, HashedPath(dir, f.FileID), b.People, b.MultiValues)
		case "sms.db":
			CreateMessageDB(t, HashedPath(dir, f.FileID), b.Handles, b.Messages)
		}
	}
}
