package contacts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Napageneral/msgextract/internal/db"
	"github.com/Napageneral/msgextract/internal/normalize"
)

// Entry is one (person, identifier) row from the address book. A person with
// several phone numbers or emails yields several entries.
type Entry struct {
	FirstName     string
	LastName      string
	RawIdentifier string
}

// Name is the display name stored for a canonical identifier.
type Name struct {
	First string `json:"first_name"`
	Last  string `json:"last_name"`
}

// Directory maps canonical identifiers to names. It is built once per run and
// only read afterwards.
type Directory map[string]Name

// Lookup returns the name for a canonical key.
func (d Directory) Lookup(key string) (Name, bool) {
	n, ok := d[key]
	return n, ok
}

const addressBookQuery = `
	SELECT ABPerson.First, ABPerson.Last, ABMultiValue.value
	FROM ABMultiValue
	LEFT JOIN ABPerson
		ON ABMultiValue.record_id = ABPerson.ROWID
	WHERE ABMultiValue.value IS NOT NULL
`

// LoadEntries reads every non-null identifier from AddressBook.sqlitedb.
func LoadEntries(ctx context.Context, q db.Querier) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, addressBookQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query address book: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var first, last sql.NullString
		var value string
		if err := rows.Scan(&first, &last, &value); err != nil {
			return nil, fmt.Errorf("failed to scan address book row: %w", err)
		}
		entries = append(entries, Entry{
			FirstName:     first.String,
			LastName:      last.String,
			RawIdentifier: value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read address book rows: %w", err)
	}
	return entries, nil
}

// Build normalizes each entry's identifier and maps it to the entry's name.
// Entries whose identifier cannot be normalized are dropped (the normalizer
// records them). When two entries share a canonical key the later one wins.
func Build(entries []Entry, n *normalize.Normalizer) Directory {
	dir := make(Directory, len(entries))
	for _, e := range entries {
		key, ok := n.Normalize(e.RawIdentifier, normalize.SourceAddressBook)
		if !ok {
			continue
		}
		dir[key] = Name{First: e.FirstName, Last: e.LastName}
	}
	return dir
}

// Load reads the address book and builds its Directory.
func Load(ctx context.Context, q db.Querier, n *normalize.Normalizer) (Directory, error) {
	entries, err := LoadEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	return Build(entries, n), nil
}
