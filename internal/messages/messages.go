package messages

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Napageneral/msgextract/internal/contacts"
	"github.com/Napageneral/msgextract/internal/db"
	"github.com/Napageneral/msgextract/internal/normalize"
)

// RawRow is one message as read from sms.db, already ordered by handle then date.
type RawRow struct {
	Handle    string
	Timestamp int64 // Unix seconds, Apple epoch already corrected
	IsFromMe  bool
	Body      string
	Service   string
}

// Record is a message joined to the address book.
type Record struct {
	LastName   string `json:"last_name"`
	FirstName  string `json:"first_name"`
	Identifier string `json:"identifier"`
	DateTime   string `json:"date_time"`
	IsFromMe   string `json:"is_from_me"`
	Body       string `json:"body"`
	Service    string `json:"service"`
}

// Header is the export's column row, in Record field order.
var Header = []string{"Last Name", "First Name", "Phone #", "Date & Time", "Is from me?", "Message", "Service"}

// Fields returns the record's values in Header order.
func (r Record) Fields() []string {
	return []string{r.LastName, r.FirstName, r.Identifier, r.DateTime, r.IsFromMe, r.Body, r.Service}
}

// See AppleEpochOffset for the date arithmetic.
const messageQuery = `
	SELECT handle.id,
	       CAST(substr(message.date, 1, 9) AS INTEGER) + ? AS unix_timestamp,
	       COALESCE(message.is_from_me, 0),
	       message.text,
	       handle.service
	FROM message
	INNER JOIN handle
		ON handle.ROWID = message.handle_id
	ORDER BY handle.id, message.date
`

// LoadRows reads every message with a handle from sms.db, grouped by handle
// and chronological within each handle.
func LoadRows(ctx context.Context, q db.Querier) ([]RawRow, error) {
	rows, err := q.QueryContext(ctx, messageQuery, AppleEpochOffset)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []RawRow
	for rows.Next() {
		var (
			handle, text, service sql.NullString
			ts                    sql.NullInt64
			fromMe                int64
		)
		if err := rows.Scan(&handle, &ts, &fromMe, &text, &service); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		out = append(out, RawRow{
			Handle:    handle.String,
			Timestamp: ts.Int64,
			IsFromMe:  fromMe != 0,
			Body:      text.String,
			Service:   service.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message rows: %w", err)
	}
	return out, nil
}

// Join attaches directory names to each row. Output order and length match
// the input exactly. A handle that is missing from the directory gets empty
// names; a handle that cannot be normalized is kept verbatim as the identifier.
func Join(rows []RawRow, dir contacts.Directory, n *normalize.Normalizer, loc *time.Location) []Record {
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		identifier, ok := n.Normalize(row.Handle, normalize.SourceMessages)
		if !ok {
			identifier = row.Handle
		}

		var name contacts.Name
		if ok {
			name, _ = dir.Lookup(identifier)
		}

		out = append(out, Record{
			LastName:   name.Last,
			FirstName:  name.First,
			Identifier: identifier,
			DateTime:   FormatTimestamp(row.Timestamp, loc),
			IsFromMe:   yesNo(row.IsFromMe),
			Body:       row.Body,
			Service:    row.Service,
		})
	}
	return out
}

// Unmatched counts records carrying neither a first nor a last name.
func Unmatched(records []Record) int {
	count := 0
	for _, r := range records {
		if r.FirstName == "" && r.LastName == "" {
			count++
		}
	}
	return count
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
