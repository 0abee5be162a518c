package messages

import "time"

// AppleEpochOffset is the number of seconds from 1970-01-01 to 2001-01-01 UTC,
// the epoch sms.db counts from.
//
// sms.db stores message.date as seconds since 2001-01-01 followed by nine
// fractional digits (older backups store the bare seconds). The message query
// keeps the first nine characters, which is the whole-second count in both
// layouts, and adds this offset. FormatTimestamp therefore receives plain Unix
// seconds; adding the offset a second time shifts every date by 31 years.
const AppleEpochOffset int64 = 978307200

// TimestampLayout is the export's date-time format.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders Unix seconds as "YYYY-MM-DD HH:MM:SS" in loc.
// A nil loc means time.Local.
func FormatTimestamp(unixSeconds int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(unixSeconds, 0).In(loc).Format(TimestampLayout)
}
