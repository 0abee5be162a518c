// Package normalize turns raw contact identifiers from the address book and
// the message log into one canonical key space.
//
// Emails keep their address with any leading "mailto:" removed. Phone numbers
// are parsed with libphonenumber rules and rendered in international display
// format, e.g. "+1 415-555-1212" or "+44 50 0052 1212". Anything else is
// rejected with ErrUnparseableIdentifier; nothing here ever panics.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is assumed for numbers written without a country code.
const DefaultRegion = "US"

// ErrUnparseableIdentifier marks an identifier that is neither an email nor a
// possible phone number.
var ErrUnparseableIdentifier = errors.New("unparseable identifier")

// Reason says why an identifier was rejected.
type Reason string

const (
	// ReasonUnrecognized: not email-shaped and not phone-shaped (URLs, names, ...).
	ReasonUnrecognized Reason = "unrecognized"
	// ReasonUnparseablePhone: phone-shaped but not a possible number in any region tried.
	ReasonUnparseablePhone Reason = "unparseable_phone"
)

// UnparseableError carries the rejected identifier and the reason.
type UnparseableError struct {
	Identifier string
	Reason     Reason
}

func (e *UnparseableError) Error() string {
	switch e.Reason {
	case ReasonUnparseablePhone:
		return fmt.Sprintf("unparseable number encountered: %q", e.Identifier)
	default:
		return fmt.Sprintf("couldn't make sense of %q as a phone number or e-mail", e.Identifier)
	}
}

func (e *UnparseableError) Unwrap() error { return ErrUnparseableIdentifier }

const mailtoPrefix = "mailto:"

var (
	probablePhonePattern = regexp.MustCompile(`^(tel:)?[+()\-. 0-9]+$`)
	nonDialablePattern   = regexp.MustCompile(`[^+0-9]+`)
)

// Normalize canonicalizes raw into a join key. region is the two-letter code
// assumed when a phone number has no explicit +country prefix; empty means
// DefaultRegion.
func Normalize(raw string, region string) (string, error) {
	if strings.Contains(raw, "@") {
		return NormalizeEmail(raw), nil
	}
	if probablePhonePattern.MatchString(raw) {
		if region == "" {
			region = DefaultRegion
		}
		if key, ok := NormalizePhone(raw, region); ok {
			return key, nil
		}
		return "", &UnparseableError{Identifier: raw, Reason: ReasonUnparseablePhone}
	}
	return "", &UnparseableError{Identifier: raw, Reason: ReasonUnrecognized}
}

// NormalizeEmail strips a leading mailto: scheme. No further validation.
func NormalizeEmail(raw string) string {
	return strings.TrimPrefix(raw, mailtoPrefix)
}

// NormalizePhone reduces raw to digits and '+', then parses it first as an
// international number and, failing that, as a number local to region.
func NormalizePhone(raw string, region string) (string, bool) {
	phone := strings.TrimSpace(nonDialablePattern.ReplaceAllString(raw, " "))
	if phone == "" {
		return "", false
	}

	if key, ok := formatPossible(phone, ""); ok {
		return key, true
	}
	return formatPossible(phone, region)
}

func formatPossible(phone string, region string) (key string, ok bool) {
	// The metadata-driven parser has panicked on pathological input in the past.
	defer func() {
		if r := recover(); r != nil {
			key, ok = "", false
		}
	}()

	num, err := phonenumbers.Parse(phone, region)
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsPossibleNumber(num) {
		return "", false
	}
	return phonenumbers.Format(num, phonenumbers.INTERNATIONAL), true
}
