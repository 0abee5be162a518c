package normalize

import (
	"errors"
	"log/slog"
)

// Sources an identifier can come from.
const (
	SourceAddressBook = "address_book"
	SourceMessages    = "messages"
)

// Skipped records one identifier the normalizer could not canonicalize.
type Skipped struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source"`
	Reason     Reason `json:"reason"`
}

// Normalizer binds a run's assumed region and collects every rejected
// identifier so callers can inspect them after the run. It is not safe for
// concurrent use; an extraction is single-threaded.
type Normalizer struct {
	region  string
	logger  *slog.Logger
	skipped []Skipped
}

// New returns a Normalizer for region. A nil logger uses slog.Default().
func New(region string, logger *slog.Logger) *Normalizer {
	if region == "" {
		region = DefaultRegion
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		region: region,
		logger: logger.With("component", "normalize"),
	}
}

// Region returns the region assumed for numbers without a country code.
func (n *Normalizer) Region() string { return n.region }

// Normalize canonicalizes raw. On failure it logs a warning, records a
// Skipped event tagged with source and returns ok=false.
func (n *Normalizer) Normalize(raw string, source string) (string, bool) {
	key, err := Normalize(raw, n.region)
	if err == nil {
		return key, true
	}

	reason := ReasonUnrecognized
	var uerr *UnparseableError
	if errors.As(err, &uerr) {
		reason = uerr.Reason
	}
	n.skipped = append(n.skipped, Skipped{Identifier: raw, Source: source, Reason: reason})
	n.logger.Warn("skipping identifier", "identifier", raw, "source", source, "reason", string(reason))
	return "", false
}

// Skipped returns the rejected identifiers in the order they were seen.
func (n *Normalizer) Skipped() []Skipped {
	out := make([]Skipped, len(n.skipped))
	copy(out, n.skipped)
	return out
}
