package normalize

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalize_Emails(t *testing.T) {
	cases := map[string]string{
		"mailto:a@b.com":             "a@b.com",
		"a@b.com":                    "a@b.com",
		"mailto:frodo@shire.net":     "frodo@shire.net",
		"mithrandir@gondor.net":      "mithrandir@gondor.net",
		"Mailto:Frodo@Shire.net":     "Mailto:Frodo@Shire.net",
		"mailto:mailto:double@x.org": "mailto:double@x.org",
	}
	for in, want := range cases {
		got, err := Normalize(in, DefaultRegion)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalize_PhoneEquivalenceClass(t *testing.T) {
	for _, in := range []string{
		"4155551212",
		"(415) 555-1212",
		"415.555.1212",
		"415 555 1212",
		"tel:+14155551212",
		"tel:415-555-1212",
		"+1 415-555-1212",
	} {
		got, err := Normalize(in, "US")
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != "+1 415-555-1212" {
			t.Fatalf("Normalize(%q)=%q want +1 415-555-1212", in, got)
		}
	}
}

func TestNormalize_ValidPhones(t *testing.T) {
	cases := map[string]string{
		"tel:+13475551212":  "+1 347-555-1212",
		"650-555-1212":      "+1 650-555-1212",
		"+1 646-555-1212":   "+1 646-555-1212",
		"+1 (406) 555-1212": "+1 406-555-1212",
		"+1 (212) 555-1212": "+1 212-555-1212",
		"(646) 400-1212":    "+1 646-400-1212",
		"646.555.1212":      "+1 646-555-1212",
		"+445000521212":     "+44 50 0052 1212",
	}
	for in, want := range cases {
		got, err := Normalize(in, "US")
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, in := range []string{"(415) 555-1212", "+445000521212", "mailto:a@b.com", "tel:+13475551212"} {
		first, err := Normalize(in, "US")
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		second, err := Normalize(first, "US")
		if err != nil {
			t.Fatalf("Normalize(%q) second pass: %v", first, err)
		}
		if first != second {
			t.Fatalf("not idempotent: %q -> %q -> %q", in, first, second)
		}
	}
}

func TestNormalize_ExplicitCountryIgnoresRegion(t *testing.T) {
	got, err := Normalize("+1 415-555-1212", "GB")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got != "+1 415-555-1212" {
		t.Fatalf("expected +1 415-555-1212, got %q", got)
	}
}

func TestNormalize_NationalNumberUsesRegion(t *testing.T) {
	cases := map[string]string{
		"020 7946 0000":     "+44 20 7946 0000",
		"(020) 7946-0000":   "+44 20 7946 0000",
		"tel:020 7946 0000": "+44 20 7946 0000",
	}
	for in, want := range cases {
		got, err := Normalize(in, "GB")
		if err != nil {
			t.Fatalf("Normalize(%q, GB): %v", in, err)
		}
		if got != want {
			t.Fatalf("Normalize(%q, GB)=%q want %q", in, got, want)
		}
	}

	us, err := Normalize("020 7946 0000", "US")
	if err == nil && us == "+44 20 7946 0000" {
		t.Fatalf("US region should not produce the GB key")
	}
}

func TestNormalize_Rejects(t *testing.T) {
	cases := map[string]Reason{
		"http://www.apple.com":        ReasonUnrecognized,
		"http://mithrandir.net":       ReasonUnrecognized,
		"":                            ReasonUnrecognized,
		"Gandalf":                     ReasonUnrecognized,
		"1 (650) 555-1212,626626262#": ReasonUnrecognized,
		"21":                          ReasonUnparseablePhone,
		"34 98 72":                    ReasonUnparseablePhone,
		"415 555 121":                 ReasonUnparseablePhone,
		"()":                          ReasonUnparseablePhone,
	}
	for in, reason := range cases {
		got, err := Normalize(in, "US")
		if got != "" {
			t.Fatalf("Normalize(%q)=%q want empty key", in, got)
		}
		if !errors.Is(err, ErrUnparseableIdentifier) {
			t.Fatalf("Normalize(%q) err=%v want ErrUnparseableIdentifier", in, err)
		}
		var uerr *UnparseableError
		if !errors.As(err, &uerr) || uerr.Reason != reason {
			t.Fatalf("Normalize(%q) reason=%v want %s", in, err, reason)
		}
	}
}

func TestNormalizer_CollectsSkipped(t *testing.T) {
	n := New("", discardLogger())
	if n.Region() != DefaultRegion {
		t.Fatalf("expected default region, got %q", n.Region())
	}

	if key, ok := n.Normalize("415.555.1212", SourceAddressBook); !ok || key != "+1 415-555-1212" {
		t.Fatalf("Normalize valid=%q,%v", key, ok)
	}
	if _, ok := n.Normalize("http://www.apple.com", SourceAddressBook); ok {
		t.Fatalf("expected URL to be rejected")
	}
	if _, ok := n.Normalize("21", SourceMessages); ok {
		t.Fatalf("expected 21 to be rejected")
	}

	skipped := n.Skipped()
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %d (%+v)", len(skipped), skipped)
	}
	want := []Skipped{
		{Identifier: "http://www.apple.com", Source: SourceAddressBook, Reason: ReasonUnrecognized},
		{Identifier: "21", Source: SourceMessages, Reason: ReasonUnparseablePhone},
	}
	for i := range want {
		if skipped[i] != want[i] {
			t.Fatalf("skipped[%d]=%+v want %+v", i, skipped[i], want[i])
		}
	}

	// Callers get a copy.
	skipped[0].Identifier = "mutated"
	if n.Skipped()[0].Identifier != "http://www.apple.com" {
		t.Fatalf("Skipped() must not expose internal slice")
	}
}
