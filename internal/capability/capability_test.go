package capability

import (
	"errors"
	"testing"
)

func TestNegotiate(t *testing.T) {
	cases := []struct {
		name      string
		supported Set
		want      OutputType
		expected  OutputType
		err       error
	}{
		{name: "decoded only no preference", supported: NewSet(Decoded), want: NoPreference, expected: Decoded},
		{name: "both no preference prefers decoded", supported: NewSet(Encoded, Decoded), want: NoPreference, expected: Decoded},
		{name: "encoded only no preference", supported: NewSet(Encoded), want: NoPreference, expected: Encoded},
		{name: "explicit encoded", supported: NewSet(Encoded, Decoded), want: Encoded, expected: Encoded},
		{name: "explicit decoded", supported: NewSet(Decoded), want: Decoded, expected: Decoded},
		{name: "decoded not offered", supported: NewSet(Encoded), want: Decoded, err: ErrUnsupported},
		{name: "encoded not offered", supported: NewSet(Decoded), want: Encoded, err: ErrUnsupported},
		{name: "empty set", supported: 0, want: NoPreference, err: ErrEmptySet},
		{name: "unknown bits", supported: Set(1 << 5), want: NoPreference, err: ErrEmptySet},
		{name: "unknown requirement", supported: NewSet(Encoded), want: OutputType(8), err: ErrUnsupported},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Negotiate(tc.supported, tc.want)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Negotiate returned error: %v", err)
			}
			if got != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestSetOperations(t *testing.T) {
	both := NewSet(Encoded, Decoded)
	enc := NewSet(Encoded)
	if !enc.SubsetOf(both) {
		t.Fatal("expected {encoded} to be a subset of {encoded,decoded}")
	}
	if both.SubsetOf(enc) {
		t.Fatal("did not expect {encoded,decoded} to be a subset of {encoded}")
	}
	if got := both.Intersect(NewSet(Decoded)); got != NewSet(Decoded) {
		t.Fatalf("unexpected intersection %s", got)
	}
	if got := enc.Union(NewSet(Decoded)); got != both {
		t.Fatalf("unexpected union %s", got)
	}
	if !Set(0).Empty() || Set(0).Valid() {
		t.Fatal("expected empty set to be empty and invalid")
	}
	if NewSet(NoPreference) != 0 {
		t.Fatal("expected NoPreference to contribute no members")
	}
	if both.String() != "{encoded,decoded}" {
		t.Fatalf("unexpected string %q", both.String())
	}
	if uint8(Encoded) != 1 || uint8(Decoded) != 2 {
		t.Fatal("flag values changed")
	}
}

func TestParseOutputType(t *testing.T) {
	for input, expected := range map[string]OutputType{
		"":         NoPreference,
		"any":      NoPreference,
		" Decoded": Decoded,
		"ENCODED":  Encoded,
	} {
		got, err := ParseOutputType(input)
		if err != nil {
			t.Fatalf("ParseOutputType(%q) returned error: %v", input, err)
		}
		if got != expected {
			t.Fatalf("ParseOutputType(%q) = %s, want %s", input, got, expected)
		}
	}
	if _, err := ParseOutputType("raw"); err == nil {
		t.Fatal("expected error for unknown value")
	}
}
