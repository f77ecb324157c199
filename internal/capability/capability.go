package capability

import (
	"errors"
	"fmt"
	"strings"
)

// OutputType identifies one sample representation.
type OutputType uint8

const (
	// NoPreference is the zero value; used as a requirement it lets the
	// producer pick.
	NoPreference OutputType = 0
	// Encoded samples are handed off as compressed access units.
	Encoded OutputType = 1
	// Decoded samples are handed off after decoding.
	Decoded OutputType = 1 << 1
)

const validMask = Set(Encoded | Decoded)

var (
	// ErrUnsupported indicates the requested output type is not advertised.
	ErrUnsupported = errors.New("unsupported output type")
	// ErrEmptySet indicates an advertised set is empty or carries unknown bits.
	ErrEmptySet = errors.New("invalid output type set")
)

func (t OutputType) String() string {
	switch t {
	case NoPreference:
		return "any"
	case Encoded:
		return "encoded"
	case Decoded:
		return "decoded"
	default:
		return fmt.Sprintf("output(%d)", uint8(t))
	}
}

// ParseOutputType converts a configuration value into an OutputType. Empty,
// "any" and "none" map to NoPreference.
func ParseOutputType(value string) (OutputType, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "any", "none":
		return NoPreference, nil
	case "encoded":
		return Encoded, nil
	case "decoded":
		return Decoded, nil
	default:
		return NoPreference, fmt.Errorf("output type: unsupported value %q", value)
	}
}

// Set is a bit set of OutputType values.
type Set uint8

// NewSet builds a set from the given types. NoPreference entries are ignored.
func NewSet(types ...OutputType) Set {
	var s Set
	for _, t := range types {
		s |= Set(t)
	}
	return s
}

// Has reports whether t is a member of s.
func (s Set) Has(t OutputType) bool {
	if t == NoPreference {
		return false
	}
	return s&Set(t) == Set(t)
}

// Empty reports whether s has no members.
func (s Set) Empty() bool {
	return s&validMask == 0
}

// Valid reports whether s is non-empty and only carries known bits.
func (s Set) Valid() bool {
	return !s.Empty() && s&^validMask == 0
}

// Union returns s ∪ o.
func (s Set) Union(o Set) Set {
	return s | o
}

// Intersect returns s ∩ o.
func (s Set) Intersect(o Set) Set {
	return s & o
}

// SubsetOf reports whether every member of s is also in o.
func (s Set) SubsetOf(o Set) bool {
	return s&^o == 0
}

// Types lists the members of s, Encoded first.
func (s Set) Types() []OutputType {
	out := make([]OutputType, 0, 2)
	for _, t := range []OutputType{Encoded, Decoded} {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

func (s Set) String() string {
	types := s.Types()
	if len(types) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t.String())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Negotiate chooses the output type for a track advertising supported when
// the consumer requires want. A specific requirement must be a member of
// supported; NoPreference resolves to Decoded when available, else Encoded.
func Negotiate(supported Set, want OutputType) (OutputType, error) {
	if !supported.Valid() {
		return NoPreference, fmt.Errorf("%w: %s", ErrEmptySet, supported)
	}
	switch want {
	case NoPreference:
		if supported.Has(Decoded) {
			return Decoded, nil
		}
		return Encoded, nil
	case Encoded, Decoded:
		if NewSet(want).SubsetOf(supported) {
			return want, nil
		}
		return NoPreference, fmt.Errorf("%w: want %s, supported %s", ErrUnsupported, want, supported)
	default:
		return NoPreference, fmt.Errorf("%w: unknown requirement %s", ErrUnsupported, want)
	}
}
