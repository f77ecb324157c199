package language

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// bibliographic maps ISO 639-2/B codes to their terminology form, which is
// what x/text understands.
var bibliographic = map[string]string{
	"alb": "sqi",
	"arm": "hye",
	"baq": "eus",
	"bur": "mya",
	"chi": "zho",
	"cze": "ces",
	"dut": "nld",
	"fre": "fra",
	"geo": "kat",
	"ger": "deu",
	"gre": "ell",
	"ice": "isl",
	"mac": "mkd",
	"mao": "mri",
	"may": "msa",
	"per": "fas",
	"rum": "ron",
	"slo": "slk",
	"tib": "bod",
	"wel": "cym",
}

// tagKeys lists metadata keys in order of preference. Matroska's
// language_ietf carries a full BCP 47 tag and wins over the legacy field.
var tagKeys = []string{"language_ietf", "LANGUAGE_IETF", "language", "LANGUAGE", "Language", "lang", "LANG"}

func clean(tag string) string {
	return strings.TrimSpace(strings.ReplaceAll(tag, "\u0000", ""))
}

// parse returns language.Und for empty input and an error when x/text
// rejects the tag.
func parse(tag string) (language.Tag, error) {
	tag = clean(tag)
	if tag == "" {
		return language.Und, nil
	}
	if alt, ok := bibliographic[strings.ToLower(tag)]; ok {
		tag = alt
	}
	return language.Parse(tag)
}

// Normalize returns the canonical BCP 47 form of tag. Empty and undetermined
// tags yield "". Tags x/text cannot parse are lowercased and returned as is.
func Normalize(tag string) string {
	parsed, err := parse(tag)
	if err != nil {
		return strings.ToLower(clean(tag))
	}
	if parsed == language.Und {
		return ""
	}
	return parsed.String()
}

// FromTags extracts and normalizes the language from stream metadata tags.
func FromTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	for _, key := range tagKeys {
		if value, ok := tags[key]; ok {
			if normalized := Normalize(value); normalized != "" {
				return normalized
			}
		}
	}
	return ""
}

// ISO3 returns the ISO 639-2/T code of tag's base language, or "und".
func ISO3(tag string) string {
	parsed, err := parse(tag)
	if err != nil || parsed == language.Und {
		return "und"
	}
	base, _ := parsed.Base()
	return base.ISO3()
}

// DisplayName returns the English name of tag. Empty input yields
// "Unknown"; unrecognized input is returned uppercased.
func DisplayName(tag string) string {
	if strings.TrimSpace(tag) == "" {
		return "Unknown"
	}
	parsed, err := parse(tag)
	if err != nil || parsed == language.Und {
		return strings.ToUpper(clean(tag))
	}
	if name := display.English.Tags().Name(parsed); name != "" {
		return name
	}
	return strings.ToUpper(clean(tag))
}
