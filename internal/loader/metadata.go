package loader

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultLoadType is used when no type group is configured or captured.
const DefaultLoadType = "I"

// Metadata is what a file name tells us about its contents.
type Metadata struct {
	EffectiveDate time.Time
	LoadType      string
}

// MetadataRule describes where a file name carries its date and load type.
// Groups are 1-based capture indices; zero means not configured.
type MetadataRule struct {
	Pattern    *regexp.Regexp
	DateGroup  int
	TypeGroup  int
	DateLayout string // Go layout, see DateLayout
	Location   *time.Location
}

// ExtractMetadata searches name for the first occurrence of the rule's
// pattern and derives the effective date and load type from its captures.
// Missing matches or groups fall back to now and DefaultLoadType.
func ExtractMetadata(name string, rule MetadataRule, now time.Time) (Metadata, error) {
	md := Metadata{EffectiveDate: now, LoadType: DefaultLoadType}
	if rule.Pattern == nil {
		return md, nil
	}

	idx := rule.Pattern.FindStringSubmatchIndex(name)
	if idx == nil {
		return md, nil
	}
	groups := rule.Pattern.NumSubexp()

	if rule.DateGroup > 0 && rule.DateGroup <= groups {
		if raw, ok := submatch(name, idx, rule.DateGroup); ok {
			loc := rule.Location
			if loc == nil {
				loc = time.Local
			}
			t, err := time.ParseInLocation(rule.DateLayout, raw, loc)
			if err != nil {
				return Metadata{}, parseError("extract date", fmt.Errorf("file %s: %q does not match date format: %w", name, raw, err))
			}
			md.EffectiveDate = t
		}
	}

	if rule.TypeGroup > 0 && rule.TypeGroup <= groups {
		if raw, ok := submatch(name, idx, rule.TypeGroup); ok && raw != "" {
			r, _ := utf8.DecodeRuneInString(raw)
			md.LoadType = strings.ToUpper(string(r))
		}
	}

	return md, nil
}

// submatch returns capture group n, or false when the group did not participate.
func submatch(s string, idx []int, n int) (string, bool) {
	start, end := idx[2*n], idx[2*n+1]
	if start < 0 {
		return "", false
	}
	return s[start:end], true
}

// RecordIDSeed returns the record identifier base for an effective date:
// YYYYMMDD followed by ten zero digits.
func RecordIDSeed(date time.Time) int64 {
	ymd := int64(date.Year())*10000 + int64(date.Month())*100 + int64(date.Day())
	return ymd * 10_000_000_000
}
