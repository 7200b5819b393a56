package loader

import (
	"fmt"
	"strings"
)

// javaTokens maps SimpleDateFormat letter runs to Go layout elements.
// Longest runs are listed first for each letter.
var javaTokens = map[byte][]struct {
	min    int
	layout string
}{
	'y': {{4, "2006"}, {3, "2006"}, {2, "06"}, {1, "2006"}},
	'M': {{4, "January"}, {3, "Jan"}, {2, "01"}, {1, "1"}},
	'd': {{2, "02"}, {1, "2"}},
	'H': {{1, "15"}},
	'h': {{2, "03"}, {1, "3"}},
	'm': {{2, "04"}, {1, "4"}},
	's': {{2, "05"}, {1, "5"}},
	'a': {{1, "PM"}},
	'E': {{4, "Monday"}, {1, "Mon"}},
	'z': {{1, "MST"}},
	'Z': {{1, "-0700"}},
	'X': {{3, "Z07:00"}, {1, "Z0700"}},
}

// DateLayout converts a java.text.SimpleDateFormat pattern such as
// "MMddyyyy" into a Go time layout. A pattern that already contains the Go
// reference year "2006" is returned unchanged.
func DateLayout(pattern string) (string, error) {
	if pattern == "" {
		return "", fmt.Errorf("empty date format")
	}
	if strings.Contains(pattern, "2006") {
		return pattern, nil
	}

	var b strings.Builder
	for i := 0; i < len(pattern); {
		c := pattern[i]

		if c == '\'' {
			// '' is a literal quote; 'text' is literal text.
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			end := strings.IndexByte(pattern[i+1:], '\'')
			if end < 0 {
				return "", fmt.Errorf("date format %q: unterminated quote", pattern)
			}
			b.WriteString(pattern[i+1 : i+1+end])
			i += end + 2
			continue
		}

		if !isASCIILetter(c) {
			b.WriteByte(c)
			i++
			continue
		}

		run := 1
		for i+run < len(pattern) && pattern[i+run] == c {
			run++
		}

		if c == 'S' {
			// Fractional seconds need a preceding '.' or ',' in Go layouts.
			if i == 0 || (pattern[i-1] != '.' && pattern[i-1] != ',') {
				return "", fmt.Errorf("date format %q: fractional seconds must follow '.' or ','", pattern)
			}
			b.WriteString(strings.Repeat("0", run))
			i += run
			continue
		}

		opts, ok := javaTokens[c]
		if !ok {
			return "", fmt.Errorf("date format %q: unsupported pattern letter %q", pattern, c)
		}
		layout := ""
		for _, o := range opts {
			if run >= o.min {
				layout = o.layout
				break
			}
		}
		b.WriteString(layout)
		i += run
	}
	return b.String(), nil
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
