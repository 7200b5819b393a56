package loader

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// NoChar disables the quote or escape character of a Syntax.
const NoChar rune = 0

// Syntax describes the delimited file dialect.
type Syntax struct {
	Separator rune
	Quote     rune // NoChar disables quoting
	// Escape makes a following quote or escape character literal. A lone
	// escape before any other character is kept as-is, so C:\dir stays
	// C:\dir rather than losing its backslashes. NoChar disables escaping.
	Escape rune
	// SkipLines is the number of physical lines dropped before parsing, e.g. a header.
	SkipLines int
	// StrictQuotes drops characters outside quoted sections.
	StrictQuotes bool
	// IgnoreLeadingWhiteSpace drops whitespace between a separator and an opening quote.
	IgnoreLeadingWhiteSpace bool
	// SkipBlankLines drops records whose fields are all blank.
	SkipBlankLines bool
	// SanitizeUTF8 replaces invalid UTF-8 bytes with '?'.
	SanitizeUTF8 bool
}

// DefaultSyntax is comma separated, double-quoted, backslash escaped.
func DefaultSyntax() Syntax {
	return Syntax{
		Separator:               ',',
		Quote:                   '"',
		Escape:                  '\\',
		IgnoreLeadingWhiteSpace: true,
	}
}

// DelimitedReader streams records from a delimited file. It is not
// restartable; open a new reader on a fresh handle to re-read.
type DelimitedReader struct {
	syn     Syntax
	br      *bufio.Reader
	counter *countingReader
	line    int  // physical lines consumed
	start   int  // line number where the last record began
	skipped bool // leading lines already dropped
}

// NewDelimitedReader wraps r. size is the total byte count when known (0 otherwise)
// and only feeds progress reporting.
func NewDelimitedReader(r io.Reader, size int64, syn Syntax) *DelimitedReader {
	src := io.Reader(newBOMSkippingReader(r))
	if syn.SanitizeUTF8 {
		src = newUTF8Sanitizer(src)
	}
	counter := &countingReader{r: src, total: size}
	return &DelimitedReader{
		syn:     syn,
		br:      bufio.NewReaderSize(counter, 64*1024),
		counter: counter,
	}
}

// Line returns the physical line number on which the last returned record started.
func (d *DelimitedReader) Line() int { return d.start }

// BytesRead returns the number of source bytes consumed so far.
func (d *DelimitedReader) BytesRead() int64 { return d.counter.read }

// Percent returns read progress 0-100, or -1 when the file size is unknown.
func (d *DelimitedReader) Percent() int { return d.counter.Percent() }

// Read returns the next record. It returns io.EOF after the last record.
// Malformed quoting never fails; the record is returned as parsed.
func (d *DelimitedReader) Read() ([]string, error) {
	if !d.skipped {
		d.skipped = true
		for i := 0; i < d.syn.SkipLines; i++ {
			if _, err := d.readLine(); err != nil {
				return nil, err
			}
		}
	}

	for {
		rec, err := d.readRecord()
		if err != nil {
			return nil, err
		}
		if d.syn.SkipBlankLines && isBlankRecord(rec) {
			continue
		}
		return rec, nil
	}
}

// readLine returns the next physical line without its terminator.
func (d *DelimitedReader) readLine() (string, error) {
	s, err := d.br.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			return "", ioError("read source", fmt.Errorf("line %d: %w", d.line+1, err))
		}
		if s == "" {
			return "", io.EOF
		}
	}
	d.line++
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s, nil
}

type fieldState struct {
	sb       strings.Builder
	quoted   bool // inside a quoted section
	wasQuote bool // field has had a quoted section
}

func (f *fieldState) reset() {
	f.sb.Reset()
	f.quoted = false
	f.wasQuote = false
}

// readRecord parses one record, continuing across lines while a quoted
// section is open.
func (d *DelimitedReader) readRecord() ([]string, error) {
	line, err := d.readLine()
	if err != nil {
		return nil, err
	}
	d.start = d.line

	var (
		fields []string
		f      fieldState
	)
	for {
		runes := []rune(line)
		for i := 0; i < len(runes); i++ {
			c := runes[i]
			var next rune = -1
			if i+1 < len(runes) {
				next = runes[i+1]
			}

			switch {
			case d.isEscape(c) && (d.isQuote(next) || d.isEscape(next)):
				if f.quoted || !d.syn.StrictQuotes {
					f.sb.WriteRune(next)
				}
				i++

			case f.quoted && d.isQuote(c):
				if d.isQuote(next) {
					f.sb.WriteRune(c)
					i++
				} else {
					f.quoted = false
				}

			case f.quoted:
				f.sb.WriteRune(c)

			case c == d.syn.Separator:
				fields = append(fields, f.sb.String())
				f.reset()

			case d.isQuote(c) && !f.wasQuote && isBlank(f.sb.String()):
				if d.syn.IgnoreLeadingWhiteSpace {
					f.sb.Reset()
				}
				f.quoted = true
				f.wasQuote = true

			default:
				// Unquoted text, or a stray quote in the middle of a field.
				if !d.syn.StrictQuotes {
					f.sb.WriteRune(c)
				}
			}
		}

		if !f.quoted {
			break
		}

		// Quoted section spans lines; a file ending inside quotes yields
		// what was read so far.
		next, err := d.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		f.sb.WriteByte('\n')
		line = next
	}

	fields = append(fields, f.sb.String())
	return fields, nil
}

func (d *DelimitedReader) isQuote(c rune) bool {
	return d.syn.Quote != NoChar && c == d.syn.Quote
}

func (d *DelimitedReader) isEscape(c rune) bool {
	return d.syn.Escape != NoChar && c == d.syn.Escape
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if !isBlank(v) {
			return false
		}
	}
	return true
}
