package loader

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
)

func readAll(t *testing.T, input string, syn Syntax) [][]string {
	t.Helper()
	r := NewDelimitedReader(strings.NewReader(input), int64(len(input)), syn)
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		out = append(out, rec)
	}
}

func TestDelimitedReader_DefaultSyntax(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{"simple", "a,b,c\n", [][]string{{"a", "b", "c"}}},
		{"no trailing newline", "a,b", [][]string{{"a", "b"}}},
		{"crlf", "a,b\r\nc,d\r\n", [][]string{{"a", "b"}, {"c", "d"}}},
		{"empty input", "", nil},
		{"empty fields", "a,,c\nd,\n", [][]string{{"a", "", "c"}, {"d", ""}}},
		{"quoted separator", `"a,b",c`, [][]string{{"a,b", "c"}}},
		{"doubled quote", `"a""b",c`, [][]string{{`a"b`, "c"}}},
		{"empty quoted", `"",b`, [][]string{{"", "b"}}},
		{"escaped quote", `"a\"b",c`, [][]string{{`a"b`, "c"}}},
		{"escaped escape", `"a\\b"`, [][]string{{`a\b`}}},
		{"lone backslash", `a\b,c`, [][]string{{`a\b`, "c"}}},
		{"windows path", `C:\dir\f,x`, [][]string{{`C:\dir\f`, "x"}}},
		{"multi-line field", "\"a\nb\",c\nd,e\n", [][]string{{"a\nb", "c"}, {"d", "e"}}},
		{"leading whitespace before quote", ` "a", "b"`, [][]string{{"a", "b"}}},
		{"leading whitespace kept without quote", ` a, b`, [][]string{{" a", " b"}}},
		{"stray quote mid-field", `5"x,b`, [][]string{{`5"x`, "b"}}},
		{"text after closing quote", `"ab"c,d`, [][]string{{"abc", "d"}}},
		{"unterminated quote at eof", `"abc`, [][]string{{"abc"}}},
		{"blank line", "a\n\nb\n", [][]string{{"a"}, {""}, {"b"}}},
		{"utf8 bom", "\xEF\xBB\xBFa,b\n", [][]string{{"a", "b"}}},
		{"multibyte", "é,ü\n", [][]string{{"é", "ü"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := readAll(t, tt.input, DefaultSyntax())
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDelimitedReader_Options(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		mutate func(*Syntax)
		want   [][]string
	}{
		{
			name:   "custom separator and quote",
			input:  "'a|b'|c\n",
			mutate: func(s *Syntax) { s.Separator = '|'; s.Quote = '\'' },
			want:   [][]string{{"a|b", "c"}},
		},
		{
			name:   "tab separated",
			input:  "a\tb\n",
			mutate: func(s *Syntax) { s.Separator = '\t' },
			want:   [][]string{{"a", "b"}},
		},
		{
			name:   "skip header",
			input:  "h1,h2\na,b\n",
			mutate: func(s *Syntax) { s.SkipLines = 1 },
			want:   [][]string{{"a", "b"}},
		},
		{
			name:   "skip more lines than present",
			input:  "h1,h2\n",
			mutate: func(s *Syntax) { s.SkipLines = 3 },
			want:   nil,
		},
		{
			name:   "strict quotes",
			input:  `x"a"y,"b",c`,
			mutate: func(s *Syntax) { s.StrictQuotes = true },
			want:   [][]string{{"a", "b", ""}},
		},
		{
			name:   "keep leading whitespace",
			input:  ` "a",b`,
			mutate: func(s *Syntax) { s.IgnoreLeadingWhiteSpace = false },
			want:   [][]string{{" a", "b"}},
		},
		{
			name:   "quoting disabled",
			input:  `"a",b`,
			mutate: func(s *Syntax) { s.Quote = NoChar },
			want:   [][]string{{`"a"`, "b"}},
		},
		{
			name:   "escape disabled",
			input:  `"a\",b`,
			mutate: func(s *Syntax) { s.Escape = NoChar },
			want:   [][]string{{`a\`, "b"}},
		},
		{
			name:   "skip blank lines",
			input:  "a\n\n  \n,\nb\n",
			mutate: func(s *Syntax) { s.SkipBlankLines = true },
			want:   [][]string{{"a"}, {"b"}},
		},
		{
			name:   "sanitize invalid utf8",
			input:  "a\xffb,c\n",
			mutate: func(s *Syntax) { s.SanitizeUTF8 = true },
			want:   [][]string{{"a?b", "c"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syn := DefaultSyntax()
			tt.mutate(&syn)
			got := readAll(t, tt.input, syn)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDelimitedReader_LineAndProgress(t *testing.T) {
	input := "h\n\"a\nb\",c\nd,e\n"
	r := NewDelimitedReader(strings.NewReader(input), int64(len(input)), Syntax{
		Separator: ',', Quote: '"', Escape: '\\', SkipLines: 1,
	})

	if _, err := r.Read(); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Line() != 2 {
		t.Errorf("Line() = %d, want 2", r.Line())
	}
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Line() != 4 {
		t.Errorf("Line() = %d, want 4", r.Line())
	}
	if _, err := r.Read(); err != io.EOF {
		t.Fatalf("Read() error = %v, want io.EOF", err)
	}
	if r.BytesRead() != int64(len(input)) {
		t.Errorf("BytesRead() = %d, want %d", r.BytesRead(), len(input))
	}
	if r.Percent() != 100 {
		t.Errorf("Percent() = %d, want 100", r.Percent())
	}
}

func TestDelimitedReader_UnknownSize(t *testing.T) {
	r := NewDelimitedReader(strings.NewReader("a\n"), 0, DefaultSyntax())
	if _, err := r.Read(); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if r.Percent() != -1 {
		t.Errorf("Percent() = %d, want -1", r.Percent())
	}
}

func TestDelimitedReader_IOError(t *testing.T) {
	boom := errors.New("disk failure")
	r := NewDelimitedReader(iotest.ErrReader(boom), 0, DefaultSyntax())

	_, err := r.Read()
	if !errors.Is(err, ErrIO) {
		t.Errorf("Read() error = %v, want io error", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("Read() error = %v, want wrapped cause", err)
	}
}

func TestDelimitedReader_IOErrorMidStream(t *testing.T) {
	boom := errors.New("reset")
	src := io.MultiReader(strings.NewReader("a,b\nc,"), iotest.ErrReader(boom))
	r := NewDelimitedReader(src, 0, DefaultSyntax())

	rec, err := r.Read()
	if err != nil {
		t.Fatalf("first Read() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, rec); diff != "" {
		t.Errorf("first record mismatch (-want +got):\n%s", diff)
	}
	if _, err := r.Read(); !errors.Is(err, ErrIO) {
		t.Errorf("second Read() error = %v, want io error", err)
	}
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	// "é" split across reads must survive intact.
	src := iotest.OneByteReader(strings.NewReader("xé\xffy"))
	got, err := io.ReadAll(newUTF8Sanitizer(src))
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(got) != "xé?y" {
		t.Errorf("got %q, want %q", got, "xé?y")
	}
}

func TestBOMSkippingReader(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"with bom", "\xEF\xBB\xBFabc", "abc"},
		{"without bom", "abc", "abc"},
		{"only bom", "\xEF\xBB\xBF", ""},
		{"short", "ab", "ab"},
		{"empty", "", ""},
		{"partial bom", "\xEF\xBBx", "\xEF\xBBx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(newBOMSkippingReader(strings.NewReader(tt.in)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
