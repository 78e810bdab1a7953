package units

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"testing/quick"
	"text/template"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTemplateFuncMap(t *testing.T) {
	funcMap := GetTemplateFuncMap()
	require.NotNil(t, funcMap)

	expected := []string{"add", "truncate", "lower", "upper", "trim", "join", "percent", "docID"}
	assert.Len(t, funcMap, len(expected))
	for _, name := range expected {
		assert.Contains(t, funcMap, name)
	}
}

func TestTruncateText(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		length int
		want   string
	}{
		{"within limit", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"cut with ellipsis", "hello world", 8, "hello..."},
		{"short limit has no ellipsis", "hello", 3, "hel"},
		{"zero length", "hello", 0, ""},
		{"negative length", "hello", -1, ""},
		{"multibyte runes", "héllo wørld", 7, "héll..."},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncateText(tt.input, tt.length))
		})
	}
}

func TestTruncateText_Properties(t *testing.T) {
	err := quick.Check(func(s string, n uint8) bool {
		length := int(n)
		out := truncateText(s, length)
		if !strings.HasPrefix(s, strings.TrimSuffix(out, "...")) {
			return false
		}
		return utf8.RuneCountInString(out) <= length
	}, &quick.Config{MaxCount: 500})
	assert.NoError(t, err)
}

func TestTemplateFunctions_InTemplate(t *testing.T) {
	tmpl, err := template.New("t").Funcs(GetTemplateFuncMap()).Parse(
		`{{add 1 2}} {{upper "ata"}} {{trim "  x  "}} {{join .Refs ", "}} {{percent .Sim}} {{docID .Path}} {{percent .NaN}}`)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]any{
		"Refs": []string{"AMM-24-30-00", "IPD-3G"},
		"Sim":  0.856,
		"Path": "data/DMC-39-A-24-31-00-00A-520A-A.xml",
		"NaN":  math.NaN(),
	})
	require.NoError(t, err)
	assert.Equal(t, "3 ATA x AMM-24-30-00, IPD-3G 86% 39-A-24-31-00-00A-520A-A 0%", buf.String())
}

func FuzzTruncateText(f *testing.F) {
	f.Add("hello world", 5)
	f.Add("", 10)
	f.Add("héllo wørld", 8)
	f.Add(strings.Repeat("x", 1000), 100)
	f.Add("🚀🌟💫", 2)

	f.Fuzz(func(t *testing.T, input string, length int) {
		out := truncateText(input, length)
		if length <= 0 && out != "" {
			t.Fatalf("expected empty result for length %d, got %q", length, out)
		}
		if length > 0 && utf8.RuneCountInString(out) > length {
			t.Fatalf("result %q longer than %d runes", out, length)
		}
		if utf8.ValidString(input) && !utf8.ValidString(out) {
			t.Fatalf("truncation produced invalid UTF-8 from %q", input)
		}
	})
}
