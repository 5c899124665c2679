package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input, fileName string) (string, int) {
	t.Helper()
	var sb strings.Builder
	ends := 0
	err := ExtractText(strings.NewReader(input), fileName, CharSink{
		OnChars: func(text string) error {
			sb.WriteString(text)
			return nil
		},
		OnEnd: func() error {
			ends++
			return nil
		},
	})
	require.NoError(t, err)
	return sb.String(), ends
}

func TestExtractPlainText(t *testing.T) {
	got, ends := collect(t, "hello\nworld", "notes.txt")
	assert.Equal(t, "hello\nworld", got)
	assert.Equal(t, 1, ends)
}

func TestExtractJSONAsText(t *testing.T) {
	got, _ := collect(t, `{"key": "value"}`, "data.json")
	assert.Equal(t, `{"key": "value"}`, got)
}

func TestExtractHTMLTextNodes(t *testing.T) {
	input := `<html><head><title>T</title><script>var x = 1;</script>
<style>body { color: red; }</style></head>
<body><p>First paragraph.</p><p>Second paragraph.</p></body></html>`

	got, ends := collect(t, input, "page.html")
	assert.Equal(t, 1, ends)
	assert.Contains(t, got, "First paragraph.")
	assert.Contains(t, got, "Second paragraph.")
	assert.NotContains(t, got, "var x")
	assert.NotContains(t, got, "color: red")
	// Block elements close with a paragraph boundary for the splitter.
	assert.Contains(t, got, "First paragraph.\n\n")
}

func TestExtractHTMLByHtmExtension(t *testing.T) {
	got, _ := collect(t, "<p>Hi</p>", "page.HTM")
	assert.Contains(t, got, "Hi")
	assert.NotContains(t, got, "<p>")
}

func TestExtractLargePlainStream(t *testing.T) {
	input := strings.Repeat("chunk of text ", 20000) // ~280 KB, multiple reads
	got, ends := collect(t, input, "big.txt")
	assert.Equal(t, input, got)
	assert.Equal(t, 1, ends)
}
