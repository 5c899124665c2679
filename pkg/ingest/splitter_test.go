package ingest

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var whitespace = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	return whitespace.ReplaceAllString(s, "")
}

func TestSplitShortTextSinglePassage(t *testing.T) {
	sp := &Splitter{Size: 100}
	got := sp.Split("Hello world.")
	assert.Equal(t, []string{"Hello world."}, got)
}

func TestSplitPacksParagraphsGreedily(t *testing.T) {
	sp := &Splitter{Size: 30}
	text := "First para.\n\nSecond one.\n\nA third paragraph here."

	got := sp.Split(text)
	require.Len(t, got, 2)
	assert.Equal(t, "First para.\n\nSecond one.", got[0])
	assert.Equal(t, "A third paragraph here.", got[1])
}

func TestSplitLongParagraphFallsToSentences(t *testing.T) {
	sp := &Splitter{Size: 30}
	text := "One short sentence. Another short one. And a third sentence here."

	got := sp.Split(text)
	require.Greater(t, len(got), 1)
	for _, p := range got {
		assert.LessOrEqual(t, len([]rune(p)), 30)
	}
	assert.Equal(t, normalize(text), normalize(strings.Join(got, "")))
}

func TestSplitCJKSentenceBoundaries(t *testing.T) {
	sp := &Splitter{Size: 12}
	text := "这是第一句话。这是第二句话！这是第三句话？"

	got := sp.Split(text)
	require.Len(t, got, 3)
	assert.Equal(t, "这是第一句话。", got[0])
	assert.Equal(t, normalize(text), normalize(strings.Join(got, "")))
}

func TestSplitOversizeSentenceFallsToTokens(t *testing.T) {
	sp := &Splitter{Size: 10}
	text := "supercalifragilistic expialidocious words"

	got := sp.Split(text)
	require.Greater(t, len(got), 1)
	assert.Equal(t, normalize(text), normalize(strings.Join(got, "")))
}

func TestSplitRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
		text string
	}{
		{"paragraphs", 50, "Alpha beta gamma.\n\nDelta epsilon zeta.\n\nEta theta iota kappa lambda mu."},
		{"mixed cjk and ascii", 20, "Hello there. 你好世界。Short. 这是一个比较长的中文句子用于测试分割。"},
		{"long single token", 8, "abcdefghijklmnopqrstuvwxyz"},
		{"decimal stays intact", 40, "Pi is 3.14159 approximately. Next sentence."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sp := &Splitter{Size: tt.size}
			got := sp.Split(tt.text)
			require.NotEmpty(t, got)
			assert.Equal(t, normalize(tt.text), normalize(strings.Join(got, "")))
			for _, p := range got {
				assert.Equal(t, strings.TrimSpace(p), p, "passages must be trimmed")
			}
		})
	}
}

func TestSplitDecimalNotSplit(t *testing.T) {
	sp := &Splitter{Size: 100}
	got := sp.Split("Pi is 3.14159 and e is 2.71828.")
	assert.Len(t, got, 1)
}

func TestSplitEmptyAndBlankInput(t *testing.T) {
	sp := &Splitter{Size: 10}
	assert.Empty(t, sp.Split(""))
	assert.Empty(t, sp.Split("   \n\n  \n\n "))
}

func TestTokenizeRoundTrip(t *testing.T) {
	for _, text := range []string{"hello, world!", "a1b2 c3", "中文mixed text"} {
		tokens := tokenize(text)
		assert.Equal(t, text, strings.Join(tokens, ""))
	}
}
