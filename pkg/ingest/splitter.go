package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

// Splitter cuts text into passages of at most Size characters, preferring
// paragraph boundaries, then sentence boundaries, then token boundaries.
type Splitter struct {
	// Size is the target passage length in characters (runes).
	Size int
}

var paragraphBoundary = regexp.MustCompile(`\n{2,}`)

// cjkTerminals end a sentence immediately; ASCII terminals need trailing
// whitespace so decimals and abbreviations stay intact.
const cjkTerminals = "。！？；…"
const asciiTerminals = ".!?;"

// Split returns the trimmed passages of text. Their concatenation equals the
// input up to boundary whitespace; no passage exceeds the target size unless
// a single token does.
func (sp *Splitter) Split(text string) []string {
	var passages []string
	var current strings.Builder
	currentLen := 0

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			passages = append(passages, trimmed)
		}
		current.Reset()
		currentLen = 0
	}

	appendPiece := func(piece, sep string) {
		pieceLen := runeLen(piece)
		sepLen := 0
		if currentLen > 0 {
			sepLen = runeLen(sep)
		}
		if currentLen > 0 && currentLen+sepLen+pieceLen > sp.Size {
			flush()
			sepLen = 0
		}
		if sepLen > 0 {
			current.WriteString(sep)
			currentLen += sepLen
		}
		current.WriteString(piece)
		currentLen += pieceLen
	}

	for _, para := range paragraphBoundary.Split(text, -1) {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if runeLen(para) <= sp.Size {
			appendPiece(para, "\n\n")
			continue
		}

		// Paragraph too long: drop to sentences.
		flush()
		for _, sentence := range splitSentences(para) {
			if runeLen(sentence) <= sp.Size {
				appendPiece(sentence, " ")
				continue
			}

			// Sentence too long: drop to tokens.
			flush()
			for _, token := range tokenize(sentence) {
				appendPiece(token, "")
			}
			flush()
		}
		flush()
	}
	flush()

	return passages
}

// splitSentences cuts after CJK terminal punctuation, and after ASCII
// terminal punctuation followed by whitespace (the whitespace is consumed).
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if strings.ContainsRune(cjkTerminals, r) {
			sentences = appendNonEmpty(sentences, string(runes[start:i+1]))
			start = i + 1
			continue
		}
		if strings.ContainsRune(asciiTerminals, r) && i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			sentences = appendNonEmpty(sentences, string(runes[start:i+1]))
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		sentences = appendNonEmpty(sentences, string(runes[start:]))
	}
	return sentences
}

// tokenize segments a sentence into tokens whose concatenation reproduces it
// exactly: runs of letters and digits stay together, every other rune is its
// own token.
func tokenize(text string) []string {
	var tokens []string
	var run strings.Builder

	flushRun := func() {
		if run.Len() > 0 {
			tokens = append(tokens, run.String())
			run.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			run.WriteRune(r)
			continue
		}
		flushRun()
		tokens = append(tokens, string(r))
	}
	flushRun()
	return tokens
}

func appendNonEmpty(list []string, s string) []string {
	if strings.TrimSpace(s) == "" {
		return list
	}
	return append(list, s)
}

func runeLen(s string) int {
	return len([]rune(s))
}
