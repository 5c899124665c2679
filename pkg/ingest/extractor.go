package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/scribehub/scribe/pkg/bufpool"
)

// CharSink receives extracted text as it is produced. onChars may be called
// many times with small fragments; onEnd is called exactly once after the
// last fragment.
type CharSink struct {
	OnChars func(text string) error
	OnEnd   func() error
}

// ExtractText streams the document's text content into the sink. HTML is
// parsed to its text nodes; every other supported format is treated as
// UTF-8 text. The reader is consumed fully but never buffered whole.
func ExtractText(r io.Reader, fileName string, sink CharSink) error {
	var err error
	switch extension(fileName) {
	case "html", "htm":
		err = extractHTML(r, sink)
	default:
		err = extractPlain(r, sink)
	}
	if err != nil {
		return err
	}
	if sink.OnEnd != nil {
		return sink.OnEnd()
	}
	return nil
}

func extension(fileName string) string {
	idx := strings.LastIndexByte(fileName, '.')
	if idx < 0 || idx == len(fileName)-1 {
		return ""
	}
	return strings.ToLower(fileName[idx+1:])
}

// extractPlain streams the input through in fixed-size reads.
func extractPlain(r io.Reader, sink CharSink) error {
	buf := bufpool.Get(64 * 1024)
	defer bufpool.Put(buf)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if cbErr := sink.OnChars(string(buf[:n])); cbErr != nil {
				return cbErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
	}
}

// extractHTML emits text nodes, skipping script and style bodies. Block
// elements close with a newline so the splitter sees paragraph structure.
func extractHTML(r io.Reader, sink CharSink) error {
	z := html.NewTokenizer(bufio.NewReader(r))
	skipDepth := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to parse html: %w", z.Err())

		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkippedTag(string(name)) {
				skipDepth++
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if isSkippedTag(tag) && skipDepth > 0 {
				skipDepth--
			}
			if skipDepth == 0 && isBlockTag(tag) {
				if err := sink.OnChars("\n\n"); err != nil {
					return err
				}
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := string(z.Text())
			if strings.TrimSpace(text) == "" {
				continue
			}
			if err := sink.OnChars(text); err != nil {
				return err
			}
		}
	}
}

func isSkippedTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6",
		"section", "article", "blockquote", "pre", "table":
		return true
	}
	return false
}
