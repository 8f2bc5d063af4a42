// Package htmltext extracts ordered paragraph texts from stored page
// HTML. The translation merger matches ranked snippets against these
// paragraphs to pick the right per-paragraph translation.
package htmltext

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Paragraph is one text block with its position in the original HTML.
// Index counts every paragraph in the source, including ones whose text
// is empty after stripping, so stored per-paragraph translations line
// up by index.
type Paragraph struct {
	Index int
	Text  string
}

// titleSpan matches title spans whose content wraps across lines; the
// newlines inside are joined before the fallback line split.
var titleSpan = regexp.MustCompile(`(?s)<span[^>]*class="[^"]*title[^"]*"[^>]*>(.*?)</span>`)

// Paragraphs extracts the paragraph list from an HTML fragment. <p>
// elements win when present; otherwise the stripped text is split on
// newlines.
func Paragraphs(fragment string) []Paragraph {
	if strings.TrimSpace(fragment) == "" {
		return nil
	}
	if ps := fromParagraphTags(fragment); ps != nil {
		return ps
	}
	return fromLines(fragment)
}

func fromParagraphTags(fragment string) []Paragraph {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil
	}
	var out []Paragraph
	index := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			text := collapseSpace(nodeText(n))
			if text != "" {
				out = append(out, Paragraph{Index: index, Text: text})
			}
			index++
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if index == 0 {
		return nil
	}
	if out == nil {
		out = []Paragraph{}
	}
	return out
}

func fromLines(fragment string) []Paragraph {
	// Join title spans that wrap across source lines so a heading stays
	// one paragraph.
	joined := titleSpan.ReplaceAllStringFunc(fragment, func(m string) string {
		return strings.Join(strings.Fields(m), " ")
	})
	stripped := stripTags(joined)

	out := make([]Paragraph, 0)
	for i, line := range strings.Split(stripped, "\n") {
		text := collapseSpace(line)
		if text == "" {
			continue
		}
		out = append(out, Paragraph{Index: i, Text: text})
	}
	return out
}

func stripTags(fragment string) string {
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return b.String()
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Nearest returns the index of the paragraph whose text is closest to
// the given snippet, or -1 when nothing overlaps. Closeness is simple
// token overlap; page snippets come from the same source text, so exact
// token matches dominate.
func Nearest(paragraphs []Paragraph, snippet string) int {
	tokens := strings.Fields(collapseSpace(snippet))
	if len(tokens) == 0 || len(paragraphs) == 0 {
		return -1
	}
	bestIdx, bestScore := -1, 0
	for _, p := range paragraphs {
		pTokens := make(map[string]bool)
		for _, t := range strings.Fields(p.Text) {
			pTokens[t] = true
		}
		score := 0
		for _, t := range tokens {
			if pTokens[t] {
				score++
			}
		}
		if score > bestScore {
			bestIdx, bestScore = p.Index, score
		}
	}
	return bestIdx
}
