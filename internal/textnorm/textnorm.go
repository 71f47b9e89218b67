// Package textnorm sanitizes text fields taken from syndication payloads.
// Every function is pure and safe for concurrent use.
package textnorm

import (
	"html"
	"regexp"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

// StripMarkup removes markup tags and returns the remaining text.
// Character references are decoded; script and style bodies are dropped.
func StripMarkup(text string) string {
	if !strings.ContainsAny(text, "<&") {
		return text
	}
	var b strings.Builder
	z := nethtml.NewTokenizer(strings.NewReader(text))
	skip := 0
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return b.String()
		case nethtml.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case nethtml.StartTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) {
				skip++
			}
		case nethtml.EndTagToken:
			if name, _ := z.TagName(); isRawTextTag(name) && skip > 0 {
				skip--
			}
		}
	}
}

func isRawTextTag(name []byte) bool {
	s := string(name)
	return s == "script" || s == "style"
}

// CollapseWhitespace trims the text and replaces every run of internal
// whitespace, newlines included, with a single space.
func CollapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// PercentDecode decodes %XX escape sequences. Malformed sequences are
// kept verbatim and '+' is not treated as a space.
func PercentDecode(text string) string {
	if !strings.Contains(text, "%") {
		return text
	}
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '%' && i+2 < len(text) {
			hi, okHi := unhex(text[i+1])
			lo, okLo := unhex(text[i+2])
			if okHi && okLo {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, text[i])
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// EscapeHTML escapes the characters that are special in markup.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}

var (
	multiSpace    = regexp.MustCompile(`\s{2,}`)
	newlineOrLead = regexp.MustCompile(`[\n\r]|^\s+`)
)

// Title cleans up a title after it has been decoded: repeated whitespace
// becomes one space and line breaks and leading blanks are removed.
func Title(text string) string {
	text = multiSpace.ReplaceAllString(text, " ")
	return newlineOrLead.ReplaceAllString(text, "")
}

// Draft applies post-processing to a parsed draft before it is merged.
// Feeds that percent-encode their payload are decoded here.
func Draft(d model.Draft) model.Draft {
	d.Contents = PercentDecode(d.Contents)
	d.Title = Title(PercentDecode(d.Title))
	d.Author = CollapseWhitespace(d.Author)
	return d
}

// Drafts post-processes a batch in place and returns it.
func Drafts(drafts []model.Draft) []model.Draft {
	for i := range drafts {
		drafts[i] = Draft(drafts[i])
	}
	return drafts
}
