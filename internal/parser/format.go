package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Format names a supported payload schema.
type Format string

const (
	FormatAuto Format = "auto"
	FormatAtom Format = "atom"
	FormatRSS  Format = "rss"
	FormatRDF  Format = "rdf"
)

// ParseFormat normalizes a format tag. An empty tag means FormatAuto.
func ParseFormat(tag string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(tag))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatAtom, FormatRSS, FormatRDF:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
}

// Detect sniffs the payload and returns its concrete format.
func Detect(raw []byte) (Format, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(raw)) {
	case gofeed.FeedTypeAtom:
		return FormatAtom, nil
	case gofeed.FeedTypeRSS:
		if strings.EqualFold(rootElement(raw), "RDF") {
			return FormatRDF, nil
		}
		return FormatRSS, nil
	case gofeed.FeedTypeJSON:
		return "", fmt.Errorf("%w: json feed", ErrUnsupportedFormat)
	}
	return "", fmt.Errorf("%w: payload is not a feed", ErrUnsupportedFormat)
}

func rootElement(raw []byte) string {
	dec := newDecoder(raw)
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se.Name.Local
		}
	}
}
