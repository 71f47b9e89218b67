// Package parser turns raw syndication payloads into message drafts.
//
// Each supported schema is a variant that knows its root and entry element
// names and how to pull the common fields out of one entry. Everything after
// field extraction is shared, so the drafts do not depend on the format.
package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/bryan-buckman/feedkeeper/internal/model"
	"github.com/bryan-buckman/feedkeeper/internal/textnorm"
)

var (
	// ErrMalformedPayload means the document as a whole could not be read.
	ErrMalformedPayload = errors.New("malformed feed payload")
	// ErrUnsupportedFormat means the payload or tag names no known schema.
	ErrUnsupportedFormat = errors.New("unsupported feed format")
)

const relEnclosure = "enclosure"

// link is a link element reduced to the attributes every variant shares.
type link struct {
	href     string
	rel      string
	mimeType string
}

// fields holds the raw values extracted from one entry.
type fields struct {
	title   string
	summary string
	author  string
	date    string
	links   []link
}

// variant extracts entry fields for one schema.
type variant interface {
	acceptsRoot(local string) bool
	entryElement() string
	extract(dec *xml.Decoder, start *xml.StartElement) (fields, error)
}

func variantFor(f Format) (variant, error) {
	switch f {
	case FormatAtom:
		return atomVariant{}, nil
	case FormatRSS:
		return rssVariant{root: "rss"}, nil
	case FormatRDF:
		return rssVariant{root: "RDF"}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

func newDecoder(raw []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// Parse converts a payload into drafts in document order. fetchTime stamps
// entries whose date is missing or unreadable. An error is returned only
// when the document itself cannot be read; defective entries are dropped
// or defaulted individually.
func Parse(raw []byte, format Format, fetchTime time.Time) ([]model.Draft, error) {
	if format == FormatAuto || format == "" {
		detected, err := Detect(raw)
		if err != nil {
			return nil, err
		}
		format = detected
	}
	v, err := variantFor(format)
	if err != nil {
		return nil, err
	}

	dec := newDecoder(raw)
	var drafts []model.Draft
	rootSeen := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootSeen {
			if !v.acceptsRoot(se.Name.Local) {
				return nil, fmt.Errorf("%w: unexpected root <%s> for %s", ErrMalformedPayload, se.Name.Local, format)
			}
			rootSeen = true
			continue
		}
		if se.Name.Local != v.entryElement() {
			continue
		}
		f, err := v.extract(dec, &se)
		if err != nil {
			if isDocumentError(err) {
				return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
			}
			continue
		}
		if d, ok := buildDraft(f, fetchTime); ok {
			drafts = append(drafts, d)
		}
	}
	if !rootSeen {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedPayload)
	}
	return drafts, nil
}

func isDocumentError(err error) bool {
	var syntaxErr *xml.SyntaxError
	return errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// buildDraft applies the shared title, link, author and date rules.
func buildDraft(f fields, fetchTime time.Time) (model.Draft, bool) {
	title := textnorm.CollapseWhitespace(textnorm.StripMarkup(f.title))
	if title == "" {
		if strings.TrimSpace(f.summary) == "" {
			return model.Draft{}, false
		}
		title = textnorm.CollapseWhitespace(textnorm.StripMarkup(f.summary))
	}

	d := model.Draft{
		Title:    title,
		Contents: f.summary,
		Author:   textnorm.EscapeHTML(textnorm.CollapseWhitespace(f.author)),
	}
	for _, l := range f.links {
		href := strings.TrimSpace(l.href)
		if href == "" {
			continue
		}
		if strings.EqualFold(l.rel, relEnclosure) {
			d.Enclosures = append(d.Enclosures, model.Enclosure{URL: href, MimeType: strings.TrimSpace(l.mimeType)})
			continue
		}
		d.URL = href
	}
	if d.URL == "" && len(d.Enclosures) > 0 {
		d.URL = d.Enclosures[0].URL
	}

	if created, ok := ParseDate(f.date); ok {
		d.Created = created
		d.CreatedFromFeed = true
	} else {
		d.Created = fetchTime
	}
	return d, true
}
