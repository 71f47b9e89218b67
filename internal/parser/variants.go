package parser

import (
	"encoding/xml"
	"strings"
)

type atomVariant struct{}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type atomEntry struct {
	Title      richText   `xml:"title"`
	Summary    richText   `xml:"summary"`
	Content    richText   `xml:"content"`
	Links      []atomLink `xml:"link"`
	AuthorName string     `xml:"author>name"`
	Updated    string     `xml:"updated"`
	Published  string     `xml:"published"`
}

func (atomVariant) acceptsRoot(local string) bool { return local == "feed" }

func (atomVariant) entryElement() string { return "entry" }

func (atomVariant) extract(dec *xml.Decoder, start *xml.StartElement) (fields, error) {
	var e atomEntry
	if err := dec.DecodeElement(&e, start); err != nil {
		return fields{}, err
	}
	f := fields{
		title:   string(e.Title),
		summary: firstNonBlank(string(e.Summary), string(e.Content)),
		author:  e.AuthorName,
		date:    firstNonBlank(e.Updated, e.Published),
	}
	for _, l := range e.Links {
		f.links = append(f.links, link{href: l.Href, rel: l.Rel, mimeType: l.Type})
	}
	return f, nil
}

// rssVariant covers RSS 2.0 and RSS 1.0, which differ only in the root.
type rssVariant struct {
	root string
}

// rssLink matches both <link>url</link> and <atom:link href="..."/>.
type rssLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
}

type rssEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type rssItem struct {
	Title       richText       `xml:"title"`
	Description richText       `xml:"description"`
	Encoded     richText       `xml:"encoded"`
	Links       []rssLink      `xml:"link"`
	Enclosures  []rssEnclosure `xml:"enclosure"`
	Author      string         `xml:"author"`
	Creator     string         `xml:"creator"`
	PubDate     string         `xml:"pubDate"`
	Date        string         `xml:"date"`
}

func (v rssVariant) acceptsRoot(local string) bool { return local == v.root }

func (rssVariant) entryElement() string { return "item" }

func (rssVariant) extract(dec *xml.Decoder, start *xml.StartElement) (fields, error) {
	var it rssItem
	if err := dec.DecodeElement(&it, start); err != nil {
		return fields{}, err
	}
	f := fields{
		title:   string(it.Title),
		summary: firstNonBlank(string(it.Description), string(it.Encoded)),
		author:  firstNonBlank(it.Creator, it.Author),
		date:    firstNonBlank(it.PubDate, it.Date),
	}
	for _, l := range it.Links {
		href := l.Href
		if href == "" {
			href = l.Text
		}
		f.links = append(f.links, link{href: href, rel: l.Rel, mimeType: l.Type})
	}
	for _, enc := range it.Enclosures {
		f.links = append(f.links, link{href: enc.URL, rel: relEnclosure, mimeType: enc.Type})
	}
	return f, nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
