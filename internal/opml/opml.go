// Package opml handles importing and exporting OPML files.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// OPML represents the root of an OPML document.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains OPML metadata.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outlines.
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a single outline element (folder or feed).
type Outline struct {
	Text     string    `xml:"text,attr"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLURL   string    `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string    `xml:"htmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// FeedEntry represents a flattened feed with its folder path.
type FeedEntry struct {
	FolderPath []string // e.g., ["Tech", "Google"]
	Title      string
	URL        string
	SiteURL    string
	Format     string // "atom", "rss", "rdf" or "auto"
}

// Parse reads an OPML document and returns a flat list of FeedEntry in
// document order.
func Parse(r io.Reader) ([]FeedEntry, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel
	var doc OPML
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode opml: %w", err)
	}
	var entries []FeedEntry
	var walk func(outlines []Outline, path []string)
	walk = func(outlines []Outline, path []string) {
		for _, o := range outlines {
			if o.XMLURL != "" {
				title := o.Title
				if title == "" {
					title = o.Text
				}
				entries = append(entries, FeedEntry{
					FolderPath: append([]string{}, path...),
					Title:      strings.TrimSpace(title),
					URL:        strings.TrimSpace(o.XMLURL),
					SiteURL:    o.HTMLURL,
					Format:     formatFromType(o.Type),
				})
			} else if len(o.Outlines) > 0 {
				name := o.Text
				if name == "" {
					name = o.Title
				}
				walk(o.Outlines, append(append([]string{}, path...), name))
			}
		}
	}
	walk(doc.Body.Outlines, nil)
	return entries, nil
}

// formatFromType maps the outline type attribute to a parser format tag.
func formatFromType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "atom":
		return "atom"
	case "rdf":
		return "rdf"
	}
	// "rss" is used for every kind of feed in the wild.
	return "auto"
}

func typeFromFormat(format string) string {
	if format == "atom" {
		return "atom"
	}
	return "rss"
}

// Export generates an OPML document. Folder paths become nested outlines;
// folders and feeds are sorted by name.
func Export(title string, entries []FeedEntry, created time.Time) ([]byte, error) {
	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       title,
			DateCreated: created.Format(time.RFC1123Z),
		},
	}

	root := &folderNode{children: map[string]*folderNode{}}
	for _, e := range entries {
		node := root
		for _, name := range e.FolderPath {
			child, ok := node.children[name]
			if !ok {
				child = &folderNode{name: name, children: map[string]*folderNode{}}
				node.children[name] = child
			}
			node = child
		}
		node.feeds = append(node.feeds, Outline{
			Text:    e.Title,
			Title:   e.Title,
			Type:    typeFromFormat(e.Format),
			XMLURL:  e.URL,
			HTMLURL: e.SiteURL,
		})
	}
	doc.Body.Outlines = root.outlines()

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}

type folderNode struct {
	name     string
	children map[string]*folderNode
	feeds    []Outline
}

// outlines renders subfolders first, then feeds.
func (n *folderNode) outlines() []Outline {
	names := make([]string, 0, len(n.children))
	for name := range n.children {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Outline
	for _, name := range names {
		child := n.children[name]
		out = append(out, Outline{Text: name, Title: name, Outlines: child.outlines()})
	}
	feeds := append([]Outline(nil), n.feeds...)
	sort.SliceStable(feeds, func(i, j int) bool { return strings.ToLower(feeds[i].Title) < strings.ToLower(feeds[j].Title) })
	return append(out, feeds...)
}
