package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Info is the feed-level metadata shown when a feed is added.
type Info struct {
	Title   string
	SiteURL string
	Format  Format
	Entries int
}

// Probe reads channel metadata from a payload without producing drafts.
func Probe(raw []byte) (Info, error) {
	format, err := Detect(raw)
	if err != nil {
		return Info{}, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return Info{
		Title:   strings.TrimSpace(feed.Title),
		SiteURL: feed.Link,
		Format:  format,
		Entries: len(feed.Items),
	}, nil
}
