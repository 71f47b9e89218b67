package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

var fetchTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func atomFeed(entries string) []byte {
	return []byte(`<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example</title>
  <link href="http://example.com/"/>
` + entries + `
</feed>`)
}

func mustParse(t *testing.T, raw []byte, format Format) []model.Draft {
	t.Helper()
	drafts, err := Parse(raw, format, fetchTime)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return drafts
}

func TestParseAtomPreservesEntryOrder(t *testing.T) {
	raw := atomFeed(`
  <entry><title>first</title><link href="http://x/1"/><updated>2024-01-01T10:00:00Z</updated></entry>
  <entry><title>second</title><link href="http://x/2"/><updated>2024-01-02T10:00:00Z</updated></entry>
  <entry><title>third</title><link href="http://x/3"/><updated>2024-01-03T10:00:00Z</updated></entry>`)
	drafts := mustParse(t, raw, FormatAtom)
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d", len(drafts))
	}
	for i, want := range []string{"first", "second", "third"} {
		if drafts[i].Title != want {
			t.Errorf("draft %d title = %q, want %q", i, drafts[i].Title, want)
		}
	}
	if !drafts[1].CreatedFromFeed || !drafts[1].Created.Equal(time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected date %v (from feed %v)", drafts[1].Created, drafts[1].CreatedFromFeed)
	}
}

func TestParseDropsEmptyEntry(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title></title></entry>`), FormatAtom)
	if len(drafts) != 0 {
		t.Fatalf("expected no drafts, got %d", len(drafts))
	}
}

func TestParseTitleFallsBackToSummary(t *testing.T) {
	encodings := map[string]string{
		"escaped": `<summary type="html">Hello &lt;b&gt;World&lt;/b&gt;</summary>`,
		"cdata":   `<summary type="html"><![CDATA[Hello <b>World</b>]]></summary>`,
		"inline":  `<summary type="xhtml">Hello <b>World</b></summary>`,
	}
	for name, summary := range encodings {
		t.Run(name, func(t *testing.T) {
			drafts := mustParse(t, atomFeed(`<entry><title></title>`+summary+`</entry>`), FormatAtom)
			if len(drafts) != 1 {
				t.Fatalf("expected 1 draft, got %d", len(drafts))
			}
			if drafts[0].Title != "Hello World" {
				t.Errorf("title = %q", drafts[0].Title)
			}
			if drafts[0].Contents != "Hello <b>World</b>" {
				t.Errorf("contents = %q", drafts[0].Contents)
			}
		})
	}
}

func TestParseTitleStripsMarkup(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title type="html">&lt;b&gt;Bold&lt;/b&gt; news</title></entry>`), FormatAtom)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	if drafts[0].Title != "Bold news" {
		t.Errorf("title = %q", drafts[0].Title)
	}
}

func TestParseSummaryFallsBackToContent(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title>T</title><content type="html">&lt;p&gt;body&lt;/p&gt;</content></entry>`), FormatAtom)
	if len(drafts) != 1 || drafts[0].Contents != "<p>body</p>" {
		t.Fatalf("unexpected drafts %+v", drafts)
	}
}

func TestParseEnclosureFallback(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title>Episode</title>
		<link rel="enclosure" href="http://x/a.mp3" type="audio/mpeg"/></entry>`), FormatAtom)
	if len(drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(drafts))
	}
	d := drafts[0]
	if d.URL != "http://x/a.mp3" {
		t.Errorf("url = %q", d.URL)
	}
	want := []model.Enclosure{{URL: "http://x/a.mp3", MimeType: "audio/mpeg"}}
	if len(d.Enclosures) != 1 || d.Enclosures[0] != want[0] {
		t.Errorf("enclosures = %+v", d.Enclosures)
	}
}

func TestParsePrimaryLinkPrecedence(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title>Episode</title>
		<link rel="enclosure" href="http://x/a.mp3" type="audio/mpeg"/>
		<link href="http://x/page"/></entry>`), FormatAtom)
	d := drafts[0]
	if d.URL != "http://x/page" {
		t.Errorf("url = %q", d.URL)
	}
	if len(d.Enclosures) != 1 || d.Enclosures[0].URL != "http://x/a.mp3" {
		t.Errorf("enclosures = %+v", d.Enclosures)
	}
}

func TestParseLastPrimaryLinkWins(t *testing.T) {
	drafts := mustParse(t, atomFeed(`<entry><title>T</title>
		<link rel="alternate" href="http://x/one"/>
		<link rel="related" href="http://x/two"/></entry>`), FormatAtom)
	if drafts[0].URL != "http://x/two" {
		t.Errorf("url = %q", drafts[0].URL)
	}
}

func TestParseDateFallback(t *testing.T) {
	drafts := mustParse(t, atomFeed(`
		<entry><title>missing</title></entry>
		<entry><title>garbage</title><updated>not a date at all</updated></entry>`), FormatAtom)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	for _, d := range drafts {
		if d.CreatedFromFeed {
			t.Errorf("%s: createdFromFeed should be false", d.Title)
		}
		if !d.Created.Equal(fetchTime) {
			t.Errorf("%s: created = %v, want %v", d.Title, d.Created, fetchTime)
		}
	}
}

func TestParseAuthorDefaultsAndEscaping(t *testing.T) {
	drafts := mustParse(t, atomFeed(`
		<entry><title>a</title><author><name>Tom &amp; Jerry</name></author></entry>
		<entry><title>b</title></entry>`), FormatAtom)
	if drafts[0].Author != "Tom &amp; Jerry" {
		t.Errorf("author = %q", drafts[0].Author)
	}
	if drafts[1].Author != "" || drafts[1].URL != "" {
		t.Errorf("expected empty author and url, got %q %q", drafts[1].Author, drafts[1].URL)
	}
}

func TestParseRSS(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Channel</title>
  <link>http://example.com/</link>
  <item>
    <title>  Spaced
      title </title>
    <link>http://example.com/post</link>
    <description>&lt;p&gt;Body&lt;/p&gt;</description>
    <dc:creator>Alice</dc:creator>
    <pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
    <enclosure url="http://example.com/ep.mp3" type="audio/mpeg" length="1"/>
  </item>
  <item>
    <description></description>
    <content:encoded><![CDATA[Only <em>encoded</em>]]></content:encoded>
  </item>
</channel>
</rss>`)
	drafts := mustParse(t, raw, FormatRSS)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	d := drafts[0]
	if d.Title != "Spaced title" || d.URL != "http://example.com/post" || d.Author != "Alice" {
		t.Errorf("unexpected first draft %+v", d)
	}
	if d.Contents != "<p>Body</p>" {
		t.Errorf("contents = %q", d.Contents)
	}
	if !d.CreatedFromFeed || d.Created.Year() != 2006 {
		t.Errorf("date = %v", d.Created)
	}
	if len(d.Enclosures) != 1 || d.Enclosures[0].MimeType != "audio/mpeg" {
		t.Errorf("enclosures = %+v", d.Enclosures)
	}
	if drafts[1].Title != "Only encoded" || drafts[1].Contents != "Only <em>encoded</em>" {
		t.Errorf("unexpected second draft %+v", drafts[1])
	}
}

func TestParseRDF(t *testing.T) {
	raw := []byte(`<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel rdf:about="http://example.com/"><title>RDF</title>
    <items><rdf:Seq><rdf:li resource="http://example.com/1"/></rdf:Seq></items>
  </channel>
  <item rdf:about="http://example.com/1">
    <title>One</title>
    <link>http://example.com/1</link>
    <dc:date>2024-02-03T04:05:06Z</dc:date>
  </item>
</rdf:RDF>`)
	for _, format := range []Format{FormatRDF, FormatAuto} {
		drafts := mustParse(t, raw, format)
		if len(drafts) != 1 || drafts[0].URL != "http://example.com/1" || !drafts[0].CreatedFromFeed {
			t.Errorf("%s: unexpected drafts %+v", format, drafts)
		}
	}
}

func TestParseMalformedPayload(t *testing.T) {
	tests := map[string][]byte{
		"truncated":  []byte(`<feed><entry><title>cut`),
		"not xml":    []byte(`this is not a feed`),
		"empty":      nil,
		"wrong root": []byte(`<rss><channel><item><title>x</title></item></channel></rss>`),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(raw, FormatAtom, fetchTime)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestParseUnknownFormat(t *testing.T) {
	if _, err := Parse(atomFeed(""), Format("json"), fetchTime); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		raw  string
		want Format
	}{
		{`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`, FormatAtom},
		{`<rss version="2.0"><channel></channel></rss>`, FormatRSS},
		{`<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"></rdf:RDF>`, FormatRDF},
	}
	for _, tt := range tests {
		got, err := Detect([]byte(tt.raw))
		if err != nil {
			t.Fatalf("Detect(%q) failed: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("Detect(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
	if _, err := Detect([]byte("<html><body>hi</body></html>")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat for html, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatAuto {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if f, err := ParseFormat(" RSS "); err != nil || f != FormatRSS {
		t.Errorf("ParseFormat(RSS) = %v, %v", f, err)
	}
	if _, err := ParseFormat("gopher"); err == nil {
		t.Error("expected error for unknown tag")
	}
}

func TestProbe(t *testing.T) {
	info, err := Probe(atomFeed(`<entry><title>x</title></entry>`))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if info.Title != "Example" || info.Format != FormatAtom || info.Entries != 1 {
		t.Errorf("unexpected info %+v", info)
	}
}
