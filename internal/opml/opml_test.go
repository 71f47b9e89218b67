package opml

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/database"
	"github.com/bryan-buckman/feedkeeper/internal/model"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline text="Top" type="rss" xmlUrl="http://example.com/top.xml"/>
    <outline text="Tech">
      <outline text="Go">
        <outline title="Go Blog" text="go" type="atom" xmlUrl="https://go.dev/blog/feed.atom" htmlUrl="https://go.dev/blog"/>
      </outline>
      <outline text="Planet" type="rss" xmlUrl="http://planet.example.org/rss20.xml"/>
    </outline>
    <outline text="Broken" type="rss" xmlUrl="not a url"/>
  </body>
</opml>`

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	goBlog := entries[1]
	if goBlog.Title != "Go Blog" || goBlog.Format != "atom" || strings.Join(goBlog.FolderPath, "/") != "Tech/Go" {
		t.Errorf("unexpected entry %+v", goBlog)
	}
	if planet := entries[2]; strings.Join(planet.FolderPath, "/") != "Tech" || planet.Format != "auto" {
		t.Errorf("unexpected entry %+v", planet)
	}
	if len(entries[0].FolderPath) != 0 {
		t.Errorf("top-level feed has path %v", entries[0].FolderPath)
	}
}

func TestExportRoundTrip(t *testing.T) {
	entries, _ := Parse(strings.NewReader(sample))
	out, err := Export("Feeds", entries, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.HasPrefix(string(out), "<?xml") {
		t.Errorf("missing xml header")
	}
	again, err := Parse(strings.NewReader(string(out)))
	if err != nil {
		t.Fatalf("Parse of export failed: %v", err)
	}
	if len(again) != len(entries) {
		t.Fatalf("round trip lost entries: %d vs %d", len(again), len(entries))
	}
	paths := map[string]string{}
	for _, e := range again {
		paths[e.URL] = strings.Join(e.FolderPath, "/")
	}
	if paths["https://go.dev/blog/feed.atom"] != "Tech/Go" {
		t.Errorf("nested folder lost: %v", paths)
	}
}

func TestImportAndCollect(t *testing.T) {
	ctx := context.Background()
	db, err := database.New(filepath.Join(t.TempDir(), "opml.db"))
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	defer db.Close()

	entries, _ := Parse(strings.NewReader(sample))
	res, err := Import(ctx, db, entries, model.AutoUpdateGlobal)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(res.Created) != 3 || len(res.Invalid) != 1 {
		t.Fatalf("import result = %+v", res)
	}
	again, _ := Import(ctx, db, entries, model.AutoUpdateGlobal)
	if len(again.Created) != 0 || again.Skipped != 3 {
		t.Errorf("second import = %+v", again)
	}

	collected, err := Collect(ctx, db)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	paths := map[string]string{}
	for _, e := range collected {
		paths[e.URL] = strings.Join(e.FolderPath, "/")
	}
	if paths["https://go.dev/blog/feed.atom"] != "Tech/Go" || paths["http://example.com/top.xml"] != "" {
		t.Errorf("collected paths = %v", paths)
	}
}
