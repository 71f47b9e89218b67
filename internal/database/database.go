// Package database provides SQLite storage for the feed reader.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryan-buckman/feedkeeper/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps a SQL connection pool. The same queries serve SQLite and
// PostgreSQL; the dialect only changes placeholders and the schema.
type DB struct {
	conn    *sql.DB
	dialect dialect
	scopes  scopeLocks
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

type dialect struct {
	name            string
	dollarParams    bool
	highConcurrency bool
	schema          string
}

var sqliteDialect = dialect{
	name:   "SQLite",
	schema: sqliteSchema,
}

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection serializes writers; workers queue on the pool.
	conn.SetMaxOpenConns(1)
	db := &DB{conn: conn, dialect: sqliteDialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return db.dialect.name
}

// SupportsHighConcurrency returns false for SQLite and true for PostgreSQL.
func (db *DB) SupportsHighConcurrency() bool {
	return db.dialect.highConcurrency
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(db.dialect.schema)
	return err
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES folders(id) ON DELETE CASCADE
	);
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL DEFAULT 1,
		folder_id INTEGER REFERENCES folders(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		format TEXT NOT NULL DEFAULT 'auto',
		status INTEGER NOT NULL DEFAULT 0,
		auto_update_mode INTEGER NOT NULL DEFAULT 1,
		auto_update_interval_seconds INTEGER NOT NULL DEFAULT 0,
		last_fetched_ms INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		UNIQUE(account_id, url)
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		feed_id INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE,
		account_id INTEGER NOT NULL,
		dedup_key TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		title TEXT NOT NULL,
		contents TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		created_ms INTEGER NOT NULL,
		created_from_feed INTEGER NOT NULL DEFAULT 0,
		is_read INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		is_purged INTEGER NOT NULL DEFAULT 0,
		UNIQUE(feed_id, account_id, dedup_key)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_account_deleted ON messages(account_id, is_deleted);
	CREATE TABLE IF NOT EXISTS enclosures (
		message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		url TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (message_id, ordinal)
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

// rebind rewrites ? placeholders for drivers that number their parameters.
func (db *DB) rebind(query string) string {
	if !db.dialect.dollarParams {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// scopeLocks allows one batch writer per feed+account scope.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[[2]int64]*sync.Mutex
}

func (s *scopeLocks) lock(feedID, accountID int64) func() {
	s.mu.Lock()
	if s.locks == nil {
		s.locks = make(map[[2]int64]*sync.Mutex)
	}
	key := [2]int64{feedID, accountID}
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// forget drops the locks of a deleted feed.
func (s *scopeLocks) forget(feedID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.locks {
		if key[0] == feedID {
			delete(s.locks, key)
		}
	}
}

func (s *scopeLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// --- Folder Methods ---

// GetFolders returns all folders ordered by name.
func (db *DB) GetFolders(ctx context.Context) ([]model.Folder, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name, parent_id FROM folders ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var folders []model.Folder
	for rows.Next() {
		var f model.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// CreateFolder creates a new folder. Returns the ID.
func (db *DB) CreateFolder(ctx context.Context, name string, parentID *int64) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, db.rebind("INSERT INTO folders (name, parent_id) VALUES (?, ?) RETURNING id"), name, parentID).Scan(&id)
	return id, err
}

// GetOrCreateFolder finds a folder by name and parent, or creates it.
func (db *DB) GetOrCreateFolder(ctx context.Context, name string, parentID *int64) (int64, error) {
	var id int64
	var row *sql.Row
	if parentID == nil {
		row = db.conn.QueryRowContext(ctx, db.rebind("SELECT id FROM folders WHERE name = ? AND parent_id IS NULL"), name)
	} else {
		row = db.conn.QueryRowContext(ctx, db.rebind("SELECT id FROM folders WHERE name = ? AND parent_id = ?"), name, *parentID)
	}
	err := row.Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.CreateFolder(ctx, name, parentID)
	}
	return id, err
}

// GetFolderByID returns a folder or model.ErrFolderNotFound.
func (db *DB) GetFolderByID(ctx context.Context, folderID int64) (*model.Folder, error) {
	var f model.Folder
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT id, name, parent_id FROM folders WHERE id = ?"), folderID).Scan(&f.ID, &f.Name, &f.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFolder removes a folder and its subfolders. Feeds inside become unfiled.
func (db *DB) DeleteFolder(ctx context.Context, folderID int64) error {
	_, err := db.conn.ExecContext(ctx, db.rebind("DELETE FROM folders WHERE id = ?"), folderID)
	return err
}

// --- Feed Methods ---

const feedColumns = "id, account_id, folder_id, title, url, format, status, auto_update_mode, auto_update_interval_seconds, last_fetched_ms, last_error"

type scanner interface {
	Scan(dest ...any) error
}

func scanFeed(s scanner) (model.Feed, error) {
	var f model.Feed
	var intervalSeconds, lastFetched int64
	err := s.Scan(&f.ID, &f.AccountID, &f.FolderID, &f.Title, &f.URL, &f.Format, &f.Status,
		&f.AutoUpdateMode, &intervalSeconds, &lastFetched, &f.LastError)
	f.AutoUpdateInterval = time.Duration(intervalSeconds) * time.Second
	f.LastFetched = fromMillis(lastFetched)
	return f, err
}

// GetAllFeeds returns every feed ordered by title.
func (db *DB) GetAllFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT "+feedColumns+" FROM feeds ORDER BY title, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// GetFeedByID returns a feed or model.ErrFeedNotFound.
func (db *DB) GetFeedByID(ctx context.Context, feedID int64) (*model.Feed, error) {
	f, err := scanFeed(db.conn.QueryRowContext(ctx, db.rebind("SELECT "+feedColumns+" FROM feeds WHERE id = ?"), feedID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrFeedNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FeedExists reports whether the feed is still configured.
func (db *DB) FeedExists(ctx context.Context, feedID int64) (bool, error) {
	var one int
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT 1 FROM feeds WHERE id = ?"), feedID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateFeed adds a new feed and sets feed.ID.
func (db *DB) CreateFeed(ctx context.Context, feed *model.Feed) (int64, error) {
	if feed.AccountID == 0 {
		feed.AccountID = model.DefaultAccountID
	}
	if feed.Format == "" {
		feed.Format = "auto"
	}
	err := db.conn.QueryRowContext(ctx, db.rebind(`
		INSERT INTO feeds (account_id, folder_id, title, url, format, status, auto_update_mode, auto_update_interval_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		feed.AccountID, feed.FolderID, feed.Title, feed.URL, feed.Format, feed.Status,
		feed.AutoUpdateMode, int64(feed.AutoUpdateInterval/time.Second)).Scan(&feed.ID)
	if err != nil {
		return 0, err
	}
	return feed.ID, nil
}

// GetOrCreateFeed finds a feed by account and URL, or creates it.
// The boolean is true when the feed was created.
func (db *DB) GetOrCreateFeed(ctx context.Context, feed *model.Feed) (int64, bool, error) {
	if feed.AccountID == 0 {
		feed.AccountID = model.DefaultAccountID
	}
	var id int64
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT id FROM feeds WHERE account_id = ? AND url = ?"), feed.AccountID, feed.URL).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id, err := db.CreateFeed(ctx, feed)
		return id, true, err
	}
	if err == nil {
		feed.ID = id
	}
	return id, false, err
}

// UpdateFeedTitle renames a feed.
func (db *DB) UpdateFeedTitle(ctx context.Context, feedID int64, title string) error {
	return db.execFeed(ctx, "UPDATE feeds SET title = ? WHERE id = ?", title, feedID)
}

// UpdateFeedAutoUpdate stores the auto-update mode and feed-specific interval.
func (db *DB) UpdateFeedAutoUpdate(ctx context.Context, feedID int64, mode model.AutoUpdateMode, interval time.Duration) error {
	return db.execFeed(ctx, "UPDATE feeds SET auto_update_mode = ?, auto_update_interval_seconds = ? WHERE id = ?",
		mode, int64(interval/time.Second), feedID)
}

// UpdateFeedStatus records the outcome of the last fetch.
func (db *DB) UpdateFeedStatus(ctx context.Context, feedID int64, status model.Status, lastError string, fetched time.Time) error {
	// Keep error text short enough for list views.
	if len(lastError) > 200 {
		lastError = lastError[:200]
	}
	return db.execFeed(ctx, "UPDATE feeds SET status = ?, last_error = ?, last_fetched_ms = ? WHERE id = ?",
		status, lastError, toMillis(fetched), feedID)
}

// MoveFeedToFolder changes the folder a feed belongs to; nil unfiles it.
func (db *DB) MoveFeedToFolder(ctx context.Context, feedID int64, folderID *int64) error {
	return db.execFeed(ctx, "UPDATE feeds SET folder_id = ? WHERE id = ?", folderID, feedID)
}

// DeleteFeed removes a feed together with its messages.
func (db *DB) DeleteFeed(ctx context.Context, feedID int64) error {
	if err := db.execFeed(ctx, "DELETE FROM feeds WHERE id = ?", feedID); err != nil {
		return err
	}
	db.scopes.forget(feedID)
	return nil
}

func (db *DB) execFeed(ctx context.Context, query string, args ...any) error {
	res, err := db.conn.ExecContext(ctx, db.rebind(query), args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.ErrFeedNotFound
	}
	return nil
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var val string
	err := db.conn.QueryRowContext(ctx, db.rebind("SELECT value FROM settings WHERE key = ?"), key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, db.rebind("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"), key, value)
	return err
}

// GetAutoUpdateInterval returns the stored global interval, or fallback
// when none has been saved yet.
func (db *DB) GetAutoUpdateInterval(ctx context.Context, fallback time.Duration) (time.Duration, error) {
	val, err := db.GetSetting(ctx, model.SettingAutoUpdateInterval)
	if errors.Is(err, sql.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	mins, err := strconv.Atoi(val)
	if err != nil || mins < 1 {
		return fallback, nil
	}
	return time.Duration(mins) * time.Minute, nil
}

// SetAutoUpdateInterval stores the global interval in whole minutes.
func (db *DB) SetAutoUpdateInterval(ctx context.Context, interval time.Duration) error {
	if interval < time.Minute {
		return model.ErrInvalidInterval
	}
	return db.SetSetting(ctx, model.SettingAutoUpdateInterval, strconv.Itoa(int(interval/time.Minute)))
}

// Open connects to the configured backend: "sqlite" uses path, "postgres"
// uses dsn.
func Open(driver, path, dsn string) (*DB, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite":
		return New(path)
	case "postgres", "postgresql":
		return NewPostgres(dsn)
	}
	return nil, fmt.Errorf("unknown database driver %q", driver)
}
