package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/bryan-buckman/feedkeeper/internal/model"
)

const messageColumns = "id, feed_id, account_id, dedup_key, fingerprint, title, contents, author, url, created_ms, created_from_feed, is_read, is_deleted, is_purged"

func scanMessage(s scanner) (model.Message, error) {
	var m model.Message
	var created int64
	err := s.Scan(&m.ID, &m.FeedID, &m.AccountID, &m.DedupKey, &m.Fingerprint, &m.Title, &m.Contents,
		&m.Author, &m.URL, &created, &m.CreatedFromFeed, &m.IsRead, &m.IsDeleted, &m.IsPurged)
	m.Created = fromMillis(created)
	return m, err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// --- Message Batches ---

// ApplyMessageBatch runs fn inside one transaction scoped to a feed and
// account. If fn returns an error nothing it wrote is kept. It returns
// model.ErrFeedNotFound without calling fn when the feed does not exist.
func (db *DB) ApplyMessageBatch(ctx context.Context, feedID, accountID int64, fn func(MessageBatch) error) (err error) {
	unlock := db.scopes.lock(feedID, accountID)
	defer unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else if err = tx.Commit(); err != nil {
			err = fmt.Errorf("commit batch: %w", err)
		}
	}()

	if err := db.lockFeed(ctx, tx, feedID); err != nil {
		return err
	}
	return fn(&messageBatch{db: db, tx: tx, feedID: feedID, accountID: accountID})
}

// lockFeed fails with model.ErrFeedNotFound when the feed is gone and
// otherwise holds it against deletion until the transaction ends.
func (db *DB) lockFeed(ctx context.Context, tx *sql.Tx, feedID int64) error {
	query := "SELECT id FROM feeds WHERE id = ?"
	if db.dialect == postgresDialect {
		query += " FOR SHARE"
	}
	var id int64
	err := tx.QueryRowContext(ctx, db.rebind(query), feedID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrFeedNotFound
	}
	if err != nil {
		return fmt.Errorf("lock feed %d: %w", feedID, err)
	}
	return nil
}

type messageBatch struct {
	db        *DB
	tx        *sql.Tx
	feedID    int64
	accountID int64
}

func (b *messageBatch) Lookup(ctx context.Context, dedupKey string) (*model.Message, error) {
	row := b.tx.QueryRowContext(ctx, b.db.rebind("SELECT "+messageColumns+" FROM messages WHERE feed_id = ? AND account_id = ? AND dedup_key = ?"),
		b.feedID, b.accountID, dedupKey)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup message: %w", err)
	}
	encs, err := b.db.enclosuresFor(ctx, b.tx, "m.id = ?", m.ID)
	if err != nil {
		return nil, err
	}
	m.Enclosures = encs[m.ID]
	return &m, nil
}

func (b *messageBatch) Insert(ctx context.Context, msg *model.Message) error {
	msg.FeedID, msg.AccountID = b.feedID, b.accountID
	err := b.tx.QueryRowContext(ctx, b.db.rebind(`
		INSERT INTO messages (feed_id, account_id, dedup_key, fingerprint, title, contents, author, url, created_ms, created_from_feed, is_read, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		msg.FeedID, msg.AccountID, msg.DedupKey, msg.Fingerprint, msg.Title, msg.Contents, msg.Author, msg.URL,
		toMillis(msg.Created), msg.CreatedFromFeed, msg.IsRead, msg.IsDeleted).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return b.writeEnclosures(ctx, msg)
}

func (b *messageBatch) Update(ctx context.Context, msg *model.Message) error {
	_, err := b.tx.ExecContext(ctx, b.db.rebind(`
		UPDATE messages SET fingerprint = ?, title = ?, contents = ?, author = ?, url = ?, created_ms = ?, created_from_feed = ?
		WHERE id = ? AND feed_id = ? AND account_id = ? AND NOT is_purged`),
		msg.Fingerprint, msg.Title, msg.Contents, msg.Author, msg.URL, toMillis(msg.Created), msg.CreatedFromFeed,
		msg.ID, b.feedID, b.accountID)
	if err != nil {
		return fmt.Errorf("update message %d: %w", msg.ID, err)
	}
	if _, err := b.tx.ExecContext(ctx, b.db.rebind("DELETE FROM enclosures WHERE message_id = ?"), msg.ID); err != nil {
		return fmt.Errorf("clear enclosures: %w", err)
	}
	return b.writeEnclosures(ctx, msg)
}

func (b *messageBatch) writeEnclosures(ctx context.Context, msg *model.Message) error {
	for i, enc := range msg.Enclosures {
		_, err := b.tx.ExecContext(ctx, b.db.rebind("INSERT INTO enclosures (message_id, ordinal, url, mime_type) VALUES (?, ?, ?, ?)"),
			msg.ID, i, enc.URL, enc.MimeType)
		if err != nil {
			return fmt.Errorf("insert enclosure: %w", err)
		}
	}
	return nil
}

// --- Message Queries ---

// GetMessages returns the undeleted messages of a feed, newest first.
func (db *DB) GetMessages(ctx context.Context, feedID, accountID int64, onlyUnread bool) ([]model.Message, error) {
	where := "m.feed_id = ? AND m.account_id = ? AND NOT m.is_deleted AND NOT m.is_purged"
	if onlyUnread {
		where += " AND NOT m.is_read"
	}
	return db.queryMessages(ctx, where, feedID, accountID)
}

// GetRecycleBin returns the account's deleted messages, newest first.
func (db *DB) GetRecycleBin(ctx context.Context, accountID int64) ([]model.Message, error) {
	return db.queryMessages(ctx, "m.account_id = ? AND m.is_deleted AND NOT m.is_purged", accountID)
}

func (db *DB) queryMessages(ctx context.Context, where string, args ...any) ([]model.Message, error) {
	messages, err := db.scanMessages(ctx, "SELECT "+prefixed("m.", messageColumns)+" FROM messages m WHERE "+where+" ORDER BY m.created_ms DESC, m.id DESC", args...)
	if err != nil {
		return nil, err
	}
	encs, err := db.enclosuresFor(ctx, db.conn, where, args...)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].Enclosures = encs[messages[i].ID]
	}
	return messages, nil
}

func (db *DB) scanMessages(ctx context.Context, query string, args ...any) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// enclosuresFor loads enclosures, in ordinal order, of the messages m
// matching where.
func (db *DB) enclosuresFor(ctx context.Context, q queryer, where string, args ...any) (map[int64][]model.Enclosure, error) {
	rows, err := q.QueryContext(ctx, db.rebind(`
		SELECT e.message_id, e.url, e.mime_type FROM enclosures e
		JOIN messages m ON m.id = e.message_id
		WHERE `+where+` ORDER BY e.message_id, e.ordinal`), args...)
	if err != nil {
		return nil, fmt.Errorf("load enclosures: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]model.Enclosure)
	for rows.Next() {
		var id int64
		var enc model.Enclosure
		if err := rows.Scan(&id, &enc.URL, &enc.MimeType); err != nil {
			return nil, err
		}
		out[id] = append(out[id], enc)
	}
	return out, rows.Err()
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, col := range cols {
		cols[i] = prefix + col
	}
	return strings.Join(cols, ", ")
}

// CountMessages counts the undeleted messages of a feed.
func (db *DB) CountMessages(ctx context.Context, feedID, accountID int64, onlyUnread bool) (int, error) {
	query := "SELECT COUNT(*) FROM messages WHERE feed_id = ? AND account_id = ? AND NOT is_deleted AND NOT is_purged"
	if onlyUnread {
		query += " AND NOT is_read"
	}
	var n int
	err := db.conn.QueryRowContext(ctx, db.rebind(query), feedID, accountID).Scan(&n)
	return n, err
}

// CountRecycleBin counts the account's deleted messages.
func (db *DB) CountRecycleBin(ctx context.Context, accountID int64, onlyUnread bool) (int, error) {
	query := "SELECT COUNT(*) FROM messages WHERE account_id = ? AND is_deleted AND NOT is_purged"
	if onlyUnread {
		query += " AND NOT is_read"
	}
	var n int
	err := db.conn.QueryRowContext(ctx, db.rebind(query), accountID).Scan(&n)
	return n, err
}

// MarkMessagesRead sets the read flag on messages and returns the IDs of
// the feeds they belong to.
func (db *DB) MarkMessagesRead(ctx context.Context, messageIDs []int64, read bool) ([]int64, error) {
	return db.setMessageFlag(ctx, "is_read", read, messageIDs)
}

// MoveMessagesToRecycleBin soft-deletes messages and returns the IDs of the
// feeds they belong to.
func (db *DB) MoveMessagesToRecycleBin(ctx context.Context, messageIDs []int64) ([]int64, error) {
	return db.setMessageFlag(ctx, "is_deleted", true, messageIDs)
}

// RestoreMessages takes messages back out of the recycle bin.
func (db *DB) RestoreMessages(ctx context.Context, messageIDs []int64) ([]int64, error) {
	return db.setMessageFlag(ctx, "is_deleted", false, messageIDs)
}

func (db *DB) setMessageFlag(ctx context.Context, column string, value bool, messageIDs []int64) ([]int64, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	stmt, err := tx.PrepareContext(ctx, db.rebind("UPDATE messages SET "+column+" = ? WHERE id = ? AND NOT is_purged"))
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	defer stmt.Close()
	for _, id := range messageIDs {
		if _, err := stmt.ExecContext(ctx, value, id); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	rows, err := tx.QueryContext(ctx, db.rebind("SELECT DISTINCT feed_id FROM messages WHERE NOT is_purged AND id IN ("+placeholders(len(messageIDs))+") ORDER BY feed_id"), int64Args(messageIDs)...)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	var feedIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			tx.Rollback()
			return nil, err
		}
		feedIDs = append(feedIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		tx.Rollback()
		return nil, err
	}
	return feedIDs, tx.Commit()
}

// CleanFeedMessages moves a feed's messages, or only its read ones, to the
// recycle bin. Returns the number of messages moved.
func (db *DB) CleanFeedMessages(ctx context.Context, feedID, accountID int64, onlyRead bool) (int64, error) {
	query := "UPDATE messages SET is_deleted = ? WHERE feed_id = ? AND account_id = ? AND NOT is_deleted AND NOT is_purged"
	if onlyRead {
		query += " AND is_read"
	}
	res, err := db.conn.ExecContext(ctx, db.rebind(query), true, feedID, accountID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EmptyRecycleBin purges the account's deleted messages. A purged row keeps
// only its dedup key so later fetches of the same entry stay hidden.
func (db *DB) EmptyRecycleBin(ctx context.Context, accountID int64) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	_, err = tx.ExecContext(ctx, db.rebind(`
		DELETE FROM enclosures WHERE message_id IN (
			SELECT id FROM messages WHERE account_id = ? AND is_deleted AND NOT is_purged)`), accountID)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("purge enclosures: %w", err)
	}
	res, err := tx.ExecContext(ctx, db.rebind(`
		UPDATE messages SET is_purged = ?, title = '', contents = '', author = '', url = ''
		WHERE account_id = ? AND is_deleted AND NOT is_purged`), true, accountID)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	return n, tx.Commit()
}
