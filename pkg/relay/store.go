// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.mau.fi/util/dbutil"
)

// WatchType is the delivery mode of a subscription.
type WatchType string

const (
	// WatchTypeThread relays reactions into the watched post's thread.
	WatchTypeThread WatchType = "thread"
	// WatchTypeDM relays reactions to the subscriber via direct message.
	WatchTypeDM WatchType = "dm"
)

// Watch is one subscription row, uniquely identified by
// (post_id, user_id, type). ChannelID is the channel the watched post
// lives in, recorded at creation time to address thread replies.
type Watch struct {
	UserID    string
	ChannelID string
	PostID    string
	Type      WatchType
}

// WatchStore is the durable watch registry. It is the sole authority for
// subscription state.
type WatchStore struct {
	db *dbutil.Database
}

// NewWatchStore wraps a database and attaches the schema upgrade table.
func NewWatchStore(db *dbutil.Database) *WatchStore {
	db.UpgradeTable = UpgradeTable
	return &WatchStore{db: db}
}

// Upgrade applies pending schema revisions.
func (ws *WatchStore) Upgrade(ctx context.Context) error {
	return ws.db.Upgrade(ctx)
}

const (
	getThreadWatchQuery = `
		SELECT user_id, channel_id, post_id, type FROM watches
		WHERE post_id=$1 AND type='thread' LIMIT 1
	`
	getDMWatchesQuery = `
		SELECT user_id, channel_id, post_id, type FROM watches
		WHERE post_id=$1 AND type='dm'
	`
	watchExistsQuery = `
		SELECT EXISTS(
			SELECT 1 FROM watches WHERE user_id=$1 AND post_id=$2 AND type=$3
		)
	`
	threadWatchExistsQuery = `
		SELECT EXISTS(
			SELECT 1 FROM watches WHERE post_id=$1 AND type='thread'
		)
	`
	insertWatchQuery = `
		INSERT INTO watches (user_id, channel_id, post_id, type)
		VALUES ($1, $2, $3, $4)
	`
	deleteWatchQuery = `
		DELETE FROM watches WHERE user_id=$1 AND post_id=$2 AND type=$3
	`
	getChannelForPostQuery = `
		SELECT channel_id FROM watches WHERE post_id=$1 LIMIT 1
	`
)

func scanWatch(row dbutil.Scannable) (*Watch, error) {
	var w Watch
	err := row.Scan(&w.UserID, &w.ChannelID, &w.PostID, &w.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to scan watch: %w", err)
	}
	return &w, nil
}

// GetThreadWatch returns the thread subscription for a post, or nil when
// there is none. There is at most one per post.
func (ws *WatchStore) GetThreadWatch(ctx context.Context, postID string) (*Watch, error) {
	return scanWatch(ws.db.QueryRow(ctx, getThreadWatchQuery, postID))
}

// GetDMWatches returns all DM subscriptions for a post.
func (ws *WatchStore) GetDMWatches(ctx context.Context, postID string) ([]*Watch, error) {
	rows, err := ws.db.Query(ctx, getDMWatchesQuery, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dm watches: %w", err)
	}
	defer rows.Close()
	var watches []*Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	return watches, rows.Err()
}

// Exists reports whether a subscription row matches (user, post, type).
func (ws *WatchStore) Exists(ctx context.Context, userID, postID string, typ WatchType) (bool, error) {
	var exists bool
	err := ws.db.QueryRow(ctx, watchExistsQuery, userID, postID, typ).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check watch existence: %w", err)
	}
	return exists, nil
}

// ThreadWatchExists reports whether any user holds a thread subscription
// for the post. Thread watches are keyed without user discrimination:
// one per post, owned by whoever set it first.
func (ws *WatchStore) ThreadWatchExists(ctx context.Context, postID string) (bool, error) {
	var exists bool
	err := ws.db.QueryRow(ctx, threadWatchExistsQuery, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check thread watch existence: %w", err)
	}
	return exists, nil
}

// Insert adds a subscription row. Callers must check existence first; the
// store itself enforces no uniqueness.
func (ws *WatchStore) Insert(ctx context.Context, watch *Watch) error {
	_, err := ws.db.Exec(ctx, insertWatchQuery, watch.UserID, watch.ChannelID, watch.PostID, watch.Type)
	if err != nil {
		return fmt.Errorf("failed to insert watch: %w", err)
	}
	return nil
}

// Delete removes the subscription row matching (user, post, type).
func (ws *WatchStore) Delete(ctx context.Context, userID, postID string, typ WatchType) error {
	_, err := ws.db.Exec(ctx, deleteWatchQuery, userID, postID, typ)
	if err != nil {
		return fmt.Errorf("failed to delete watch: %w", err)
	}
	return nil
}

// GetChannelForPost recovers the channel a watched post lives in from any
// surviving subscription row. Returns "" when no row remains.
func (ws *WatchStore) GetChannelForPost(ctx context.Context, postID string) (string, error) {
	var channelID string
	err := ws.db.QueryRow(ctx, getChannelForPostQuery, postID).Scan(&channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to look up channel for post: %w", err)
	}
	return channelID, nil
}
