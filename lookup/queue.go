// Package lookup maintains the denormalized auth lookup cache and the
// invalidation queue that keeps it fresh after policy or membership changes.
package lookup

import (
	"context"
	"database/sql"
	"fmt"
)

// Item identifies what a queue entry invalidates: a resource, a person, or
// the global/public lookups (the zero value).
type Item struct {
	Type string
	ID   string
}

// ResourceItem marks a single resource's lookup rows stale
func ResourceItem(resourceType, id string) Item {
	return Item{Type: resourceType, ID: id}
}

// PersonItem marks every lookup row for one person stale
func PersonItem(id string) Item {
	return Item{Type: "person", ID: id}
}

// GlobalItem marks the anonymous/public lookup rows stale
func GlobalItem() Item {
	return Item{}
}

// IsGlobal reports whether the item is the global/public sentinel
func (i Item) IsGlobal() bool { return i.Type == "" && i.ID == "" }

// IsPerson reports whether the item references a person
func (i Item) IsPerson() bool { return i.Type == "person" }

// Entry is a pending queue row
type Entry struct {
	ID                int64
	Item              Item
	RefreshDependents bool
}

// Querier covers *sql.DB and *sql.Tx so enqueues can join the transaction
// that performs the triggering write.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UpdateQueue is the persistent invalidation queue. Enqueue is expected to
// run inside the same transaction as the policy/membership write so no
// recompute is ever missed; the worker drains entries at-least-once.
type UpdateQueue struct {
	db      *sql.DB
	enabled bool
}

// NewUpdateQueue creates an UpdateQueue. A disabled queue turns every
// enqueue into a no-op (mirrors the auth_lookup_enabled setting).
func NewUpdateQueue(db *sql.DB, enabled bool) *UpdateQueue {
	return &UpdateQueue{db: db, enabled: enabled}
}

// Enabled reports whether enqueues are active
func (q *UpdateQueue) Enabled() bool { return q.enabled }

// Enqueue records that the item's lookup rows need recomputing
func (q *UpdateQueue) Enqueue(ctx context.Context, item Item, refreshDependents bool) error {
	return q.EnqueueTx(ctx, q.db, item, refreshDependents)
}

// EnqueueTx enqueues using the caller's transaction. Duplicate work is
// collapsed: an equivalent pending entry absorbs the request, and a pending
// entry without the refresh flag is upgraded in place rather than
// duplicated when a broader refresh is requested.
func (q *UpdateQueue) EnqueueTx(ctx context.Context, tx Querier, item Item, refreshDependents bool) error {
	if !q.enabled {
		return nil
	}
	itemType, itemID := nullableItem(item)

	var existingID int64
	var existingRefresh bool
	err := tx.QueryRowContext(ctx, `
		SELECT id, refresh_dependents FROM auth_lookup_update_queue
		WHERE item_type IS NOT DISTINCT FROM $1 AND item_id IS NOT DISTINCT FROM $2
		ORDER BY id
		LIMIT 1
	`, itemType, itemID).Scan(&existingID, &existingRefresh)

	switch {
	case err == nil:
		if refreshDependents && !existingRefresh {
			if _, err := tx.ExecContext(ctx, `
				UPDATE auth_lookup_update_queue SET refresh_dependents = true WHERE id = $1
			`, existingID); err != nil {
				return fmt.Errorf("failed to upgrade queue entry: %w", err)
			}
		}
		return nil
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auth_lookup_update_queue (item_type, item_id, refresh_dependents, created_at)
			VALUES ($1, $2, $3, NOW())
		`, itemType, itemID, refreshDependents); err != nil {
			return fmt.Errorf("failed to enqueue: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("failed to check queue: %w", err)
	}
}

// Exists reports whether an equivalent entry is already pending
func (q *UpdateQueue) Exists(ctx context.Context, item Item) (bool, error) {
	itemType, itemID := nullableItem(item)
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM auth_lookup_update_queue
			WHERE item_type IS NOT DISTINCT FROM $1 AND item_id IS NOT DISTINCT FROM $2
		)
	`, itemType, itemID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check queue: %w", err)
	}
	return exists, nil
}

// Count returns the number of pending entries
func (q *UpdateQueue) Count(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_lookup_update_queue`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return count, nil
}

// ClaimBatch locks up to limit entries in FIFO order for processing,
// skipping entries another worker already holds.
func (q *UpdateQueue) ClaimBatch(ctx context.Context, tx *sql.Tx, limit int) ([]Entry, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, item_type, item_id, refresh_dependents
		FROM auth_lookup_update_queue
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim queue batch: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var itemType, itemID sql.NullString
		if err := rows.Scan(&entry.ID, &itemType, &itemID, &entry.RefreshDependents); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entry.Item = Item{Type: itemType.String, ID: itemID.String}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes a processed entry. Entries are only deleted after a
// successful recompute; a failed one stays for the next drain pass.
func (q *UpdateQueue) Delete(ctx context.Context, tx Querier, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_lookup_update_queue WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

func nullableItem(item Item) (interface{}, interface{}) {
	if item.IsGlobal() {
		return nil, nil
	}
	return item.Type, item.ID
}
