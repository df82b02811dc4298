package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/labshare/assethub/authz"
)

// cacheTTL bounds redis staleness; the SQL rows remain the durable copy.
const cacheTTL = 15 * time.Minute

// Cache is the denormalized (actor, resource) -> access table, with a
// redis read-through layer for the hot authorize path. An empty person ID
// is the anonymous/public row.
type Cache struct {
	db    *sql.DB
	redis *redis.Client
}

// NewCache creates a Cache. The redis client is optional; with nil the
// cache is SQL-only.
func NewCache(db *sql.DB, rdb *redis.Client) *Cache {
	return &Cache{db: db, redis: rdb}
}

// Ensure Cache implements the evaluator's read interface
var _ authz.CacheReader = (*Cache)(nil)

// Upsert writes a recomputed access level. Idempotent: re-upserting the
// same triple yields the same row, which is what at-least-once queue
// delivery requires.
func (c *Cache) Upsert(ctx context.Context, personID, resourceType, resourceID string, access authz.AccessLevel) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO auth_lookup (person_id, resource_type, resource_id, access, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (person_id, resource_type, resource_id)
		DO UPDATE SET access = EXCLUDED.access, updated_at = EXCLUDED.updated_at
	`, personID, resourceType, resourceID, int(access))
	if err != nil {
		return fmt.Errorf("failed to upsert auth lookup: %w", err)
	}

	// Best effort: redis failures never fail the recompute
	if c.redis != nil {
		if err := c.redis.Set(ctx, cacheKey(personID, resourceType, resourceID), int(access), cacheTTL).Err(); err != nil {
			log.Printf("lookup: failed to refresh redis key: %v", err)
		}
	}
	return nil
}

// CachedAccess returns the cached access level for the triple, trying
// redis first and falling back to the SQL table. ok=false means no entry
// has been computed yet and the caller must use the authoritative path.
func (c *Cache) CachedAccess(ctx context.Context, personID, resourceType, resourceID string) (authz.AccessLevel, bool, error) {
	key := cacheKey(personID, resourceType, resourceID)
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			if n, convErr := strconv.Atoi(val); convErr == nil && authz.AccessLevel(n).Valid() {
				return authz.AccessLevel(n), true, nil
			}
		} else if err != redis.Nil {
			log.Printf("lookup: redis read failed, falling back to sql: %v", err)
		}
	}

	var access int
	err := c.db.QueryRowContext(ctx, `
		SELECT access FROM auth_lookup
		WHERE person_id = $1 AND resource_type = $2 AND resource_id = $3
	`, personID, resourceType, resourceID).Scan(&access)
	if err != nil {
		if err == sql.ErrNoRows {
			return authz.NoAccess, false, nil
		}
		return authz.NoAccess, false, fmt.Errorf("failed to read auth lookup: %w", err)
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, access, cacheTTL).Err(); err != nil {
			log.Printf("lookup: failed to backfill redis key: %v", err)
		}
	}
	return authz.AccessLevel(access), true, nil
}

// DeleteForResource drops all cached rows for one resource, forcing the
// authoritative path until the next recompute.
func (c *Cache) DeleteForResource(ctx context.Context, resourceType, resourceID string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM auth_lookup WHERE resource_type = $1 AND resource_id = $2
	`, resourceType, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete auth lookup rows: %w", err)
	}
	return nil
}

func cacheKey(personID, resourceType, resourceID string) string {
	if personID == "" {
		personID = "anon"
	}
	return fmt.Sprintf("auth_lookup:%s:%s:%s", personID, resourceType, resourceID)
}
