package lookup

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshare/assethub/authz"
)

func TestCacheUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_lookup")).
		WithArgs("alice", "document", "doc-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cache := NewCache(db, nil)
	require.NoError(t, cache.Upsert(context.Background(), "alice", "document", "doc-1", authz.Editing))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheUpsertAnonymousRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_lookup")).
		WithArgs("", "document", "doc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cache := NewCache(db, nil)
	require.NoError(t, cache.Upsert(context.Background(), "", "document", "doc-1", authz.Visible))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCachedAccessHit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT access FROM auth_lookup")).
		WithArgs("alice", "document", "doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"access"}).AddRow(2))

	cache := NewCache(db, nil)
	level, ok, err := cache.CachedAccess(context.Background(), "alice", "document", "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, authz.Accessible, level)
}

func TestCachedAccessMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT access FROM auth_lookup")).
		WithArgs("alice", "document", "doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"access"}))

	cache := NewCache(db, nil)
	level, ok, err := cache.CachedAccess(context.Background(), "alice", "document", "doc-1")
	require.NoError(t, err)
	assert.False(t, ok, "miss means the caller must use the authoritative path")
	assert.Equal(t, authz.NoAccess, level)
}

func TestCacheKeyAnonymous(t *testing.T) {
	assert.Equal(t, "auth_lookup:anon:document:doc-1", cacheKey("", "document", "doc-1"))
	assert.Equal(t, "auth_lookup:alice:document:doc-1", cacheKey("alice", "document", "doc-1"))
}
