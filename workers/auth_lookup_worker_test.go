package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/lookup"
)

type fakeEvaluator struct {
	levels map[string]authz.AccessLevel
	calls  []string
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, actorID string, resource authz.Authorizable) (authz.AccessLevel, error) {
	key := actorID + "/" + resource.AuthType() + "/" + resource.AuthID()
	f.calls = append(f.calls, key)
	if level, ok := f.levels[key]; ok {
		return level, nil
	}
	return authz.NoAccess, nil
}

type fakeWriter struct {
	upserts []string
	deletes []string
	fail    bool
}

func (f *fakeWriter) Upsert(ctx context.Context, personID, resourceType, resourceID string, access authz.AccessLevel) error {
	if f.fail {
		return errors.New("write failed")
	}
	f.upserts = append(f.upserts, fmt.Sprintf("%s/%s/%s=%d", personID, resourceType, resourceID, access))
	return nil
}

func (f *fakeWriter) DeleteForResource(ctx context.Context, resourceType, resourceID string) error {
	f.deletes = append(f.deletes, resourceType+"/"+resourceID)
	return nil
}

type fakeResourceStore struct {
	resources []*authz.Resource
}

func (f *fakeResourceStore) GetResource(ctx context.Context, resourceType, id string) (*authz.Resource, error) {
	for _, res := range f.resources {
		if res.Type == resourceType && res.ID == id {
			return res, nil
		}
	}
	return nil, authz.ErrNotFound
}

func (f *fakeResourceStore) ListResources(ctx context.Context) ([]*authz.Resource, error) {
	return f.resources, nil
}

func (f *fakeResourceStore) ListLegacyScoped(ctx context.Context) ([]*authz.Resource, error) {
	return nil, nil
}

type fakePeople struct {
	ids []string
}

func (f *fakePeople) ListPersonIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

func docResource(id string, projects ...string) *authz.Resource {
	return &authz.Resource{Type: "document", ID: id, Title: id, Projects: projects}
}

func expectClaim(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs(50).
		WillReturnRows(rows)
}

func queueRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "item_type", "item_id", "refresh_dependents"})
}

// A resource entry recomputes the anonymous row plus one row per person.
func TestDrainOnceResourceEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(1, "document", "doc-1", false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_lookup_update_queue")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	eval := &fakeEvaluator{levels: map[string]authz.AccessLevel{
		"alice/document/doc-1": authz.Editing,
	}}
	writer := &fakeWriter{}
	store := &fakeResourceStore{resources: []*authz.Resource{docResource("doc-1", "proj-1")}}

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), eval, writer, store, &fakePeople{ids: []string{"alice", "bob"}})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{
		"/document/doc-1=0",
		"alice/document/doc-1=3",
		"bob/document/doc-1=0",
	}, writer.upserts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A person entry recomputes that person's row for every resource.
func TestDrainOncePersonEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(4, "person", "alice", false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_lookup_update_queue")).
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	writer := &fakeWriter{}
	store := &fakeResourceStore{resources: []*authz.Resource{
		docResource("doc-1"), docResource("doc-2"),
	}}

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, writer, store, &fakePeople{})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"alice/document/doc-1=0", "alice/document/doc-2=0"}, writer.upserts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A global entry recomputes the anonymous row for every resource.
func TestDrainOnceGlobalEntry(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(9, nil, nil, false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_lookup_update_queue")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	writer := &fakeWriter{}
	store := &fakeResourceStore{resources: []*authz.Resource{docResource("doc-1")}}

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, writer, store, &fakePeople{ids: []string{"alice"}})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"/document/doc-1=0"}, writer.upserts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An entry for a deleted resource drops its lookup rows instead of failing.
func TestDrainOnceDeletedResource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(2, "document", "gone", false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_lookup_update_queue")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	writer := &fakeWriter{}
	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, writer, &fakeResourceStore{}, &fakePeople{})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"document/gone"}, writer.deletes)
	assert.Empty(t, writer.upserts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed recompute leaves its entry queued for the next pass.
func TestDrainOnceFailedEntryStaysQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(3, "document", "doc-1", false))
	mock.ExpectCommit()

	writer := &fakeWriter{fail: true}
	store := &fakeResourceStore{resources: []*authz.Resource{docResource("doc-1")}}

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, writer, store, &fakePeople{})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, n, "failed entry must not count as processed")
	assert.NoError(t, mock.ExpectationsWereMet(), "no delete issued for the failed entry")
}

// A refresh entry re-enqueues every resource sharing a project, without the
// refresh flag so the chain stops after one hop. The dependent enqueues run
// inside the drain transaction, before its commit.
func TestDrainOnceRefreshDependents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows().AddRow(5, "document", "doc-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, refresh_dependents FROM auth_lookup_update_queue")).
		WithArgs("document", "doc-2").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO auth_lookup_update_queue")).
		WithArgs("document", "doc-2", false).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM auth_lookup_update_queue")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	writer := &fakeWriter{}
	store := &fakeResourceStore{resources: []*authz.Resource{
		docResource("doc-1", "proj-1"),
		docResource("doc-2", "proj-1", "proj-2"),
		docResource("doc-3", "proj-9"),
	}}

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, writer, store, &fakePeople{})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// An empty queue commits cleanly and reports zero work.
func TestDrainOnceEmptyQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectClaim(mock, queueRows())
	mock.ExpectCommit()

	worker := NewAuthLookupWorker(db, lookup.NewUpdateQueue(db, true), &fakeEvaluator{}, &fakeWriter{}, &fakeResourceStore{}, &fakePeople{})
	n, err := worker.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
