package workers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/lookup"
)

// accessEvaluator is what the worker needs from the authorization core
type accessEvaluator interface {
	Evaluate(ctx context.Context, actorID string, resource authz.Authorizable) (authz.AccessLevel, error)
}

// lookupWriter is the write side of the auth lookup cache
type lookupWriter interface {
	Upsert(ctx context.Context, personID, resourceType, resourceID string, access authz.AccessLevel) error
	DeleteForResource(ctx context.Context, resourceType, resourceID string) error
}

// AuthLookupWorker drains the update queue and recomputes the denormalized
// auth lookup rows. Entries are claimed in FIFO order with SKIP LOCKED so
// several workers can drain concurrently, and an entry is only deleted
// after its recompute succeeds. A failed entry stays queued for the next
// pass, which is safe because recomputes are idempotent.
type AuthLookupWorker struct {
	pg        *sql.DB
	queue     *lookup.UpdateQueue
	eval      accessEvaluator
	cache     lookupWriter
	resources authz.ResourceStore
	people    authz.PersonLister

	BatchSize int
	Interval  time.Duration
}

func NewAuthLookupWorker(pg *sql.DB, queue *lookup.UpdateQueue, eval accessEvaluator, cache lookupWriter, resources authz.ResourceStore, people authz.PersonLister) *AuthLookupWorker {
	return &AuthLookupWorker{
		pg:        pg,
		queue:     queue,
		eval:      eval,
		cache:     cache,
		resources: resources,
		people:    people,
		BatchSize: 50,
		Interval:  5 * time.Second,
	}
}

// StartAuthLookupWorker drains the queue on a fixed interval
func (w *AuthLookupWorker) StartAuthLookupWorker() {
	log.Println("Auth lookup worker started, draining update queue...")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for range ticker.C {
		n, err := w.DrainOnce(context.Background())
		if err != nil {
			log.Printf("Worker: queue drain failed: %v", err)
			continue
		}
		if n > 0 {
			log.Printf("Worker: recomputed %d auth lookup queue entries", n)
		}
	}
}

// DrainOnce claims one batch, recomputes each entry and deletes the ones
// that succeeded. Returns how many entries were completed.
func (w *AuthLookupWorker) DrainOnce(ctx context.Context) (int, error) {
	tx, err := w.pg.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin drain transaction: %w", err)
	}
	defer tx.Rollback()

	entries, err := w.queue.ClaimBatch(ctx, tx, w.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, entry := range entries {
		if err := w.processEntry(ctx, tx, entry); err != nil {
			log.Printf("Worker: failed to process queue entry %d (%s/%s): %v",
				entry.ID, entry.Item.Type, entry.Item.ID, err)
			continue
		}
		if err := w.queue.Delete(ctx, tx, entry.ID); err != nil {
			return processed, err
		}
		processed++
	}

	if err := tx.Commit(); err != nil {
		return processed, fmt.Errorf("failed to commit drain: %w", err)
	}
	return processed, nil
}

func (w *AuthLookupWorker) processEntry(ctx context.Context, tx *sql.Tx, entry lookup.Entry) error {
	switch {
	case entry.Item.IsGlobal():
		return w.recomputeAnonymous(ctx)
	case entry.Item.IsPerson():
		return w.recomputePerson(ctx, entry.Item.ID)
	default:
		return w.recomputeResource(ctx, tx, entry)
	}
}

// recomputeResource refreshes every actor's row for one resource, plus the
// anonymous row. A resource that no longer exists has its rows dropped
// instead, so deletion also converges.
func (w *AuthLookupWorker) recomputeResource(ctx context.Context, tx *sql.Tx, entry lookup.Entry) error {
	res, err := w.resources.GetResource(ctx, entry.Item.Type, entry.Item.ID)
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			return w.cache.DeleteForResource(ctx, entry.Item.Type, entry.Item.ID)
		}
		return err
	}

	if err := w.upsertFor(ctx, "", res); err != nil {
		return err
	}
	personIDs, err := w.people.ListPersonIDs(ctx)
	if err != nil {
		return err
	}
	for _, personID := range personIDs {
		if err := w.upsertFor(ctx, personID, res); err != nil {
			return err
		}
	}

	if entry.RefreshDependents {
		return w.enqueueDependents(ctx, tx, res)
	}
	return nil
}

// recomputePerson refreshes one actor's row for every resource
func (w *AuthLookupWorker) recomputePerson(ctx context.Context, personID string) error {
	resources, err := w.resources.ListResources(ctx)
	if err != nil {
		return err
	}
	for _, res := range resources {
		if err := w.upsertFor(ctx, personID, res); err != nil {
			return err
		}
	}
	return nil
}

// recomputeAnonymous refreshes the public row for every resource
func (w *AuthLookupWorker) recomputeAnonymous(ctx context.Context) error {
	resources, err := w.resources.ListResources(ctx)
	if err != nil {
		return err
	}
	for _, res := range resources {
		if err := w.upsertFor(ctx, "", res); err != nil {
			return err
		}
	}
	return nil
}

func (w *AuthLookupWorker) upsertFor(ctx context.Context, personID string, res *authz.Resource) error {
	level, err := w.eval.Evaluate(ctx, personID, res)
	if err != nil {
		return err
	}
	return w.cache.Upsert(ctx, personID, res.Type, res.ID, level)
}

// enqueueDependents queues a recompute for every resource sharing a project
// with res. The dependents are queued without the refresh flag, so a cycle
// of mutually associated resources cannot re-trigger itself forever. The
// enqueues join the drain transaction: a dedup check outside it could match
// a claimed entry whose delete has not committed yet.
func (w *AuthLookupWorker) enqueueDependents(ctx context.Context, tx *sql.Tx, res *authz.Resource) error {
	all, err := w.resources.ListResources(ctx)
	if err != nil {
		return err
	}
	shared := make(map[string]bool, len(res.Projects))
	for _, projectID := range res.Projects {
		shared[projectID] = true
	}
	for _, other := range all {
		if other.Type == res.Type && other.ID == res.ID {
			continue
		}
		for _, projectID := range other.Projects {
			if shared[projectID] {
				if err := w.queue.EnqueueTx(ctx, tx, lookup.ResourceItem(other.Type, other.ID), false); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}
