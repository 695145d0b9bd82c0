package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/editlock"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
	"github.com/dmitrijs2005/fueltrack/internal/sync"
)

// EntityAPI is the application-facing operation set for one entity type:
// edit sessions, saves with user-faulted validation, deletion, immediate
// sync, conflict resolution and lookups. One instance per type hangs off
// the Coordinator.
//
// Validation masks are surfaced as uint64; callers convert to the typed
// per-entity bitmask (model.SaveUserErr etc.) for inspection.
type EntityAPI[T model.Entity] struct {
	c         *Coordinator
	st        *store.Store[T]
	locks     *editlock.Manager[T]
	flusher   *sync.Flusher[T]
	rs        remote.Store[T]
	validate  func(e T) uint64
	overwrite func(dst, src T)
}

func newEntityAPI[T model.Entity](c *Coordinator, st *store.Store[T], flusher *sync.Flusher[T],
	rs remote.Store[T], validate func(e T) uint64, overwrite func(dst, src T)) *EntityAPI[T] {
	return &EntityAPI[T]{
		c:         c,
		st:        st,
		locks:     editlock.New(st, overwrite, c.log),
		flusher:   flusher,
		rs:        rs,
		validate:  validate,
		overwrite: overwrite,
	}
}

func (a *EntityAPI[T]) publish(ctx context.Context, kind events.Kind, e T) {
	a.c.hub.Publish(ctx, events.Topic(a.st.Desc().Name, kind), e)
}

// BeginEdit opens (or nests into) an edit session on e for actor. A brand
// new entity gets its placeholder row inserted on Ok, announced as locally
// added.
func (a *EntityAPI[T]) BeginEdit(ctx context.Context, e T, actor model.ActorID) (editlock.Outcome, error) {
	wasNew := !e.SyncMeta().LocalMainID.Valid
	var out editlock.Outcome
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		out, err = a.locks.Begin(ctx, tx, e, actor)
		return err
	})
	if err != nil {
		return out, a.c.fail(ctx, err)
	}
	if out == editlock.Ok && wasNew {
		a.publish(ctx, events.KindLocallyAdded, e)
	}
	return out, nil
}

// Save validates and persists the working copy mid-session. A non-zero
// mask means the entity was rejected user-faulted and nothing was written.
func (a *EntityAPI[T]) Save(ctx context.Context, e T) (uint64, error) {
	if mask := a.validate(e); mask != 0 {
		return mask, nil
	}
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return a.locks.Save(ctx, tx, e)
	})
	if err != nil {
		return 0, a.c.fail(ctx, err)
	}
	a.publish(ctx, events.KindLocallyUpdated, e)
	return 0, nil
}

// MarkDoneEditing closes one nesting level of the edit session and returns
// the remaining depth. At depth zero the row becomes eligible for flushing.
func (a *EntityAPI[T]) MarkDoneEditing(ctx context.Context, e T) (uint, error) {
	var depth uint
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		depth, err = a.locks.End(ctx, tx, e)
		return err
	})
	if err != nil {
		return depth, a.c.fail(ctx, err)
	}
	return depth, nil
}

// MarkDoneEditingAndSync ends the session and immediately flushes the
// entity. If the session is still nested after ending one level, the flush
// is not attempted and the row reports busy.
func (a *EntityAPI[T]) MarkDoneEditingAndSync(ctx context.Context, e T) (sync.Outcome, error) {
	depth, err := a.MarkDoneEditing(ctx, e)
	if err != nil {
		return sync.TransientError, err
	}
	if depth > 0 {
		return sync.SkippedRowBusy, nil
	}
	return a.Sync(ctx, e)
}

// CancelEdit closes one nesting level discarding its changes; the outermost
// cancel restores the working copy from the master (or removes the
// placeholder of a never-synced entity).
func (a *EntityAPI[T]) CancelEdit(ctx context.Context, e T) (uint, error) {
	var depth uint
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		depth, err = a.locks.Cancel(ctx, tx, e)
		return err
	})
	if err != nil {
		return depth, a.c.fail(ctx, err)
	}
	return depth, nil
}

// MarkDeleted flags e for deletion, pending remote confirmation on the
// next flush. Rows mid-edit, mid-sync or in conflict refuse the deletion.
func (a *EntityAPI[T]) MarkDeleted(ctx context.Context, e T) error {
	meta := e.SyncMeta()
	switch {
	case meta.EditInProgress:
		return common.ErrorBusyEditing
	case meta.SyncInProgress:
		return common.ErrorBusySyncing
	case meta.InConflict:
		return common.ErrorInConflict
	}
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return a.st.MarkDeleted(ctx, tx, e)
	})
	if err != nil {
		return a.c.fail(ctx, err)
	}
	return nil
}

// MarkDeletedAndSync flags e for deletion and pushes it to the remote
// immediately.
func (a *EntityAPI[T]) MarkDeletedAndSync(ctx context.Context, e T) (sync.Outcome, error) {
	if err := a.MarkDeleted(ctx, e); err != nil {
		return sync.TransientError, err
	}
	return a.Sync(ctx, e)
}

// Sync reconciles e with the remote store right now, outside the
// background schedule.
func (a *EntityAPI[T]) Sync(ctx context.Context, e T) (sync.Outcome, error) {
	out, err := a.flusher.Flush(ctx, e)
	if err != nil {
		return out, a.c.fail(ctx, err)
	}
	return out, nil
}

// Reload restores e's working copy from its master copy, clearing the
// conflict flag. This is the "take the server's version" resolution.
func (a *EntityAPI[T]) Reload(ctx context.Context, e T) error {
	meta := e.SyncMeta()
	switch {
	case !e.MasterMeta().LocalMasterID.Valid:
		return common.ErrorNoMaster
	case meta.EditInProgress:
		return common.ErrorBusyEditing
	case meta.SyncInProgress:
		return common.ErrorBusySyncing
	}
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		master, err := a.st.MasterByID(ctx, tx, e.MasterMeta().LocalMasterID.Int64)
		if err != nil {
			return fmt.Errorf("failed to load master copy: %w", err)
		}
		a.overwrite(e, master)
		meta.Synced = true
		meta.InConflict = false
		meta.Deleted = false
		meta.ClearSyncDiagnostics()
		meta.DateCopiedFromMaster = sql.NullTime{Time: a.c.now(), Valid: true}
		return a.st.UpdateMain(ctx, tx, e)
	})
	if err != nil {
		return a.c.fail(ctx, err)
	}
	a.publish(ctx, events.KindLocallyUpdated, e)
	return nil
}

// ByID fetches the working copy with the given local id.
func (a *EntityAPI[T]) ByID(ctx context.Context, id int64) (T, error) {
	var e T
	err := a.c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		e, err = a.st.MainByID(ctx, q, id)
		return err
	})
	return e, err
}

// ByGlobalID fetches the working copy carrying the given global identifier
// from the local store.
func (a *EntityAPI[T]) ByGlobalID(ctx context.Context, globalID string) (T, error) {
	var e T
	err := a.c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		e, err = a.st.MainByGlobalID(ctx, q, globalID)
		return err
	})
	return e, err
}

// List returns working copies matching the query.
func (a *EntityAPI[T]) List(ctx context.Context, lq store.ListQuery) ([]T, error) {
	var list []T
	err := a.c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		list, err = a.st.ListMains(ctx, q, lq)
		return err
	})
	return list, err
}

// CountUnsynced counts rows whose working copy differs from the last
// accepted master copy.
func (a *EntityAPI[T]) CountUnsynced(ctx context.Context) (int, error) {
	var n int
	err := a.c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		n, err = a.st.CountUnsynced(ctx, q, "")
		return err
	})
	return n, err
}

// CountSyncNeeded counts rows a flush pass would pick up right now.
func (a *EntityAPI[T]) CountSyncNeeded(ctx context.Context) (int, error) {
	var n int
	err := a.c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		n, err = a.st.CountSyncNeeded(ctx, q, "")
		return err
	})
	return n, err
}

// FetchByGlobalID downloads the entity's current remote version and folds
// it into the local store: the master copy always tracks what was fetched,
// and a clean (synced, lock-free) working copy is overwritten too. A gone
// resource removes the local rows. The returned entity is the refreshed
// local working copy when one exists, otherwise the fetched resource.
func (a *EntityAPI[T]) FetchByGlobalID(ctx context.Context, globalID string, ifModifiedSince time.Time) (T, remote.Outcome, error) {
	var zero T

	res := a.rs.Fetch(ctx, a.c.tokens.Token(), globalID, ifModifiedSince)
	a.c.tokens.Absorb(res.AuthToken)

	switch res.Outcome {
	case remote.OutcomeSuccess:
		e, err := a.absorbFetched(ctx, globalID, res)
		if err != nil {
			return zero, res.Outcome, a.c.fail(ctx, err)
		}
		return e, res.Outcome, nil

	case remote.OutcomeNotModified:
		e, err := a.ByGlobalID(ctx, globalID)
		if err != nil && !store.IsNotFound(err) {
			return zero, res.Outcome, err
		}
		return e, res.Outcome, nil

	case remote.OutcomeGone, remote.OutcomeNotFound:
		if err := a.dropFetched(ctx, globalID); err != nil {
			return zero, res.Outcome, a.c.fail(ctx, err)
		}
		return zero, res.Outcome, nil

	case remote.OutcomeAuthRequired:
		a.c.hub.Publish(ctx, events.TopicAuthRequired, nil)
		return zero, res.Outcome, nil

	default:
		return zero, res.Outcome, nil
	}
}

func (a *EntityAPI[T]) absorbFetched(ctx context.Context, globalID string, res remote.Result[T]) (T, error) {
	fetched := res.Resource
	var result T
	var updatedMain bool

	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		master, err := a.st.MasterByGlobalID(ctx, tx, globalID)
		if err != nil {
			if store.IsNotFound(err) {
				// Unknown locally; hand the fetched resource back without
				// persisting, changelog application owns remote additions.
				result = fetched
				return nil
			}
			return err
		}
		a.overwrite(master, fetched)
		if err := a.st.UpdateMaster(ctx, tx, master); err != nil {
			return err
		}

		main, err := a.st.MainByMasterID(ctx, tx, master.MasterMeta().LocalMasterID.Int64)
		if err != nil {
			if store.IsNotFound(err) {
				result = master
				return nil
			}
			return err
		}
		meta := main.SyncMeta()
		if meta.Synced && !meta.EditInProgress && !meta.SyncInProgress && !meta.Deleted {
			a.overwrite(main, fetched)
			meta.DateCopiedFromMaster = sql.NullTime{Time: a.c.now(), Valid: true}
			if err := a.st.UpdateMain(ctx, tx, main); err != nil {
				return err
			}
			updatedMain = true
		}
		result = main
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if updatedMain {
		a.publish(ctx, events.KindRemotelyUpdated, result)
	}
	return result, nil
}

func (a *EntityAPI[T]) dropFetched(ctx context.Context, globalID string) error {
	var dropped T
	var found bool
	err := a.c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := a.st.MainByGlobalID(ctx, tx, globalID)
		if err != nil {
			if store.IsNotFound(err) {
				// No working copy; a pruned row may still hold a master.
				master, merr := a.st.MasterByGlobalID(ctx, tx, globalID)
				if merr != nil {
					if store.IsNotFound(merr) {
						return nil
					}
					return merr
				}
				return a.st.DeleteMaster(ctx, tx, master.MasterMeta().LocalMasterID.Int64)
			}
			return err
		}
		meta := e.SyncMeta()
		if !meta.Synced || meta.EditInProgress || meta.SyncInProgress {
			// Pending local work; leave it to conflict handling.
			return nil
		}
		dropped, found = e, true
		return a.st.DeleteBothCopies(ctx, tx, e)
	})
	if err != nil {
		return err
	}
	if found {
		a.publish(ctx, events.KindRemotelyDeleted, dropped)
	}
	return nil
}
