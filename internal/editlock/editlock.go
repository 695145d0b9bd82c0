// Package editlock implements the edit-session protocol on top of the
// two-copy store: a single actor holds the edit lock of an entity at a time,
// sessions nest via the edit count, and a cancelled session restores the
// working copy from its master (or removes the placeholder row of a
// never-synced entity).
package editlock

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

// Outcome classifies a Begin attempt.
type Outcome int

const (
	// Ok means the lock is held by the caller after Begin.
	Ok Outcome = iota
	// AlreadyBeingSynced means a flush currently owns the row.
	AlreadyBeingSynced
	// AlreadyDeleted means the row is marked for deletion.
	AlreadyDeleted
	// InConflict means the row awaits explicit conflict resolution.
	InConflict
	// HeldByOtherActor means another actor's edit session is open. The
	// holding actor is readable from the entity's EditActorID field.
	HeldByOtherActor
)

func (o Outcome) String() string {
	switch o {
	case Ok:
		return "ok"
	case AlreadyBeingSynced:
		return "already being synced"
	case AlreadyDeleted:
		return "already deleted"
	case InConflict:
		return "in conflict"
	case HeldByOtherActor:
		return "held by other actor"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Manager runs the edit-session protocol for one entity type. overwrite
// copies domain fields and master metadata from src into dst without
// touching local identifiers; it is how a cancelled session reverts.
type Manager[T model.Entity] struct {
	st        *store.Store[T]
	overwrite func(dst, src T)
	log       logging.Logger
}

func New[T model.Entity](st *store.Store[T], overwrite func(dst, src T), log logging.Logger) *Manager[T] {
	if log == nil {
		log = logging.Nop()
	}
	return &Manager[T]{st: st, overwrite: overwrite, log: log}
}

// Begin opens (or nests into) an edit session on e for actor. On Ok the row
// holds the edit lock with the bumped edit count; an entity that has never
// been saved gets its placeholder main row inserted here so nested sessions
// and cancellation have a row to work against.
func (m *Manager[T]) Begin(ctx context.Context, q dbx.DBTX, e T, actor model.ActorID) (Outcome, error) {
	meta := e.SyncMeta()

	switch {
	case meta.SyncInProgress:
		return AlreadyBeingSynced, nil
	case meta.Deleted:
		return AlreadyDeleted, nil
	case meta.InConflict:
		return InConflict, nil
	}
	if meta.EditInProgress && !meta.EditableBy(actor) {
		return HeldByOtherActor, nil
	}

	meta.EditInProgress = true
	meta.EditActorID = model.NullString(string(actor))
	// The working copy is provisional for the whole session: a synced row
	// stops being synced the moment an edit opens. Cancel restores the flag
	// from the master copy.
	meta.Synced = false
	meta.IncrementEditCount()

	if !meta.LocalMainID.Valid {
		if err := m.st.InsertMain(ctx, q, e); err != nil {
			return Ok, err
		}
		m.log.Debug(ctx, "inserted placeholder row for new entity", "id", meta.LocalMainID.Int64)
		return Ok, nil
	}
	if err := m.st.UpdateMain(ctx, q, e); err != nil {
		return Ok, err
	}
	return Ok, nil
}

// Save persists the working copy mid-session. The row stays locked; it is
// marked unsynced and its stale failure diagnostics are dropped so the next
// flush pass starts clean.
func (m *Manager[T]) Save(ctx context.Context, q dbx.DBTX, e T) error {
	meta := e.SyncMeta()
	if !meta.EditInProgress {
		return fmt.Errorf("save: entity is not being edited")
	}
	meta.Synced = false
	meta.ClearSyncDiagnostics()
	return m.st.UpdateMain(ctx, q, e)
}

// End closes one nesting level of the edit session and returns the remaining
// depth. At depth zero the lock is released, the row is marked unsynced and
// becomes eligible for flushing.
func (m *Manager[T]) End(ctx context.Context, q dbx.DBTX, e T) (uint, error) {
	meta := e.SyncMeta()
	if !meta.EditInProgress {
		return 0, fmt.Errorf("end edit: entity is not being edited")
	}
	if depth := meta.DecrementEditCount(); depth > 0 {
		if err := m.st.UpdateMain(ctx, q, e); err != nil {
			return depth, err
		}
		return depth, nil
	}
	meta.EditInProgress = false
	meta.EditActorID = sql.NullString{}
	meta.Synced = false
	meta.ClearSyncDiagnostics()
	if err := m.st.UpdateMain(ctx, q, e); err != nil {
		return 0, err
	}
	return 0, nil
}

// Cancel closes one nesting level discarding its changes and returns the
// remaining depth. When the outermost session is cancelled the working copy
// is restored from the master copy; an entity that never synced has no
// master, so its placeholder row is removed instead and e's local main id is
// cleared.
func (m *Manager[T]) Cancel(ctx context.Context, q dbx.DBTX, e T) (uint, error) {
	meta := e.SyncMeta()
	if !meta.EditInProgress {
		return 0, fmt.Errorf("cancel edit: entity is not being edited")
	}
	if depth := meta.DecrementEditCount(); depth > 0 {
		return depth, nil
	}

	masterID := e.MasterMeta().LocalMasterID
	if !masterID.Valid {
		if err := m.st.DeleteMain(ctx, q, meta.LocalMainID.Int64); err != nil {
			return 0, err
		}
		meta.LocalMainID = sql.NullInt64{}
		meta.EditInProgress = false
		meta.EditActorID = sql.NullString{}
		return 0, nil
	}

	master, err := m.st.MasterByID(ctx, q, masterID.Int64)
	if err != nil {
		return 0, fmt.Errorf("cancel edit: %w", err)
	}
	m.overwrite(e, master)
	meta.EditInProgress = false
	meta.EditActorID = sql.NullString{}
	meta.Synced = true
	meta.InConflict = false
	meta.ClearSyncDiagnostics()
	if err := m.st.UpdateMain(ctx, q, e); err != nil {
		return 0, err
	}
	return 0, nil
}
