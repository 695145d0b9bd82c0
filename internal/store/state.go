package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// ErrStaleSyncToken is returned by completion-side transitions when the
// row's in-flight token no longer matches: the attempt was cancelled (or
// superseded) while the network call was outstanding, so the late
// completion must be discarded, not applied.
var ErrStaleSyncToken = errors.New("stale sync token")

// MarkSyncInProgress attempts to acquire the sync lock on e's main row,
// stamping it with token. Admission is atomic against the row's current
// state: it fails (returns false) if the row is already synced, mid-edit,
// mid-sync, or in conflict. On success e's in-memory metadata reflects the
// acquired lock.
func (s *Store[T]) MarkSyncInProgress(ctx context.Context, q dbx.DBTX, e T, token string) (bool, error) {
	meta := e.SyncMeta()
	if !meta.LocalMainID.Valid {
		return false, fmt.Errorf("mark sync in progress: entity has no main row")
	}
	query := fmt.Sprintf(`UPDATE %s
		SET sync_in_progress = 1, sync_token = ?
		WHERE id = ? AND synced = 0 AND edit_in_progress = 0 AND sync_in_progress = 0 AND in_conflict = 0`,
		s.desc.MainTable)
	res, err := q.ExecContext(ctx, query, token, meta.LocalMainID.Int64)
	if err != nil {
		return false, fmt.Errorf("failed to mark sync in progress: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return false, nil
	}
	meta.SyncInProgress = true
	meta.SyncToken = model.NullString(token)
	return true, nil
}

// guardToken appends the in-flight token condition to a main-row UPDATE,
// so completion transitions only land on the attempt that initiated them.
func (s *Store[T]) applyGuarded(ctx context.Context, q dbx.DBTX, e T, set string, args ...any) error {
	meta := e.SyncMeta()
	if !meta.SyncToken.Valid {
		return ErrStaleSyncToken
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ? AND sync_token = ?`, s.desc.MainTable, set)
	args = append(args, meta.LocalMainID.Int64, meta.SyncToken.String)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.desc.MainTable, err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return ErrStaleSyncToken
	}
	return nil
}

// CancelSync releases the sync lock after a failed attempt, storing the
// diagnostic payload and the server-suggested retry time. The entity stays
// unsynced. A stale token means the attempt was already cancelled globally;
// that is reported via ErrStaleSyncToken so the caller can discard the
// completion silently.
func (s *Store[T]) CancelSync(ctx context.Context, q dbx.DBTX, e T, httpRespCode, errMask sql.NullInt64, retryAt sql.NullTime) error {
	err := s.applyGuarded(ctx, q, e,
		`sync_in_progress = 0, sync_token = NULL, sync_http_resp_code = ?, sync_err_mask = ?, sync_retry_at = ?`,
		httpRespCode, errMask, retryAt)
	if err != nil {
		return err
	}
	meta := e.SyncMeta()
	meta.SyncInProgress = false
	meta.SyncToken = sql.NullString{}
	meta.SyncHTTPRespCode = httpRespCode
	meta.SyncErrMask = errMask
	meta.SyncRetryAt = retryAt
	return nil
}

// RevertSyncAttempt releases the sync lock leaving the row exactly as it
// was before the flush (no diagnostics recorded). Used for the
// auth-required outcome, which is not a failure of the entity.
func (s *Store[T]) RevertSyncAttempt(ctx context.Context, q dbx.DBTX, e T) error {
	if err := s.applyGuarded(ctx, q, e, `sync_in_progress = 0, sync_token = NULL`); err != nil {
		return err
	}
	meta := e.SyncMeta()
	meta.SyncInProgress = false
	meta.SyncToken = sql.NullString{}
	return nil
}

// MarkSyncedNew completes a successful first-time create: inserts the master
// copy (carrying the server-assigned global id and timestamps already set on
// e), links the main row to it, and flips the main row to synced.
//
// The global id is assigned exactly once; if e already carries a different
// one this is a programming error and is rejected.
func (s *Store[T]) MarkSyncedNew(ctx context.Context, q dbx.DBTX, e T, now time.Time) error {
	master := e.MasterMeta()
	if master.LocalMasterID.Valid {
		return fmt.Errorf("mark synced new: master row already exists (id=%d)", master.LocalMasterID.Int64)
	}
	if err := s.InsertMaster(ctx, q, e); err != nil {
		return err
	}
	meta := e.SyncMeta()
	err := s.applyGuarded(ctx, q, e,
		`master_id = ?, global_id = ?, synced = 1, sync_in_progress = 0, sync_token = NULL,
		 sync_http_resp_code = NULL, sync_err_mask = NULL, sync_retry_at = NULL,
		 date_copied_from_master = ?`,
		master.LocalMasterID.Int64, master.GlobalID, now)
	if err != nil {
		return err
	}
	meta.Synced = true
	meta.SyncInProgress = false
	meta.SyncToken = sql.NullString{}
	meta.ClearSyncDiagnostics()
	meta.DateCopiedFromMaster = sql.NullTime{Time: now, Valid: true}
	return nil
}

// MarkSyncedUpdated completes a successful update of an existing entity:
// the master row is overwritten with the server's echoed state and the main
// row flips to synced.
func (s *Store[T]) MarkSyncedUpdated(ctx context.Context, q dbx.DBTX, e T, now time.Time) error {
	if err := s.UpdateMaster(ctx, q, e); err != nil {
		return err
	}
	meta := e.SyncMeta()
	err := s.applyGuarded(ctx, q, e,
		`synced = 1, sync_in_progress = 0, sync_token = NULL,
		 sync_http_resp_code = NULL, sync_err_mask = NULL, sync_retry_at = NULL,
		 date_copied_from_master = ?`,
		now)
	if err != nil {
		return err
	}
	meta.Synced = true
	meta.SyncInProgress = false
	meta.SyncToken = sql.NullString{}
	meta.ClearSyncDiagnostics()
	meta.DateCopiedFromMaster = sql.NullTime{Time: now, Valid: true}
	return nil
}

// MarkConflicted records that the remote copy has diverged: the sync lock
// is released, the conflict flag raised, diagnostics stored. Domain fields
// of the main row are left untouched.
func (s *Store[T]) MarkConflicted(ctx context.Context, q dbx.DBTX, e T, httpRespCode sql.NullInt64) error {
	err := s.applyGuarded(ctx, q, e,
		`in_conflict = 1, sync_in_progress = 0, sync_token = NULL, edit_in_progress = 0, edit_actor_id = NULL, edit_count = 0, sync_http_resp_code = ?`,
		httpRespCode)
	if err != nil {
		return err
	}
	meta := e.SyncMeta()
	meta.InConflict = true
	meta.SyncInProgress = false
	meta.SyncToken = sql.NullString{}
	meta.EditInProgress = false
	meta.EditActorID = sql.NullString{}
	meta.EditCount = 0
	meta.SyncHTTPRespCode = httpRespCode
	return nil
}

// ClearConflict drops the conflict flag after an explicit reload/overwrite.
func (s *Store[T]) ClearConflict(ctx context.Context, q dbx.DBTX, e T) error {
	meta := e.SyncMeta()
	if !meta.LocalMainID.Valid {
		return fmt.Errorf("clear conflict: entity has no main row")
	}
	query := fmt.Sprintf(`UPDATE %s SET in_conflict = 0 WHERE id = ?`, s.desc.MainTable)
	if _, err := q.ExecContext(ctx, query, meta.LocalMainID.Int64); err != nil {
		return fmt.Errorf("failed to clear conflict: %w", err)
	}
	meta.InConflict = false
	return nil
}

// MarkDeleted flags the main row for deletion, pending remote confirmation.
func (s *Store[T]) MarkDeleted(ctx context.Context, q dbx.DBTX, e T) error {
	meta := e.SyncMeta()
	if !meta.LocalMainID.Valid {
		return fmt.Errorf("mark deleted: entity has no main row")
	}
	query := fmt.Sprintf(`UPDATE %s SET deleted = 1, synced = 0 WHERE id = ?`, s.desc.MainTable)
	if _, err := q.ExecContext(ctx, query, meta.LocalMainID.Int64); err != nil {
		return fmt.Errorf("failed to mark deleted: %w", err)
	}
	meta.Deleted = true
	meta.Synced = false
	return nil
}

// StillInFlight reports whether e's main row still carries e's in-memory
// sync token. Completion paths that physically delete rows (gone, confirmed
// deletion) check this first, since a DELETE cannot carry the token guard.
func (s *Store[T]) StillInFlight(ctx context.Context, q dbx.DBTX, e T) (bool, error) {
	meta := e.SyncMeta()
	if !meta.LocalMainID.Valid || !meta.SyncToken.Valid {
		return false, nil
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ? AND sync_token = ?`, s.desc.MainTable)
	var n int
	if err := q.QueryRowContext(ctx, query, meta.LocalMainID.Int64, meta.SyncToken.String).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check sync token: %w", err)
	}
	return n == 1, nil
}

// CancelAllSyncInProgress clears the sync-in-progress flag on every main
// row of this entity type and rotates the tokens away, so completions of
// outstanding network calls land on ErrStaleSyncToken and are discarded.
// Returns the number of rows released.
func (s *Store[T]) CancelAllSyncInProgress(ctx context.Context, q dbx.DBTX) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET sync_in_progress = 0, sync_token = NULL WHERE sync_in_progress = 1`, s.desc.MainTable)
	res, err := q.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel sync in progress: %w", err)
	}
	return res.RowsAffected()
}

// DetachAllFromRemote unlinks every main row of this entity type from its
// master copy and drops the master rows: main rows revert to the "new,
// never synced" state with their domain fields intact. Used when the device
// unlinks from the remote account.
func (s *Store[T]) DetachAllFromRemote(ctx context.Context, q dbx.DBTX) error {
	set := `master_id = NULL, global_id = NULL, date_copied_from_master = NULL,
		synced = 0, in_conflict = 0, sync_in_progress = 0, sync_token = NULL,
		sync_http_resp_code = NULL, sync_err_mask = NULL, sync_retry_at = NULL`
	for _, pc := range s.desc.ParentCols {
		set += fmt.Sprintf(", %s = NULL, %s = NULL", pc.MasterCol, pc.GlobalCol)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET %s`, s.desc.MainTable, set)); err != nil {
		return fmt.Errorf("failed to detach %s: %w", s.desc.MainTable, err)
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.desc.MasterTable)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.desc.MasterTable, err)
	}
	return nil
}

// ReadyToFlush lists main rows a flush pass should pick up at time now:
// unsynced, lock-free, conflict-free, retry time elapsed (or none).
func (s *Store[T]) ReadyToFlush(ctx context.Context, q dbx.DBTX, now time.Time) ([]T, error) {
	return s.queryMains(ctx, q,
		` WHERE synced = 0 AND edit_in_progress = 0 AND sync_in_progress = 0 AND in_conflict = 0
		  AND (sync_retry_at IS NULL OR sync_retry_at <= ?) ORDER BY id ASC`, now)
}

// AttachParentLinks back-fills children rows' master/global parent columns
// once a parent has synced and owns a global identifier. parentCol must be
// one of the store's descriptor ParentCols.
func (s *Store[T]) AttachParentLinks(ctx context.Context, q dbx.DBTX, pc ParentCol, parentMainID, parentMasterID int64, parentGlobalID string) error {
	query := fmt.Sprintf(`UPDATE %s SET %s = ?, %s = ? WHERE %s = ?`,
		s.desc.MainTable, pc.MasterCol, pc.GlobalCol, pc.MainCol)
	if _, err := q.ExecContext(ctx, query, parentMasterID, parentGlobalID, parentMainID); err != nil {
		return fmt.Errorf("failed to attach parent links on %s: %w", s.desc.MainTable, err)
	}
	return nil
}
