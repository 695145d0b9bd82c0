// Package sync drives remote reconciliation: the per-entity flush state
// machine, changelog application, and the background scheduler actor.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
	"github.com/google/uuid"
)

// Outcome classifies one flush attempt.
type Outcome int

const (
	// FlushedNew: the entity was created remotely and now owns a global id.
	FlushedNew Outcome = iota
	// FlushedUpdated: the remote accepted the updated working copy.
	FlushedUpdated
	// FlushedDeleted: the local deletion was confirmed (or the remote copy
	// was already gone) and the local rows are removed.
	FlushedDeleted
	// SkippedAlreadySynced: nothing to do.
	SkippedAlreadySynced
	// SkippedRowBusy: the row is mid-edit, mid-sync or in conflict; the
	// sync lock was not acquired.
	SkippedRowBusy
	// SkippedParentNotSynced: a referenced parent has no global id yet.
	SkippedParentNotSynced
	// RemoteBusy: the remote asked to retry later; retry time recorded.
	RemoteBusy
	// Conflicted: the remote copy diverged; conflict flag raised, the
	// remote's version captured into the master copy.
	Conflicted
	// RemotelyDeleted: the remote reports the entity gone; local rows
	// removed.
	RemotelyDeleted
	// AuthRequired: rejected for authentication reasons; row reverted to
	// its pre-flush state.
	AuthRequired
	// TransientError: network/5xx failure; diagnostics recorded, retryable.
	TransientError
	// Cancelled: the attempt was cancelled (global cancel) while the
	// network call was in flight; the late completion was discarded.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case FlushedNew:
		return "flushed (new)"
	case FlushedUpdated:
		return "flushed (updated)"
	case FlushedDeleted:
		return "flushed (deleted)"
	case SkippedAlreadySynced:
		return "skipped: already synced"
	case SkippedRowBusy:
		return "skipped: row busy"
	case SkippedParentNotSynced:
		return "skipped: parent not synced"
	case RemoteBusy:
		return "remote busy"
	case Conflicted:
		return "conflicted"
	case RemotelyDeleted:
		return "remotely deleted"
	case AuthRequired:
		return "auth required"
	case TransientError:
		return "transient error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// tokenExpiryLeeway is how close to its expiry a JWT may be before flushes
// stop attempting remote calls with it.
const tokenExpiryLeeway = 30 * time.Second

// Flusher reconciles one entity type with the remote store. The remote call
// runs outside any database transaction; the row is claimed with a fresh
// sync token first and the completion is applied token-guarded afterwards,
// so a globally cancelled attempt is discarded instead of applied late.
type Flusher[T model.Entity] struct {
	db        *dbx.DB
	st        *store.Store[T]
	remote    remote.Store[T]
	tokens    *remote.TokenHolder
	hub       *events.Hub
	overwrite func(dst, src T)
	log       logging.Logger
	now       func() time.Time

	// afterSynced runs inside the completion transaction of a successful
	// first-time create; the engine uses it to back-fill parent links on
	// child tables.
	afterSynced func(ctx context.Context, tx dbx.DBTX, e T) error
}

func NewFlusher[T model.Entity](db *dbx.DB, st *store.Store[T], rs remote.Store[T],
	tokens *remote.TokenHolder, hub *events.Hub, overwrite func(dst, src T), log logging.Logger) *Flusher[T] {
	if log == nil {
		log = logging.Nop()
	}
	return &Flusher[T]{
		db: db, st: st, remote: rs, tokens: tokens, hub: hub,
		overwrite: overwrite, log: log.With("entity", st.Desc().Name),
		now: time.Now,
	}
}

// Flush reconciles e with the remote store and returns the classified
// outcome. A non-nil error is system-faulted (local store broken); the
// outcome is meaningless then.
func (f *Flusher[T]) Flush(ctx context.Context, e T) (Outcome, error) {
	meta := e.SyncMeta()
	if meta.Deleted {
		return f.flushDelete(ctx, e)
	}
	if meta.Synced {
		return SkippedAlreadySynced, nil
	}
	for _, pc := range f.st.Desc().ParentCols {
		if !pc.Ref(e).GlobalID.Valid {
			return SkippedParentNotSynced, nil
		}
	}

	if f.tokenExpiringSoon(ctx, e) {
		return AuthRequired, nil
	}

	creating := !e.MasterMeta().GlobalID.Valid
	ok, err := f.claim(ctx, e)
	if err != nil {
		return TransientError, err
	}
	if !ok {
		return SkippedRowBusy, nil
	}
	f.publish(ctx, events.KindSyncInitiated, e)

	var res remote.Result[T]
	if creating {
		res = f.remote.CreateNew(ctx, f.tokens.Token(), e)
	} else {
		res = f.remote.SaveExisting(ctx, f.tokens.Token(), e)
	}
	f.tokens.Absorb(res.AuthToken)

	return f.complete(ctx, e, creating, res)
}

func (f *Flusher[T]) claim(ctx context.Context, e T) (bool, error) {
	token := uuid.NewString()
	var ok bool
	err := f.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		ok, err = f.st.MarkSyncInProgress(ctx, tx, e, token)
		return err
	})
	return ok, err
}

func (f *Flusher[T]) complete(ctx context.Context, e T, creating bool, res remote.Result[T]) (Outcome, error) {
	var out Outcome
	var kind events.Kind
	var authRequired bool

	err := f.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		switch res.Outcome {
		case remote.OutcomeSuccess:
			if creating {
				if res.GlobalID == "" {
					// Protocol violation; record it like any other
					// transient failure and let the scheduler retry.
					out = TransientError
					return f.st.CancelSync(ctx, tx, e, httpCode(res), errMask(res), sql.NullTime{})
				}
				f.absorbMaster(e, res)
				e.MasterMeta().GlobalID = model.NullString(res.GlobalID)
				if err := f.st.MarkSyncedNew(ctx, tx, e, f.now()); err != nil {
					return err
				}
				out, kind = FlushedNew, events.KindSynced
				if f.afterSynced != nil {
					return f.afterSynced(ctx, tx, e)
				}
				return nil
			}
			f.absorbMaster(e, res)
			if err := f.st.MarkSyncedUpdated(ctx, tx, e, f.now()); err != nil {
				return err
			}
			out, kind = FlushedUpdated, events.KindSynced
			return nil

		case remote.OutcomeBusy:
			out, kind = RemoteBusy, events.KindSyncFailed
			return f.st.CancelSync(ctx, tx, e, httpCode(res), errMask(res), retryAt(res))

		case remote.OutcomeConflict:
			out, kind = Conflicted, events.KindSyncFailed
			if err := f.captureRemoteVersion(ctx, tx, e, res); err != nil {
				return err
			}
			return f.st.MarkConflicted(ctx, tx, e, httpCode(res))

		case remote.OutcomeGone, remote.OutcomeNotFound:
			still, err := f.st.StillInFlight(ctx, tx, e)
			if err != nil {
				return err
			}
			if !still {
				return store.ErrStaleSyncToken
			}
			out, kind = RemotelyDeleted, events.KindRemotelyDeleted
			return f.st.DeleteBothCopies(ctx, tx, e)

		case remote.OutcomeAuthRequired:
			out, authRequired = AuthRequired, true
			return f.st.RevertSyncAttempt(ctx, tx, e)

		default:
			out, kind = TransientError, events.KindSyncFailed
			if res.Err != nil {
				f.log.Warn(ctx, "remote call failed", "error", res.Err)
			}
			return f.st.CancelSync(ctx, tx, e, httpCode(res), errMask(res), retryAt(res))
		}
	})
	if errors.Is(err, store.ErrStaleSyncToken) {
		f.log.Debug(ctx, "discarding late sync completion", "outcome", res.Outcome.String())
		return Cancelled, nil
	}
	if err != nil {
		return TransientError, err
	}

	if kind != "" {
		f.publish(ctx, kind, e)
	}
	if authRequired {
		f.hub.Publish(ctx, events.TopicAuthRequired, e)
	}
	return out, nil
}

// flushDelete pushes a locally marked deletion to the remote, or just drops
// the rows for an entity the remote never saw.
func (f *Flusher[T]) flushDelete(ctx context.Context, e T) (Outcome, error) {
	if !e.MasterMeta().GlobalID.Valid {
		err := f.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			return f.st.DeleteBothCopies(ctx, tx, e)
		})
		if err != nil {
			return TransientError, err
		}
		f.publish(ctx, events.KindLocallyDeleted, e)
		return FlushedDeleted, nil
	}

	if f.tokenExpiringSoon(ctx, e) {
		return AuthRequired, nil
	}

	ok, err := f.claim(ctx, e)
	if err != nil {
		return TransientError, err
	}
	if !ok {
		return SkippedRowBusy, nil
	}
	f.publish(ctx, events.KindSyncInitiated, e)

	res := f.remote.Delete(ctx, f.tokens.Token(), e)
	f.tokens.Absorb(res.AuthToken)

	var out Outcome
	var kind events.Kind
	var authRequired bool
	err = f.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		switch res.Outcome {
		case remote.OutcomeSuccess, remote.OutcomeGone, remote.OutcomeNotFound:
			still, err := f.st.StillInFlight(ctx, tx, e)
			if err != nil {
				return err
			}
			if !still {
				return store.ErrStaleSyncToken
			}
			out, kind = FlushedDeleted, events.KindLocallyDeleted
			return f.st.DeleteBothCopies(ctx, tx, e)

		case remote.OutcomeBusy:
			out, kind = RemoteBusy, events.KindSyncFailed
			return f.st.CancelSync(ctx, tx, e, httpCode(res), errMask(res), retryAt(res))

		case remote.OutcomeConflict:
			out, kind = Conflicted, events.KindSyncFailed
			if err := f.captureRemoteVersion(ctx, tx, e, res); err != nil {
				return err
			}
			return f.st.MarkConflicted(ctx, tx, e, httpCode(res))

		case remote.OutcomeAuthRequired:
			out, authRequired = AuthRequired, true
			return f.st.RevertSyncAttempt(ctx, tx, e)

		default:
			out, kind = TransientError, events.KindSyncFailed
			return f.st.CancelSync(ctx, tx, e, httpCode(res), errMask(res), retryAt(res))
		}
	})
	if errors.Is(err, store.ErrStaleSyncToken) {
		return Cancelled, nil
	}
	if err != nil {
		return TransientError, err
	}

	if kind != "" {
		f.publish(ctx, kind, e)
	}
	if authRequired {
		f.hub.Publish(ctx, events.TopicAuthRequired, e)
	}
	return out, nil
}

// tokenExpiringSoon reports whether the current JWT is within expiry
// leeway. Such an attempt is a guaranteed 401, so it is classified as an
// auth rejection up front, before the row is claimed or the network
// touched. Opaque and absent tokens never trip this.
func (f *Flusher[T]) tokenExpiringSoon(ctx context.Context, e T) bool {
	if !f.tokens.ExpiresWithin(f.now(), tokenExpiryLeeway) {
		return false
	}
	f.log.Debug(ctx, "auth token expiring, skipping remote call")
	f.hub.Publish(ctx, events.TopicAuthRequired, e)
	return true
}

// absorbMaster copies server-echoed master fields onto e before the master
// row is written.
func (f *Flusher[T]) absorbMaster(e T, res remote.Result[T]) {
	m := e.MasterMeta()
	if res.HasResource {
		remoteMaster := res.Resource.MasterMeta()
		if len(remoteMaster.Relations) > 0 {
			m.Relations = remoteMaster.Relations
		}
		if remoteMaster.CreatedAt.Valid {
			m.CreatedAt = remoteMaster.CreatedAt
		}
	} else if len(res.Relations) > 0 {
		m.Relations = res.Relations
	}
	if !res.LastModified.IsZero() {
		m.UpdatedAt = sql.NullTime{Time: res.LastModified, Valid: true}
	}
	if !m.CreatedAt.Valid {
		m.CreatedAt = sql.NullTime{Time: f.now(), Valid: true}
	}
}

// captureRemoteVersion writes the remote's current version into the master
// copy on conflict, so the application can show both sides. The working
// copy's domain fields are never touched here.
func (f *Flusher[T]) captureRemoteVersion(ctx context.Context, tx dbx.DBTX, e T, res remote.Result[T]) error {
	if !res.HasResource || !e.MasterMeta().LocalMasterID.Valid {
		return nil
	}
	masterCopy, err := f.st.MasterByID(ctx, tx, e.MasterMeta().LocalMasterID.Int64)
	if err != nil {
		return fmt.Errorf("failed to load master copy for conflict capture: %w", err)
	}
	f.overwrite(masterCopy, res.Resource)
	return f.st.UpdateMaster(ctx, tx, masterCopy)
}

func (f *Flusher[T]) publish(ctx context.Context, kind events.Kind, e T) {
	f.hub.Publish(ctx, events.Topic(f.st.Desc().Name, kind), e)
}

func httpCode[T model.Entity](res remote.Result[T]) sql.NullInt64 {
	if res.HTTPStatus == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: true}
}

func errMask[T model.Entity](res remote.Result[T]) sql.NullInt64 {
	if res.ErrMask == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: res.ErrMask, Valid: true}
}

func retryAt[T model.Entity](res remote.Result[T]) sql.NullTime {
	if res.RetryAfter.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: res.RetryAfter, Valid: true}
}
