package sync

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

// Progress is the aggregate report of one flush-all pass, surfaced to the
// application so a foreground UI can reflect background work.
type Progress struct {
	// Total is the number of rows the pass attempted.
	Total int
	// Flushed counts successful reconciliations (created, updated, deleted).
	Flushed int
	// Failed counts busy/conflict/transient outcomes.
	Failed int
	// Skipped counts rows passed over (busy locally, parent not synced).
	Skipped int

	// RetryAt is the earliest remote-suggested retry time seen, zero if
	// none was suggested.
	RetryAt time.Time

	// AuthRequired reports that the pass stopped on an authentication
	// rejection; nothing after that row was attempted.
	AuthRequired bool
}

// Fraction is the completed share of the pass, 1 for an empty pass.
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Flushed+p.Failed+p.Skipped) / float64(p.Total)
}

// Remotes bundles the per-entity transport implementations.
type Remotes struct {
	Users            remote.Store[*model.User]
	Vehicles         remote.Store[*model.Vehicle]
	FuelStations     remote.Store[*model.FuelStation]
	FuelPurchaseLogs remote.Store[*model.FuelPurchaseLog]
	EnvironmentLogs  remote.Store[*model.EnvironmentLog]
}

// Engine composes the five flushers with the merger and the cross-entity
// maintenance operations. FlushAll walks entity types parent-before-child
// (user, then vehicle/fuel station, then logs) so parents own global ids by
// the time their children upload.
type Engine struct {
	db     *dbx.DB
	stores *store.Stores
	hub    *events.Hub
	log    logging.Logger
	now    func() time.Time

	users        *Flusher[*model.User]
	vehicles     *Flusher[*model.Vehicle]
	fuelStations *Flusher[*model.FuelStation]
	fpLogs       *Flusher[*model.FuelPurchaseLog]
	envLogs      *Flusher[*model.EnvironmentLog]

	merger *Merger
}

func NewEngine(db *dbx.DB, stores *store.Stores, remotes Remotes,
	tokens *remote.TokenHolder, hub *events.Hub, log logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{
		db: db, stores: stores, hub: hub, log: log, now: time.Now,
		users: NewFlusher(db, stores.Users, remotes.Users, tokens, hub,
			func(dst, src *model.User) { dst.Overwrite(src) }, log),
		vehicles: NewFlusher(db, stores.Vehicles, remotes.Vehicles, tokens, hub,
			func(dst, src *model.Vehicle) { dst.Overwrite(src) }, log),
		fuelStations: NewFlusher(db, stores.FuelStations, remotes.FuelStations, tokens, hub,
			func(dst, src *model.FuelStation) { dst.Overwrite(src) }, log),
		fpLogs: NewFlusher(db, stores.FuelPurchaseLogs, remotes.FuelPurchaseLogs, tokens, hub,
			func(dst, src *model.FuelPurchaseLog) { dst.Overwrite(src) }, log),
		envLogs: NewFlusher(db, stores.EnvironmentLogs, remotes.EnvironmentLogs, tokens, hub,
			func(dst, src *model.EnvironmentLog) { dst.Overwrite(src) }, log),
		merger: NewMerger(db, stores, hub, log),
	}

	// Once a parent gains its global id, back-fill the reference columns on
	// child rows inside the same completion transaction.
	e.users.afterSynced = func(ctx context.Context, tx dbx.DBTX, u *model.User) error {
		return stores.AttachUserLinks(ctx, tx, u)
	}
	e.vehicles.afterSynced = func(ctx context.Context, tx dbx.DBTX, v *model.Vehicle) error {
		return stores.AttachVehicleLinks(ctx, tx, v)
	}
	e.fuelStations.afterSynced = func(ctx context.Context, tx dbx.DBTX, fs *model.FuelStation) error {
		return stores.AttachFuelStationLinks(ctx, tx, fs)
	}
	return e
}

// Flushers, for callers that reconcile a single entity immediately.

func (e *Engine) Users() *Flusher[*model.User]                       { return e.users }
func (e *Engine) Vehicles() *Flusher[*model.Vehicle]                 { return e.vehicles }
func (e *Engine) FuelStations() *Flusher[*model.FuelStation]         { return e.fuelStations }
func (e *Engine) FuelPurchaseLogs() *Flusher[*model.FuelPurchaseLog] { return e.fpLogs }
func (e *Engine) EnvironmentLogs() *Flusher[*model.EnvironmentLog]   { return e.envLogs }

// Merger exposes changelog application.
func (e *Engine) Merger() *Merger { return e.merger }

// FlushAll reconciles every flush-ready row, parent types first. The pass
// stops early when the remote rejects authentication; remaining rows keep
// their state and are picked up after re-login.
func (e *Engine) FlushAll(ctx context.Context) (Progress, error) {
	var p Progress
	now := e.now()

	passes := []func() (bool, error){
		func() (bool, error) { return flushReady(ctx, e.db, e.stores.Users, e.users, now, &p) },
		func() (bool, error) { return flushReady(ctx, e.db, e.stores.Vehicles, e.vehicles, now, &p) },
		func() (bool, error) { return flushReady(ctx, e.db, e.stores.FuelStations, e.fuelStations, now, &p) },
		func() (bool, error) { return flushReady(ctx, e.db, e.stores.FuelPurchaseLogs, e.fpLogs, now, &p) },
		func() (bool, error) { return flushReady(ctx, e.db, e.stores.EnvironmentLogs, e.envLogs, now, &p) },
	}
	for _, pass := range passes {
		cont, err := pass()
		if err != nil {
			return p, err
		}
		if !cont {
			p.AuthRequired = true
			return p, nil
		}
	}
	return p, nil
}

// flushReady flushes one entity type's due rows. Returns false when the
// remote demanded re-authentication.
func flushReady[T model.Entity](ctx context.Context, db *dbx.DB, st *store.Store[T],
	f *Flusher[T], now time.Time, p *Progress) (bool, error) {

	var list []T
	err := db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		var err error
		list, err = st.ReadyToFlush(ctx, q, now)
		return err
	})
	if err != nil {
		return false, err
	}

	p.Total += len(list)
	for _, e := range list {
		out, err := f.Flush(ctx, e)
		if err != nil {
			return false, err
		}
		switch out {
		case FlushedNew, FlushedUpdated, FlushedDeleted, RemotelyDeleted:
			p.Flushed++
		case AuthRequired:
			p.Failed++
			return false, nil
		case RemoteBusy:
			p.Failed++
			if at := e.SyncMeta().SyncRetryAt; at.Valid && (p.RetryAt.IsZero() || at.Time.Before(p.RetryAt)) {
				p.RetryAt = at.Time
			}
		case Conflicted, TransientError:
			p.Failed++
		default:
			p.Skipped++
		}
	}
	return true, nil
}

// Prune removes fully synced rows of the high-volume entity types and
// publishes the pruning-complete notification.
func (e *Engine) Prune(ctx context.Context) (int, error) {
	var n int
	err := e.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = e.stores.PruneAllSynced(ctx, tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		e.log.Info(ctx, "pruned synced rows", "count", n)
	}
	e.hub.Publish(ctx, events.TopicPruningComplete, n)
	return n, nil
}

// GlobalCancelSync releases every in-flight sync lock (shutdown/reset).
// Network calls that complete afterwards fail their token guard and are
// discarded.
func (e *Engine) GlobalCancelSync(ctx context.Context) (int64, error) {
	var n int64
	err := e.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = e.stores.CancelAllSyncInProgress(ctx, tx)
		return err
	})
	return n, err
}
