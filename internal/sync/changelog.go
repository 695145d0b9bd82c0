package sync

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

// MergeStats summarizes one changelog application.
type MergeStats struct {
	Added   int
	Updated int
	Deleted int
	// Conflicted counts entries skipped because the local working copy has
	// pending edits; those rows are flagged in-conflict instead of
	// overwritten.
	Conflicted int
}

// Merger applies a server-provided changelog batch to the local replica:
// parent types before child types, inside one serialized transaction, with
// pending local edits always winning over remote overwrites.
type Merger struct {
	db     *dbx.DB
	stores *store.Stores
	hub    *events.Hub
	log    logging.Logger
	now    func() time.Time
}

func NewMerger(db *dbx.DB, stores *store.Stores, hub *events.Hub, log logging.Logger) *Merger {
	if log == nil {
		log = logging.Nop()
	}
	return &Merger{db: db, stores: stores, hub: hub, log: log, now: time.Now}
}

// Apply merges the changelog into the local store. Events for the affected
// entities are published after the transaction commits.
func (m *Merger) Apply(ctx context.Context, cl *remote.Changelog) (MergeStats, error) {
	var stats MergeStats
	var pending []events.Event

	err := m.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		now := m.now()
		if err := applyEntries(ctx, tx, m.stores.Users, nil,
			func(dst, src *model.User) { dst.Overwrite(src) },
			cl.Users, now, &stats, &pending); err != nil {
			return err
		}
		if err := applyEntries(ctx, tx, m.stores.Vehicles, m.resolveVehicleParents,
			func(dst, src *model.Vehicle) { dst.Overwrite(src) },
			cl.Vehicles, now, &stats, &pending); err != nil {
			return err
		}
		if err := applyEntries(ctx, tx, m.stores.FuelStations, m.resolveFuelStationParents,
			func(dst, src *model.FuelStation) { dst.Overwrite(src) },
			cl.FuelStations, now, &stats, &pending); err != nil {
			return err
		}
		if err := applyEntries(ctx, tx, m.stores.FuelPurchaseLogs, m.resolveFuelPurchaseLogParents,
			func(dst, src *model.FuelPurchaseLog) { dst.Overwrite(src) },
			cl.FuelPurchaseLogs, now, &stats, &pending); err != nil {
			return err
		}
		return applyEntries(ctx, tx, m.stores.EnvironmentLogs, m.resolveEnvironmentLogParents,
			func(dst, src *model.EnvironmentLog) { dst.Overwrite(src) },
			cl.EnvironmentLogs, now, &stats, &pending)
	})
	if err != nil {
		return stats, err
	}

	for _, ev := range pending {
		m.hub.Publish(ctx, ev.Topic, ev.Payload)
	}
	return stats, nil
}

// applyEntries merges one entity type's changelog entries. resolveParents
// fills local parent ids for a remotely added entity; an entry whose parent
// is unknown locally is skipped (the next full resync heals it).
func applyEntries[T model.Entity](
	ctx context.Context, tx dbx.DBTX,
	st *store.Store[T],
	resolveParents func(ctx context.Context, tx dbx.DBTX, e T) (bool, error),
	overwrite func(dst, src T),
	entries []T,
	now time.Time,
	stats *MergeStats,
	pending *[]events.Event,
) error {
	name := st.Desc().Name
	for _, e := range entries {
		gid := e.MasterMeta().GlobalID
		if !gid.Valid {
			continue
		}

		master, err := st.MasterByGlobalID(ctx, tx, gid.String)
		masterMissing := store.IsNotFound(err)
		if err != nil && !masterMissing {
			return err
		}

		if e.MasterMeta().DeletedAt.Valid {
			if masterMissing {
				continue
			}
			if err := applyDeletion(ctx, tx, st, master, name, stats, pending); err != nil {
				return err
			}
			continue
		}

		if masterMissing {
			if resolveParents != nil {
				ok, err := resolveParents(ctx, tx, e)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			if err := st.InsertMaster(ctx, tx, e); err != nil {
				return err
			}
			meta := e.SyncMeta()
			meta.Synced = true
			meta.DateCopiedFromMaster = sql.NullTime{Time: now, Valid: true}
			if err := st.InsertMain(ctx, tx, e); err != nil {
				return err
			}
			stats.Added++
			*pending = append(*pending, events.Event{Topic: events.Topic(name, events.KindRemotelyAdded), Payload: e})
			continue
		}

		// Existing master: only strictly newer entries overwrite.
		entryMod := e.MasterMeta().UpdatedAt
		masterMod := master.MasterMeta().UpdatedAt
		if entryMod.Valid && masterMod.Valid && !entryMod.Time.After(masterMod.Time) {
			continue
		}
		overwrite(master, e)
		if err := st.UpdateMaster(ctx, tx, master); err != nil {
			return err
		}

		main, err := st.MainByMasterID(ctx, tx, master.MasterMeta().LocalMasterID.Int64)
		if store.IsNotFound(err) {
			// Main copy was pruned; resurrect it from the fresh master.
			meta := master.SyncMeta()
			meta.Synced = true
			meta.DateCopiedFromMaster = sql.NullTime{Time: now, Valid: true}
			if err := st.InsertMain(ctx, tx, master); err != nil {
				return err
			}
			stats.Updated++
			*pending = append(*pending, events.Event{Topic: events.Topic(name, events.KindRemotelyUpdated), Payload: master})
			continue
		}
		if err != nil {
			return err
		}

		mainMeta := main.SyncMeta()
		if mainMeta.Synced && !mainMeta.EditInProgress && !mainMeta.Deleted {
			overwrite(main, e)
			mainMeta.DateCopiedFromMaster = sql.NullTime{Time: now, Valid: true}
			if err := st.UpdateMain(ctx, tx, main); err != nil {
				return err
			}
			stats.Updated++
			*pending = append(*pending, events.Event{Topic: events.Topic(name, events.KindRemotelyUpdated), Payload: main})
			continue
		}

		// Pending local edits win; flag the divergence instead.
		if !mainMeta.InConflict {
			mainMeta.InConflict = true
			if err := st.UpdateMain(ctx, tx, main); err != nil {
				return err
			}
		}
		stats.Conflicted++
	}
	return nil
}

func applyDeletion[T model.Entity](
	ctx context.Context, tx dbx.DBTX,
	st *store.Store[T], master T, name string,
	stats *MergeStats, pending *[]events.Event,
) error {
	main, err := st.MainByMasterID(ctx, tx, master.MasterMeta().LocalMasterID.Int64)
	if store.IsNotFound(err) {
		if err := st.DeleteMaster(ctx, tx, master.MasterMeta().LocalMasterID.Int64); err != nil {
			return err
		}
		stats.Deleted++
		return nil
	}
	if err != nil {
		return err
	}

	mainMeta := main.SyncMeta()
	if !mainMeta.Synced && !mainMeta.Deleted {
		// Local edits pending against a remotely deleted entity.
		if !mainMeta.InConflict {
			mainMeta.InConflict = true
			if err := st.UpdateMain(ctx, tx, main); err != nil {
				return err
			}
		}
		stats.Conflicted++
		return nil
	}

	if err := st.DeleteBothCopies(ctx, tx, main); err != nil {
		return err
	}
	stats.Deleted++
	*pending = append(*pending, events.Event{Topic: events.Topic(name, events.KindRemotelyDeleted), Payload: main})
	return nil
}

func resolveParent[T model.Entity](ctx context.Context, tx dbx.DBTX, st *store.Store[T], ref *model.ParentRef) (bool, error) {
	if !ref.GlobalID.Valid {
		return false, nil
	}
	parent, err := st.MasterByGlobalID(ctx, tx, ref.GlobalID.String)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ref.MasterID = parent.MasterMeta().LocalMasterID

	main, err := st.MainByMasterID(ctx, tx, ref.MasterID.Int64)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ref.MainID = main.SyncMeta().LocalMainID
	return true, nil
}

func (m *Merger) resolveVehicleParents(ctx context.Context, tx dbx.DBTX, v *model.Vehicle) (bool, error) {
	return resolveParent(ctx, tx, m.stores.Users, &v.User)
}

func (m *Merger) resolveFuelStationParents(ctx context.Context, tx dbx.DBTX, fs *model.FuelStation) (bool, error) {
	return resolveParent(ctx, tx, m.stores.Users, &fs.User)
}

func (m *Merger) resolveFuelPurchaseLogParents(ctx context.Context, tx dbx.DBTX, l *model.FuelPurchaseLog) (bool, error) {
	for _, step := range []func() (bool, error){
		func() (bool, error) { return resolveParent(ctx, tx, m.stores.Users, &l.User) },
		func() (bool, error) { return resolveParent(ctx, tx, m.stores.Vehicles, &l.Vehicle) },
		func() (bool, error) { return resolveParent(ctx, tx, m.stores.FuelStations, &l.FuelStation) },
	} {
		ok, err := step()
		if !ok || err != nil {
			return ok, err
		}
	}
	return true, nil
}

func (m *Merger) resolveEnvironmentLogParents(ctx context.Context, tx dbx.DBTX, l *model.EnvironmentLog) (bool, error) {
	ok, err := resolveParent(ctx, tx, m.stores.Users, &l.User)
	if !ok || err != nil {
		return ok, err
	}
	return resolveParent(ctx, tx, m.stores.Vehicles, &l.Vehicle)
}
