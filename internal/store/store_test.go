package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var dbSeq atomic.Int64

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:store_tests_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, RunMigrations(context.Background(), db))
	return db
}

func newUser(t *testing.T, ctx context.Context, db *sql.DB, stores *Stores) *model.User {
	t.Helper()
	u := &model.User{Name: "Paul", Email: "paul@example.com"}
	require.NoError(t, stores.Users.InsertMain(ctx, db, u))
	return u
}

func TestStore_InsertAndFetchMain(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)
	require.True(t, u.LocalMainID.Valid, "insert must record the local id")

	got, err := stores.Users.MainByID(ctx, db, u.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, "Paul", got.Name)
	require.Equal(t, "paul@example.com", got.Email)
	require.False(t, got.Synced)
	require.False(t, got.LocalMasterID.Valid, "new row must be master-less")
}

func TestStore_MainByID_NotFound(t *testing.T) {
	db := setupDB(t)
	stores := NewStores(logging.Nop())

	_, err := stores.Users.MainByID(context.Background(), db, 999)
	require.True(t, IsNotFound(err))
}

func TestStore_UpdateMainRoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)
	u.Name = "Paul E."
	u.EditCount = 2
	u.SyncRetryAt = sql.NullTime{Time: time.Now().Add(time.Minute).UTC(), Valid: true}
	require.NoError(t, stores.Users.UpdateMain(ctx, db, u))

	got, err := stores.Users.MainByID(ctx, db, u.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, "Paul E.", got.Name)
	require.Equal(t, uint(2), got.EditCount)
	require.True(t, got.SyncRetryAt.Valid)
}

func TestStore_MasterRelationsRoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := &model.User{Name: "Paul", Email: "paul@example.com"}
	u.GlobalID = model.NullString("usr-1")
	u.Relations = map[string]model.Relation{
		"vehicles": {Name: "vehicles", URI: "/users/usr-1/vehicles", MediaType: "application/json"},
		"self":     {Name: "self", URI: "/users/usr-1", MediaType: "application/json"},
	}
	require.NoError(t, stores.Users.InsertMaster(ctx, db, u))

	got, err := stores.Users.MasterByGlobalID(ctx, db, "usr-1")
	require.NoError(t, err)
	require.Len(t, got.Relations, 2)
	require.Equal(t, "/users/usr-1/vehicles", got.Relations["vehicles"].URI)
}

func TestStore_CascadeDeleteRemovesDescendants(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)

	v := &model.Vehicle{Name: "Civic", User: model.ParentRef{MainID: u.LocalMainID}}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))

	st := &model.FuelStation{Name: "Shell", User: model.ParentRef{MainID: u.LocalMainID}}
	require.NoError(t, stores.FuelStations.InsertMain(ctx, db, st))

	l := &model.FuelPurchaseLog{
		User:        model.ParentRef{MainID: u.LocalMainID},
		Vehicle:     model.ParentRef{MainID: v.LocalMainID},
		FuelStation: model.ParentRef{MainID: st.LocalMainID},
		NumGallons:  10, Octane: 87, GallonPrice: 3.2, PurchasedAt: time.Now().UTC(),
	}
	require.NoError(t, stores.FuelPurchaseLogs.InsertMain(ctx, db, l))

	el := &model.EnvironmentLog{
		User:    model.ParentRef{MainID: u.LocalMainID},
		Vehicle: model.ParentRef{MainID: v.LocalMainID},
		Odometer: 100, LogDate: time.Now().UTC(),
	}
	require.NoError(t, stores.EnvironmentLogs.InsertMain(ctx, db, el))

	require.NoError(t, stores.Users.DeleteMain(ctx, db, u.LocalMainID.Int64))

	for _, table := range []string{"main_vehicle", "main_fuel_station", "main_fuel_purchase_log", "main_environment_log"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		require.Zero(t, n, "expected cascade to empty %s", table)
	}
}

func TestStore_MarkSyncInProgress_Admission(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)

	ok, err := stores.Users.MarkSyncInProgress(ctx, db, u, "tok-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, u.SyncInProgress)

	// Second acquisition must be rejected while the first is in flight.
	u2, err := stores.Users.MainByID(ctx, db, u.LocalMainID.Int64)
	require.NoError(t, err)
	ok, err = stores.Users.MarkSyncInProgress(ctx, db, u2, "tok-2")
	require.NoError(t, err)
	require.False(t, ok, "concurrent flush must not double-acquire")
}

func TestStore_MarkSyncInProgress_RejectsEditingRow(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)
	u.EditInProgress = true
	u.EditActorID = model.NullString(string(model.ActorInteractive))
	require.NoError(t, stores.Users.UpdateMain(ctx, db, u))

	ok, err := stores.Users.MarkSyncInProgress(ctx, db, u, "tok")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_CancelSync_StoresDiagnostics(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)
	ok, err := stores.Users.MarkSyncInProgress(ctx, db, u, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	retryAt := time.Now().Add(30 * time.Second).UTC()
	err = stores.Users.CancelSync(ctx, db, u,
		sql.NullInt64{Int64: 503, Valid: true},
		sql.NullInt64{},
		sql.NullTime{Time: retryAt, Valid: true})
	require.NoError(t, err)

	got, err := stores.Users.MainByID(ctx, db, u.LocalMainID.Int64)
	require.NoError(t, err)
	require.False(t, got.SyncInProgress)
	require.False(t, got.Synced)
	require.Equal(t, int64(503), got.SyncHTTPRespCode.Int64)
	require.True(t, got.SyncRetryAt.Valid)
}

func TestStore_LateCompletionAfterGlobalCancelIsDiscarded(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)
	ok, err := stores.Users.MarkSyncInProgress(ctx, db, u, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	n, err := stores.CancelAllSyncInProgress(ctx, db)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// The network call for "tok" completes afterwards; applying it must fail
	// the token guard.
	err = stores.Users.CancelSync(ctx, db, u, sql.NullInt64{}, sql.NullInt64{}, sql.NullTime{})
	require.ErrorIs(t, err, ErrStaleSyncToken)
}

func TestStore_MarkSyncedNew_LinksMasterAndFlipsSynced(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	v := &model.Vehicle{Name: "Civic"}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	ok, err := stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	v.GlobalID = model.NullString("veh-123")
	v.UpdatedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	require.NoError(t, stores.Vehicles.MarkSyncedNew(ctx, db, v, time.Now().UTC()))

	got, err := stores.Vehicles.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.True(t, got.Synced)
	require.False(t, got.SyncInProgress)
	require.Equal(t, "veh-123", got.GlobalID.String)
	require.True(t, got.LocalMasterID.Valid)

	master, err := stores.Vehicles.MasterByGlobalID(ctx, db, "veh-123")
	require.NoError(t, err)
	require.Equal(t, "Civic", master.Name)
}

func TestStore_MarkSyncedNew_RefusesExistingMaster(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	v := &model.Vehicle{Name: "Civic"}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	ok, err := stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	v.GlobalID = model.NullString("veh-1")
	require.NoError(t, stores.Vehicles.MarkSyncedNew(ctx, db, v, time.Now().UTC()))

	ok, err = stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok2")
	require.NoError(t, err)
	require.False(t, ok, "synced row is not flushable")

	// Force the unsynced state back on and verify the global id cannot be
	// assigned twice.
	v.Synced = false
	require.NoError(t, stores.Vehicles.UpdateMain(ctx, db, v))
	ok, err = stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok3")
	require.NoError(t, err)
	require.True(t, ok)
	err = stores.Vehicles.MarkSyncedNew(ctx, db, v, time.Now().UTC())
	require.Error(t, err, "global id is assigned exactly once")
}

func TestStore_MarkConflicted_ReleasesLocksKeepsFields(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	v := &model.Vehicle{Name: "Civic", DefaultOctane: 87}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	ok, err := stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stores.Vehicles.MarkConflicted(ctx, db, v, sql.NullInt64{Int64: 409, Valid: true}))

	got, err := stores.Vehicles.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.True(t, got.InConflict)
	require.False(t, got.SyncInProgress)
	require.Equal(t, "Civic", got.Name, "conflict must not clobber domain fields")
	require.Equal(t, 87, got.DefaultOctane)
}

func TestStore_ReadyToFlush_HonorsRetryAt(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	now := time.Now().UTC()

	due := &model.Vehicle{Name: "Due"}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, due))

	notDue := &model.Vehicle{Name: "NotDue"}
	notDue.SyncRetryAt = sql.NullTime{Time: now.Add(time.Hour), Valid: true}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, notDue))

	editing := &model.Vehicle{Name: "Editing", SyncMetadata: model.SyncMetadata{EditInProgress: true}}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, editing))

	list, err := stores.Vehicles.ReadyToFlush(ctx, db, now)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Due", list[0].Name)
}

func TestStores_PruneAllSynced_Safety(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	mkVehicle := func(name string, mutate func(*model.Vehicle)) *model.Vehicle {
		v := &model.Vehicle{Name: name}
		require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
		if mutate != nil {
			mutate(v)
			require.NoError(t, stores.Vehicles.UpdateMain(ctx, db, v))
		}
		return v
	}

	// Synced row with a master copy: prunable.
	prunable := mkVehicle("Prunable", nil)
	ok, err := stores.Vehicles.MarkSyncInProgress(ctx, db, prunable, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	prunable.GlobalID = model.NullString("veh-p")
	require.NoError(t, stores.Vehicles.MarkSyncedNew(ctx, db, prunable, time.Now().UTC()))

	mkVehicle("Unsynced", nil)
	mkVehicle("Editing", func(v *model.Vehicle) { v.EditInProgress = true })
	mkVehicle("Syncing", func(v *model.Vehicle) { v.SyncInProgress = true })

	n, err := stores.PruneAllSynced(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	var remaining int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM main_vehicle`).Scan(&remaining))
	require.Equal(t, 3, remaining)
	var masters int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM master_vehicle`).Scan(&masters))
	require.Zero(t, masters, "master copy is pruned together with the main copy")
}

func TestStores_PruneSkipsParentWithPendingChild(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	v := &model.Vehicle{Name: "Parent"}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	ok, err := stores.Vehicles.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	v.GlobalID = model.NullString("veh-parent")
	require.NoError(t, stores.Vehicles.MarkSyncedNew(ctx, db, v, time.Now().UTC()))

	// Pending (unsynced) log referencing the vehicle.
	l := &model.EnvironmentLog{
		Vehicle: model.ParentRef{MainID: v.LocalMainID},
		Odometer: 5, LogDate: time.Now().UTC(),
	}
	require.NoError(t, stores.EnvironmentLogs.InsertMain(ctx, db, l))

	n, err := stores.PruneAllSynced(ctx, db)
	require.NoError(t, err)
	require.Zero(t, n, "parent with pending child must survive pruning")
}

func TestStore_ListMains_Paging(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	for i := 0; i < 5; i++ {
		v := &model.Vehicle{Name: fmt.Sprintf("v%d", i)}
		require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	}

	page, err := stores.Vehicles.ListMains(ctx, db, ListQuery{OrderBy: "id DESC", PageSize: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "v2", page[0].Name)
	require.Equal(t, "v1", page[1].Name)
}

func TestStore_Counts(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	stores := NewStores(logging.Nop())

	u := newUser(t, ctx, db, stores)

	for i := 0; i < 3; i++ {
		v := &model.Vehicle{Name: fmt.Sprintf("v%d", i), User: model.ParentRef{MainID: u.LocalMainID}}
		require.NoError(t, stores.Vehicles.InsertMain(ctx, db, v))
	}
	editing := &model.Vehicle{Name: "editing", User: model.ParentRef{MainID: u.LocalMainID},
		SyncMetadata: model.SyncMetadata{EditInProgress: true}}
	require.NoError(t, stores.Vehicles.InsertMain(ctx, db, editing))

	unsynced, err := stores.Vehicles.CountUnsynced(ctx, db, "user_main_id = ?", u.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, 4, unsynced)

	needed, err := stores.Vehicles.CountSyncNeeded(ctx, db, "user_main_id = ?", u.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, 3, needed, "mid-edit rows are unsynced but not flushable")
}
