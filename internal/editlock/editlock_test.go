package editlock

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/store"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var dbSeq atomic.Int64

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:editlock_tests_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)", dbSeq.Add(1))
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.RunMigrations(context.Background(), db))
	return db
}

func vehicleManager(t *testing.T) (*Manager[*model.Vehicle], *store.Store[*model.Vehicle]) {
	t.Helper()
	st := store.New(store.VehicleDescriptor(), logging.Nop())
	return New(st, func(dst, src *model.Vehicle) { dst.Overwrite(src) }, logging.Nop()), st
}

func TestBegin_InsertsPlaceholderForNewEntity(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)
	require.True(t, v.LocalMainID.Valid, "placeholder row must exist")
	require.Equal(t, uint(1), v.EditCount)

	got, err := st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.True(t, got.EditInProgress)
	require.Equal(t, string(model.ActorInteractive), got.EditActorID.String)
}

func TestBegin_RefusesOtherActor(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, _ := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)

	out, err = mgr.Begin(ctx, db, v, model.ActorBackground)
	require.NoError(t, err)
	require.Equal(t, HeldByOtherActor, out)
	require.Equal(t, uint(1), v.EditCount, "refused begin must not bump the count")
	require.Equal(t, string(model.ActorInteractive), v.EditActorID.String,
		"the refused caller can read who holds the lock")
}

func TestBegin_ClearsSyncedWhileSessionOpen(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	require.NoError(t, st.InsertMain(ctx, db, v))
	ok, err := st.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	v.GlobalID = model.NullString("veh-1")
	require.NoError(t, st.MarkSyncedNew(ctx, db, v, time.Now().UTC()))

	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)

	got, err := st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.True(t, got.EditInProgress)
	require.False(t, got.Synced, "an open session makes the row provisional")

	// Cancelling brings the synced flag back with the master's content.
	_, err = mgr.Cancel(ctx, db, v)
	require.NoError(t, err)
	got, err = st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.True(t, got.Synced)
}

func TestBegin_StateOutcomes(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, _ := vehicleManager(t)

	tests := []struct {
		name string
		meta model.SyncMetadata
		want Outcome
	}{
		{"syncing", model.SyncMetadata{SyncInProgress: true}, AlreadyBeingSynced},
		{"deleted", model.SyncMetadata{Deleted: true}, AlreadyDeleted},
		{"conflicted", model.SyncMetadata{InConflict: true}, InConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &model.Vehicle{Name: "Civic", SyncMetadata: tt.meta}
			out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
			require.NoError(t, err)
			require.Equal(t, tt.want, out)
		})
	}
}

func TestBegin_NestsForSameActor(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	for i := 1; i <= 3; i++ {
		out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
		require.NoError(t, err)
		require.Equal(t, Ok, out)
		require.Equal(t, uint(i), v.EditCount)
	}

	// Unwinding two levels keeps the lock.
	for i := 2; i >= 1; i-- {
		depth, err := mgr.End(ctx, db, v)
		require.NoError(t, err)
		require.Equal(t, uint(i), depth)
		require.True(t, v.EditInProgress)
	}

	depth, err := mgr.End(ctx, db, v)
	require.NoError(t, err)
	require.Zero(t, depth)
	require.False(t, v.EditInProgress)

	got, err := st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.False(t, got.EditInProgress)
	require.False(t, got.Synced, "finished edit leaves the row flushable")
}

func TestSave_RequiresOpenSession(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	require.NoError(t, st.InsertMain(ctx, db, v))
	require.Error(t, mgr.Save(ctx, db, v))
}

func TestSave_ClearsStaleDiagnostics(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	v.SyncHTTPRespCode = sql.NullInt64{Int64: 503, Valid: true}
	v.SyncRetryAt = sql.NullTime{Time: time.Now().Add(time.Hour).UTC(), Valid: true}
	require.NoError(t, st.InsertMain(ctx, db, v))

	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)

	v.Name = "Civic Si"
	require.NoError(t, mgr.Save(ctx, db, v))

	got, err := st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, "Civic Si", got.Name)
	require.False(t, got.SyncHTTPRespCode.Valid)
	require.False(t, got.SyncRetryAt.Valid)
	require.True(t, got.EditInProgress, "save keeps the session open")
}

func TestCancel_RemovesPlaceholderOfNeverSyncedEntity(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)
	id := v.LocalMainID.Int64

	depth, err := mgr.Cancel(ctx, db, v)
	require.NoError(t, err)
	require.Zero(t, depth)
	require.False(t, v.LocalMainID.Valid, "cancelled new entity loses its row")

	_, err = st.MainByID(ctx, db, id)
	require.True(t, store.IsNotFound(err))
}

func TestCancel_RestoresWorkingCopyFromMaster(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, st := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic", DefaultOctane: 87}
	require.NoError(t, st.InsertMain(ctx, db, v))
	ok, err := st.MarkSyncInProgress(ctx, db, v, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	v.GlobalID = model.NullString("veh-1")
	require.NoError(t, st.MarkSyncedNew(ctx, db, v, time.Now().UTC()))

	out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
	require.NoError(t, err)
	require.Equal(t, Ok, out)
	v.Name = "Renamed"
	v.DefaultOctane = 93
	require.NoError(t, mgr.Save(ctx, db, v))

	depth, err := mgr.Cancel(ctx, db, v)
	require.NoError(t, err)
	require.Zero(t, depth)

	got, err := st.MainByID(ctx, db, v.LocalMainID.Int64)
	require.NoError(t, err)
	require.Equal(t, "Civic", got.Name)
	require.Equal(t, 87, got.DefaultOctane)
	require.True(t, got.Synced, "restored copy matches its master again")
	require.False(t, got.EditInProgress)
}

func TestCancel_InnerLevelKeepsLock(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()
	mgr, _ := vehicleManager(t)

	v := &model.Vehicle{Name: "Civic"}
	for i := 0; i < 2; i++ {
		out, err := mgr.Begin(ctx, db, v, model.ActorInteractive)
		require.NoError(t, err)
		require.Equal(t, Ok, out)
	}

	depth, err := mgr.Cancel(ctx, db, v)
	require.NoError(t, err)
	require.Equal(t, uint(1), depth)
	require.True(t, v.EditInProgress)
	require.True(t, v.LocalMainID.Valid)
}
