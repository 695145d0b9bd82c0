package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/stretchr/testify/require"
)

func TestScheduler_SyncNowFlushesAndPrunes(t *testing.T) {
	r := newTestRig(t)
	ctx := context.Background()

	r.vehicles.script(successNew[*model.Vehicle]("/vehicles/veh-1", time.Now().UTC()), nil)
	v := r.insertVehicle(t, "Civic")

	var mu sync.Mutex
	var reports []Progress
	progressed := make(chan struct{}, 8)
	s := NewScheduler(r.engine, time.Hour, func(p Progress) {
		mu.Lock()
		reports = append(reports, p)
		mu.Unlock()
		progressed <- struct{}{}
	}, nil, logging.Nop())
	require.Equal(t, model.ActorBackground, s.Actor())

	s.Start(ctx)
	defer s.Stop()
	s.SyncNow()

	select {
	case <-progressed:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler never reported progress")
	}

	mu.Lock()
	p := reports[0]
	mu.Unlock()
	require.Equal(t, 1, p.Total)
	require.Equal(t, 1, p.Flushed)

	got := r.reloadVehicle(t, v.LocalMainID.Int64)
	require.True(t, got.Synced)
}

func TestScheduler_StopIsIdempotentAndReleasesLocks(t *testing.T) {
	r := newTestRig(t)
	s := NewScheduler(r.engine, time.Hour, nil, nil, logging.Nop())

	s.Start(context.Background())
	s.Stop()
	s.Stop()
	s.Start(context.Background())
	s.Stop()
}

func TestScheduler_ErrorsGoToSink(t *testing.T) {
	r := newTestRig(t)

	// Closing the database underneath the engine makes FlushAll fail
	// system-faulted; the error must land in the sink, not panic the loop.
	require.NoError(t, r.db.Raw().Close())

	errs := make(chan error, 1)
	s := NewScheduler(r.engine, time.Hour, nil, func(err error) {
		select {
		case errs <- err:
		default:
		}
	}, logging.Nop())

	s.Start(context.Background())
	defer s.Stop()
	s.SyncNow()

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("expected a background error report")
	}
}
