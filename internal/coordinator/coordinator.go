// Package coordinator is the application-facing facade of the sync core:
// it composes the serialized writer, the dual-copy stores, the edit-lock
// protocol and the sync engine into one surface the UI talks to, plus the
// account operations (login, logout, unlink) that change what "remote"
// means for the whole replica.
package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/store"
	"github.com/dmitrijs2005/fueltrack/internal/sync"
)

// Coordinator wires the per-entity APIs to the shared collaborators. All
// mutations run through the serialized writer; remote calls never hold a
// write transaction open.
type Coordinator struct {
	db        *dbx.DB
	stores    *store.Stores
	engine    *sync.Engine
	hub       *events.Hub
	tokens    *remote.TokenHolder
	accounts  remote.Accounts
	changelog remote.ChangelogSource
	log       logging.Logger
	now       func() time.Time

	Users            *EntityAPI[*model.User]
	Vehicles         *EntityAPI[*model.Vehicle]
	FuelStations     *EntityAPI[*model.FuelStation]
	FuelPurchaseLogs *EntityAPI[*model.FuelPurchaseLog]
	EnvironmentLogs  *EntityAPI[*model.EnvironmentLog]

	mu             stdsync.Mutex
	changelogSince time.Time
	sched          *sync.Scheduler

	onLocalError      func(error)
	onBackgroundError func(error)
}

func New(db *dbx.DB, stores *store.Stores, engine *sync.Engine, remotes sync.Remotes,
	tokens *remote.TokenHolder, accounts remote.Accounts, changelog remote.ChangelogSource,
	hub *events.Hub, log logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	c := &Coordinator{
		db: db, stores: stores, engine: engine, hub: hub,
		tokens: tokens, accounts: accounts, changelog: changelog,
		log: log, now: time.Now,
	}
	c.Users = newEntityAPI(c, stores.Users, engine.Users(), remotes.Users,
		func(u *model.User) uint64 { return uint64(u.Validate()) },
		func(dst, src *model.User) { dst.Overwrite(src) })
	c.Vehicles = newEntityAPI(c, stores.Vehicles, engine.Vehicles(), remotes.Vehicles,
		func(v *model.Vehicle) uint64 { return uint64(v.Validate()) },
		func(dst, src *model.Vehicle) { dst.Overwrite(src) })
	c.FuelStations = newEntityAPI(c, stores.FuelStations, engine.FuelStations(), remotes.FuelStations,
		func(fs *model.FuelStation) uint64 { return uint64(fs.Validate()) },
		func(dst, src *model.FuelStation) { dst.Overwrite(src) })
	c.FuelPurchaseLogs = newEntityAPI(c, stores.FuelPurchaseLogs, engine.FuelPurchaseLogs(), remotes.FuelPurchaseLogs,
		func(l *model.FuelPurchaseLog) uint64 { return uint64(l.Validate()) },
		func(dst, src *model.FuelPurchaseLog) { dst.Overwrite(src) })
	c.EnvironmentLogs = newEntityAPI(c, stores.EnvironmentLogs, engine.EnvironmentLogs(), remotes.EnvironmentLogs,
		func(l *model.EnvironmentLog) uint64 { return uint64(l.Validate()) },
		func(dst, src *model.EnvironmentLog) { dst.Overwrite(src) })
	return c
}

// SetLocalErrorSink installs the handler for system-faulted errors raised
// by interactive operations. Without a sink errors are only logged (they
// are still returned to the caller either way).
func (c *Coordinator) SetLocalErrorSink(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLocalError = fn
}

// SetBackgroundErrorSink installs the handler the background scheduler
// reports system faults to. Must be set before StartBackground.
func (c *Coordinator) SetBackgroundErrorSink(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onBackgroundError = fn
}

func (c *Coordinator) fail(ctx context.Context, err error) error {
	c.log.Error(ctx, "operation failed", "error", err)
	c.mu.Lock()
	sink := c.onLocalError
	c.mu.Unlock()
	if sink != nil {
		sink(err)
	}
	return err
}

// Tokens exposes the auth-token holder (expiry inspection, persistence).
func (c *Coordinator) Tokens() *remote.TokenHolder { return c.tokens }

// Hub exposes the notification hub for UI subscriptions.
func (c *Coordinator) Hub() *events.Hub { return c.hub }

// DeviceUser returns the device's local user row, common.ErrorNotFound
// when the device has never been set up.
func (c *Coordinator) DeviceUser(ctx context.Context) (*model.User, error) {
	var u *model.User
	err := c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		list, err := c.stores.Users.ListMains(ctx, q, store.ListQuery{PageSize: 1})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return common.ErrorNotFound
		}
		u = list[0]
		return nil
	})
	return u, err
}

// NewLocalUser creates the device's local-only user. A non-zero mask means
// the user was rejected user-faulted and nothing was written.
func (c *Coordinator) NewLocalUser(ctx context.Context, u *model.User) (model.SaveUserErr, error) {
	if mask := u.Validate(); mask != 0 {
		return mask, nil
	}
	err := c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return c.stores.Users.InsertMain(ctx, tx, u)
	})
	if err != nil {
		return 0, c.fail(ctx, err)
	}
	c.hub.Publish(ctx, events.Topic("user", events.KindLocallyAdded), u)
	return 0, nil
}

// Login authenticates against the remote store and links the device's
// local user to the returned account: the account's user resource becomes
// the master copy, and the working copy is reset from it.
func (c *Coordinator) Login(ctx context.Context, email, password string) (remote.Outcome, error) {
	res := c.accounts.Login(ctx, email, password)
	c.tokens.Absorb(res.AuthToken)
	if res.Outcome != remote.OutcomeSuccess {
		if res.Err != nil {
			c.log.Warn(ctx, "login failed", "outcome", res.Outcome.String(), "error", res.Err)
		}
		return res.Outcome, nil
	}
	if res.User == nil {
		return res.Outcome, c.fail(ctx, fmt.Errorf("login: remote returned no user resource"))
	}
	if err := c.linkAccount(ctx, res.User); err != nil {
		return res.Outcome, c.fail(ctx, err)
	}
	return res.Outcome, nil
}

func (c *Coordinator) linkAccount(ctx context.Context, ru *model.User) error {
	if !ru.GlobalID.Valid {
		return fmt.Errorf("login: account user has no global id")
	}
	var linked *model.User
	var existed bool

	err := c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		master, err := c.stores.Users.MasterByGlobalID(ctx, tx, ru.GlobalID.String)
		switch {
		case err == nil:
			ru.LocalMasterID = master.LocalMasterID
			if err := c.stores.Users.UpdateMaster(ctx, tx, ru); err != nil {
				return err
			}
		case store.IsNotFound(err):
			if err := c.stores.Users.InsertMaster(ctx, tx, ru); err != nil {
				return err
			}
		default:
			return err
		}

		list, err := c.stores.Users.ListMains(ctx, tx, store.ListQuery{PageSize: 1})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			ru.Synced = true
			ru.DateCopiedFromMaster = sql.NullTime{Time: c.now(), Valid: true}
			if err := c.stores.Users.InsertMain(ctx, tx, ru); err != nil {
				return err
			}
			linked = ru
			return c.stores.AttachUserLinks(ctx, tx, ru)
		}

		local := list[0]
		existed = true
		local.Overwrite(ru)
		local.LocalMasterID = ru.LocalMasterID
		meta := local.SyncMeta()
		meta.Synced = true
		meta.InConflict = false
		meta.Deleted = false
		meta.ClearSyncDiagnostics()
		meta.DateCopiedFromMaster = sql.NullTime{Time: c.now(), Valid: true}
		if err := c.stores.Users.UpdateMain(ctx, tx, local); err != nil {
			return err
		}
		linked = local
		return c.stores.AttachUserLinks(ctx, tx, local)
	})
	if err != nil {
		return err
	}

	kind := events.KindRemotelyAdded
	if existed {
		kind = events.KindRemotelyUpdated
	}
	c.hub.Publish(ctx, events.Topic("user", kind), linked)
	return nil
}

// LightLogin refreshes the session token without re-downloading the
// account.
func (c *Coordinator) LightLogin(ctx context.Context, email, password string) (remote.Outcome, error) {
	res := c.accounts.LightLogin(ctx, email, password)
	c.tokens.Absorb(res.AuthToken)
	return res.Outcome, nil
}

// Logout invalidates the session remotely and drops the local token. The
// replica stays linked to the account; use ResetAsLocalUser to unlink.
func (c *Coordinator) Logout(ctx context.Context) (remote.Outcome, error) {
	res := c.accounts.Logout(ctx, c.tokens.Token())
	c.tokens.Clear()
	return res.Outcome, nil
}

// ResetAsLocalUser unlinks the replica from the remote account: master
// copies are dropped, working copies revert to never-synced with their
// domain data intact, the session token and changelog cursor are cleared.
func (c *Coordinator) ResetAsLocalUser(ctx context.Context) error {
	err := c.db.Write(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return c.stores.DetachAllFromRemote(ctx, tx)
	})
	if err != nil {
		return c.fail(ctx, err)
	}
	c.tokens.Clear()
	c.mu.Lock()
	c.changelogSince = time.Time{}
	c.mu.Unlock()
	c.log.Info(ctx, "replica reset to local-only state")
	return nil
}

// Resynchronize pulls the user's changelog since the last application and
// merges it into the local store. Returns common.ErrorNoMaster when the
// device user is not linked to a remote account, common.ErrorUnauthorized
// when the session was rejected.
func (c *Coordinator) Resynchronize(ctx context.Context) (sync.MergeStats, error) {
	var stats sync.MergeStats

	u, err := c.DeviceUser(ctx)
	if err != nil {
		return stats, err
	}
	if !u.GlobalID.Valid {
		return stats, common.ErrorNoMaster
	}

	c.mu.Lock()
	since := c.changelogSince
	c.mu.Unlock()

	res := c.changelog.FetchChangelog(ctx, c.tokens.Token(), u.GlobalID.String, since)
	c.tokens.Absorb(res.AuthToken)

	switch res.Outcome {
	case remote.OutcomeSuccess:
		stats, err = c.engine.Merger().Apply(ctx, res.Changelog)
		if err != nil {
			return stats, c.fail(ctx, err)
		}
		if !res.Changelog.LastModified.IsZero() {
			c.mu.Lock()
			c.changelogSince = res.Changelog.LastModified
			c.mu.Unlock()
		}
		return stats, nil

	case remote.OutcomeNotModified:
		return stats, nil

	case remote.OutcomeAuthRequired:
		c.hub.Publish(ctx, events.TopicAuthRequired, nil)
		return stats, common.ErrorUnauthorized

	default:
		if res.Err != nil {
			return stats, fmt.Errorf("failed to fetch changelog: %w", res.Err)
		}
		return stats, fmt.Errorf("failed to fetch changelog: %s", res.Outcome)
	}
}

// FlushAll reconciles every flush-ready row, parent types first.
func (c *Coordinator) FlushAll(ctx context.Context) (sync.Progress, error) {
	p, err := c.engine.FlushAll(ctx)
	if err != nil {
		return p, c.fail(ctx, err)
	}
	return p, nil
}

// PruneSynced removes fully synced rows of the high-volume entity types.
func (c *Coordinator) PruneSynced(ctx context.Context) (int, error) {
	n, err := c.engine.Prune(ctx)
	if err != nil {
		return n, c.fail(ctx, err)
	}
	return n, nil
}

// GlobalCancelSync releases every in-flight sync lock; late network
// completions are discarded by their token guard.
func (c *Coordinator) GlobalCancelSync(ctx context.Context) (int64, error) {
	return c.engine.GlobalCancelSync(ctx)
}

// UnsyncedCount totals unsynced rows across all entity types.
func (c *Coordinator) UnsyncedCount(ctx context.Context) (int, error) {
	var total int
	err := c.db.Read(ctx, func(ctx context.Context, q dbx.DBTX) error {
		for _, count := range []func(context.Context, dbx.DBTX, string, ...any) (int, error){
			c.stores.Users.CountUnsynced,
			c.stores.Vehicles.CountUnsynced,
			c.stores.FuelStations.CountUnsynced,
			c.stores.FuelPurchaseLogs.CountUnsynced,
			c.stores.EnvironmentLogs.CountUnsynced,
		} {
			n, err := count(ctx, q, "")
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}

// HasUnsyncedEntities reports whether any working copy differs from its
// master.
func (c *Coordinator) HasUnsyncedEntities(ctx context.Context) (bool, error) {
	n, err := c.UnsyncedCount(ctx)
	return n > 0, err
}

// StartBackground launches the periodic background flush at the given
// interval. Idempotent while running.
func (c *Coordinator) StartBackground(ctx context.Context, interval time.Duration, onProgress func(sync.Progress)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched != nil {
		return
	}
	c.sched = sync.NewScheduler(c.engine, interval, onProgress, c.onBackgroundError, c.log)
	c.sched.Start(ctx)
}

// StopBackground stops the scheduler and releases any sync locks it held.
func (c *Coordinator) StopBackground() {
	c.mu.Lock()
	s := c.sched
	c.sched = nil
	c.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

// SyncNow asks the running background scheduler for an immediate pass.
func (c *Coordinator) SyncNow() {
	c.mu.Lock()
	s := c.sched
	c.mu.Unlock()
	if s != nil {
		s.SyncNow()
	}
}
