// Package cli is the interactive fueltrack client: a small REPL over the
// coordinator, plus the wiring that builds the whole stack (database, REST
// transport, sync engine) from configuration.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/fueltrack/internal/config"
	"github.com/dmitrijs2005/fueltrack/internal/coordinator"
	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/events"
	"github.com/dmitrijs2005/fueltrack/internal/filex"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/dmitrijs2005/fueltrack/internal/remote/rest"
	"github.com/dmitrijs2005/fueltrack/internal/store"
	"github.com/dmitrijs2005/fueltrack/internal/sync"

	_ "modernc.org/sqlite"
)

type App struct {
	cfg    *config.Config
	log    logging.Logger
	sdb    *sql.DB
	hub    *events.Hub
	coord  *coordinator.Coordinator
	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if _, err := filex.EnsureParentDir(cfg.DatabaseFile); err != nil {
		return nil, err
	}
	if cfg.LogFile != "" {
		if _, err := filex.EnsureParentDir(cfg.LogFile); err != nil {
			return nil, err
		}
	}

	log := logging.New(logging.Config{
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Debug:      cfg.Debug,
	})

	sdb, err := store.Open(ctx, cfg.DatabaseFile)
	if err != nil {
		return nil, err
	}

	db := dbx.NewDB(sdb)
	stores := store.NewStores(log)
	hub := events.NewHub(log)
	tokens := remote.NewTokenHolder(nil, log)
	hc := &http.Client{Timeout: cfg.RequestTimeout}
	base := cfg.ServerEndpointAddr

	remotes := sync.Remotes{
		Users:            rest.NewClient(hc, base, rest.UserCodec(), log),
		Vehicles:         rest.NewClient(hc, base, rest.VehicleCodec(), log),
		FuelStations:     rest.NewClient(hc, base, rest.FuelStationCodec(), log),
		FuelPurchaseLogs: rest.NewClient(hc, base, rest.FuelPurchaseLogCodec(), log),
		EnvironmentLogs:  rest.NewClient(hc, base, rest.EnvironmentLogCodec(), log),
	}
	engine := sync.NewEngine(db, stores, remotes, tokens, hub, log)
	coord := coordinator.New(db, stores, engine, remotes, tokens,
		rest.NewAccounts(hc, base, log), rest.NewChangelogClient(hc, base, log), hub, log)
	coord.SetBackgroundErrorSink(func(err error) {
		log.Error(context.Background(), "background sync failed", "error", err)
	})

	return &App{
		cfg:    cfg,
		log:    log,
		sdb:    sdb,
		hub:    hub,
		coord:  coord,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

func (a *App) Run(ctx context.Context) {
	a.coord.StartBackground(ctx, a.cfg.FlushInterval, nil)
	defer a.Close()
	a.Root(ctx)
}

func (a *App) Close() {
	a.coord.StopBackground()
	a.hub.Close()
	_ = a.sdb.Close()
}

func (a *App) isLoggedIn() bool {
	return a.coord.Tokens().Token() != ""
}
