package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/common"
)

// syncNow pushes local changes and pulls the remote changelog in one go.
func (a *App) syncNow(ctx context.Context) {
	p, err := a.coord.FlushAll(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Sync failed:", err)
		return
	}
	fmt.Fprintf(a.out, "Pushed: %d flushed, %d failed, %d skipped (of %d)\n",
		p.Flushed, p.Failed, p.Skipped, p.Total)
	if p.AuthRequired {
		fmt.Fprintln(a.out, "The server requires a fresh login.")
		return
	}
	if !a.isLoggedIn() {
		return
	}
	a.resync(ctx)
}

func (a *App) resync(ctx context.Context) {
	stats, err := a.coord.Resynchronize(ctx)
	switch {
	case errors.Is(err, common.ErrorNoMaster):
		return // local-only device, nothing to pull
	case errors.Is(err, common.ErrorUnauthorized):
		fmt.Fprintln(a.out, "The server requires a fresh login.")
		return
	case err != nil:
		fmt.Fprintln(a.out, "Pull failed:", err)
		return
	}
	if stats.Added+stats.Updated+stats.Deleted+stats.Conflicted > 0 {
		fmt.Fprintf(a.out, "Pulled: %d added, %d updated, %d deleted, %d conflicted\n",
			stats.Added, stats.Updated, stats.Deleted, stats.Conflicted)
	}
}

func (a *App) status(ctx context.Context) {
	if u, err := a.coord.DeviceUser(ctx); err == nil {
		linked := "local-only"
		if u.GlobalID.Valid {
			linked = "linked to " + u.GlobalID.String
		}
		fmt.Fprintf(a.out, "User:     %s <%s> (%s)\n", u.Name, u.Email, linked)
	} else {
		fmt.Fprintln(a.out, "User:     not set up")
	}

	session := "logged out"
	if a.isLoggedIn() {
		session = "logged in"
	}
	fmt.Fprintln(a.out, "Session: ", session)

	n, err := a.coord.UnsyncedCount(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Unsynced: %d entities\n", n)
}

func (a *App) prune(ctx context.Context) {
	n, err := a.coord.PruneSynced(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Pruned %d synced rows.\n", n)
}
