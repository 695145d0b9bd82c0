package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (a *App) getStatus() string {
	s := "local"
	if a.isLoggedIn() {
		s = "online"
	}
	if n, err := a.coord.UnsyncedCount(context.Background()); err == nil && n > 0 {
		s = fmt.Sprintf("%s, %d unsynced", s, n)
	}
	return fmt.Sprintf("(%s)", s)
}

func (a *App) Root(ctx context.Context) {

	fmt.Fprintln(a.out, "Welcome to fueltrack CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Fprintf(a.out, "ft %s> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Fprintln(a.out, "Account:  setup, login, logout, reset")
			fmt.Fprintln(a.out, "Vehicles: vehicles, addvehicle, editvehicle <id>, delvehicle <id>, reload <id>")
			fmt.Fprintln(a.out, "Stations: stations, addstation")
			fmt.Fprintln(a.out, "Logs:     fuels, addfuel, envs, addenv")
			fmt.Fprintln(a.out, "Sync:     sync, status, prune, exit")

		case "setup":
			a.setup(ctx)
		case "login":
			a.login(ctx)
		case "logout":
			a.logout(ctx)
		case "reset":
			a.reset(ctx)

		case "vehicles":
			a.listVehicles(ctx)
		case "addvehicle":
			a.addVehicle(ctx)
		case "editvehicle":
			if id, ok := argID(a, args); ok {
				a.editVehicle(ctx, id)
			}
		case "delvehicle":
			if id, ok := argID(a, args); ok {
				a.deleteVehicle(ctx, id)
			}
		case "reload":
			if id, ok := argID(a, args); ok {
				a.reloadVehicle(ctx, id)
			}

		case "stations":
			a.listStations(ctx)
		case "addstation":
			a.addStation(ctx)

		case "fuels":
			a.listFuelLogs(ctx)
		case "addfuel":
			a.addFuelLog(ctx)
		case "envs":
			a.listEnvLogs(ctx)
		case "addenv":
			a.addEnvLog(ctx)

		case "sync":
			a.syncNow(ctx)
		case "status":
			a.status(ctx)
		case "prune":
			a.prune(ctx)

		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return

		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
}

func argID(a *App, args []string) (int64, bool) {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage: <command> <id>")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintln(a.out, "Not a numeric id:", args[0])
		return 0, false
	}
	return id, true
}
