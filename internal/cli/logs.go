package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/editlock"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

func (a *App) listFuelLogs(ctx context.Context) {
	list, err := a.coord.FuelPurchaseLogs.List(ctx, store.ListQuery{OrderBy: "id DESC", PageSize: 25})
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No fuel purchases yet. Use 'addfuel'.")
		return
	}
	for _, l := range list {
		fmt.Fprintf(a.out, "%4d  %s  %.3f gal @ $%.3f (octane %d) %s\n",
			l.LocalMainID.Int64, l.PurchasedAt.Format("2006-01-02"),
			l.NumGallons, l.GallonPrice, l.Octane, rowFlags(l))
	}
}

func (a *App) addFuelLog(ctx context.Context) {
	u, ok := a.deviceUserOrPrompt(ctx)
	if !ok {
		return
	}
	v, ok := a.pickVehicle(ctx)
	if !ok {
		return
	}
	s, ok := a.pickStation(ctx)
	if !ok {
		return
	}

	l := &model.FuelPurchaseLog{}
	l.User.MainID = u.LocalMainID
	l.User.MasterID = u.LocalMasterID
	l.User.GlobalID = u.GlobalID
	l.Vehicle.MainID = v.LocalMainID
	l.Vehicle.MasterID = v.LocalMasterID
	l.Vehicle.GlobalID = v.GlobalID
	l.FuelStation.MainID = s.LocalMainID
	l.FuelStation.MasterID = s.LocalMasterID
	l.FuelStation.GlobalID = s.GlobalID

	out, err := a.coord.FuelPurchaseLogs.BeginEdit(ctx, l, model.ActorInteractive)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if out != editlock.Ok {
		fmt.Fprintf(a.out, "Cannot edit: %s\n", out)
		return
	}

	if date, err := GetDate(a.reader, "Purchase date", time.Now(), a.out); err == nil {
		l.PurchasedAt = date
	}
	if gallons, err := GetFloat(a.reader, "Gallons", 0, a.out); err == nil {
		l.NumGallons = gallons
	}
	if price, err := GetFloat(a.reader, "Price per gallon", 0, a.out); err == nil {
		l.GallonPrice = price
	}
	if octane, err := GetInt(a.reader, fmt.Sprintf("Octane [%d]", v.DefaultOctane), v.DefaultOctane, a.out); err == nil {
		l.Octane = octane
	}
	if wash, err := GetSimpleText(a.reader, "Got a car wash? (y/N)", a.out); err == nil && wash == "y" {
		l.GotCarWash = true
		if disc, err := GetFloat(a.reader, "Car wash discount per gallon", 0, a.out); err == nil {
			l.CarWashPerGallonDiscount = disc
		}
	}

	mask, err := a.coord.FuelPurchaseLogs.Save(ctx, l)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		_, _ = a.coord.FuelPurchaseLogs.CancelEdit(ctx, l)
		return
	}
	if mask != 0 {
		a.printFuelLogIssues(model.SaveFuelPurchaseLogErr(mask))
		_, _ = a.coord.FuelPurchaseLogs.CancelEdit(ctx, l)
		return
	}

	syncOut, err := a.coord.FuelPurchaseLogs.MarkDoneEditingAndSync(ctx, l)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Saved (%s).\n", syncOut)
}

func (a *App) printFuelLogIssues(mask model.SaveFuelPurchaseLogErr) {
	if mask&model.SaveFuelPurchaseLogPurchaseDateNotProvided != 0 {
		fmt.Fprintln(a.out, "- purchase date is required")
	}
	if mask&model.SaveFuelPurchaseLogNumGallonsNotProvided != 0 {
		fmt.Fprintln(a.out, "- gallons must be positive")
	}
	if mask&model.SaveFuelPurchaseLogOctaneNotProvided != 0 {
		fmt.Fprintln(a.out, "- octane must be positive")
	}
	if mask&model.SaveFuelPurchaseLogGallonPriceNotProvided != 0 {
		fmt.Fprintln(a.out, "- price per gallon must be positive")
	}
	if mask&model.SaveFuelPurchaseLogVehicleNotProvided != 0 {
		fmt.Fprintln(a.out, "- vehicle is required")
	}
	if mask&model.SaveFuelPurchaseLogFuelStationNotProvided != 0 {
		fmt.Fprintln(a.out, "- fuel station is required")
	}
}

func (a *App) listEnvLogs(ctx context.Context) {
	list, err := a.coord.EnvironmentLogs.List(ctx, store.ListQuery{OrderBy: "id DESC", PageSize: 25})
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No environment logs yet. Use 'addenv'.")
		return
	}
	for _, l := range list {
		mpg := "-"
		if l.ReportedAvgMPG.Valid {
			mpg = fmt.Sprintf("%.1f mpg", l.ReportedAvgMPG.Float64)
		}
		fmt.Fprintf(a.out, "%4d  %s  odometer %.0f, %s %s\n",
			l.LocalMainID.Int64, l.LogDate.Format("2006-01-02"), l.Odometer, mpg, rowFlags(l))
	}
}

func (a *App) addEnvLog(ctx context.Context) {
	u, ok := a.deviceUserOrPrompt(ctx)
	if !ok {
		return
	}
	v, ok := a.pickVehicle(ctx)
	if !ok {
		return
	}

	l := &model.EnvironmentLog{}
	l.User.MainID = u.LocalMainID
	l.User.MasterID = u.LocalMasterID
	l.User.GlobalID = u.GlobalID
	l.Vehicle.MainID = v.LocalMainID
	l.Vehicle.MasterID = v.LocalMasterID
	l.Vehicle.GlobalID = v.GlobalID

	out, err := a.coord.EnvironmentLogs.BeginEdit(ctx, l, model.ActorInteractive)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if out != editlock.Ok {
		fmt.Fprintf(a.out, "Cannot edit: %s\n", out)
		return
	}

	if date, err := GetDate(a.reader, "Log date", time.Now(), a.out); err == nil {
		l.LogDate = date
	}
	if odo, err := GetFloat(a.reader, "Odometer", 0, a.out); err == nil {
		l.Odometer = odo
	}
	l.ReportedAvgMPG = optionalFloat(a, "Average MPG (optional)")
	l.ReportedAvgMPH = optionalFloat(a, "Average MPH (optional)")
	l.ReportedOutsideTemp = optionalFloat(a, "Outside temperature (optional)")
	l.ReportedDTE = optionalFloat(a, "Distance to empty (optional)")

	mask, err := a.coord.EnvironmentLogs.Save(ctx, l)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		_, _ = a.coord.EnvironmentLogs.CancelEdit(ctx, l)
		return
	}
	if mask != 0 {
		if mask&uint64(model.SaveEnvironmentLogDateNotProvided) != 0 {
			fmt.Fprintln(a.out, "- log date is required")
		}
		if mask&uint64(model.SaveEnvironmentLogOdometerNotProvided) != 0 {
			fmt.Fprintln(a.out, "- odometer must be positive")
		}
		if mask&uint64(model.SaveEnvironmentLogVehicleNotProvided) != 0 {
			fmt.Fprintln(a.out, "- vehicle is required")
		}
		_, _ = a.coord.EnvironmentLogs.CancelEdit(ctx, l)
		return
	}

	syncOut, err := a.coord.EnvironmentLogs.MarkDoneEditingAndSync(ctx, l)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Saved (%s).\n", syncOut)
}

func optionalFloat(a *App, prompt string) sql.NullFloat64 {
	s, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil || s == "" {
		return sql.NullFloat64{}
	}
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		fmt.Fprintln(a.out, "Not a number, skipping:", s)
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func (a *App) pickVehicle(ctx context.Context) (*model.Vehicle, bool) {
	a.listVehicles(ctx)
	id, err := GetInt(a.reader, "Vehicle id", 0, a.out)
	if err != nil || id == 0 {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil, false
	}
	v, err := a.coord.Vehicles.ByID(ctx, int64(id))
	if err != nil {
		fmt.Fprintln(a.out, "No such vehicle:", id)
		return nil, false
	}
	return v, true
}

func (a *App) pickStation(ctx context.Context) (*model.FuelStation, bool) {
	a.listStations(ctx)
	id, err := GetInt(a.reader, "Station id", 0, a.out)
	if err != nil || id == 0 {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil, false
	}
	s, err := a.coord.FuelStations.ByID(ctx, int64(id))
	if err != nil {
		fmt.Fprintln(a.out, "No such station:", id)
		return nil, false
	}
	return s, true
}
