package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/editlock"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

func (a *App) listStations(ctx context.Context) {
	list, err := a.coord.FuelStations.List(ctx, store.ListQuery{})
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No fuel stations yet. Use 'addstation'.")
		return
	}
	for _, s := range list {
		addr := s.City
		if s.Street != "" {
			addr = s.Street + ", " + s.City
		}
		fmt.Fprintf(a.out, "%4d  %-20s %s %s\n", s.LocalMainID.Int64, s.Name, addr, rowFlags(s))
	}
}

func (a *App) addStation(ctx context.Context) {
	u, ok := a.deviceUserOrPrompt(ctx)
	if !ok {
		return
	}
	s := &model.FuelStation{}
	s.User.MainID = u.LocalMainID
	s.User.MasterID = u.LocalMasterID
	s.User.GlobalID = u.GlobalID

	out, err := a.coord.FuelStations.BeginEdit(ctx, s, model.ActorInteractive)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if out != editlock.Ok {
		fmt.Fprintf(a.out, "Cannot edit: %s\n", out)
		return
	}

	if name, err := GetSimpleText(a.reader, "Station name", a.out); err == nil {
		s.Name = name
	}
	if street, err := GetSimpleText(a.reader, "Street (optional)", a.out); err == nil {
		s.Street = street
	}
	if city, err := GetSimpleText(a.reader, "City (optional)", a.out); err == nil {
		s.City = city
	}
	if state, err := GetSimpleText(a.reader, "State (optional)", a.out); err == nil {
		s.State = state
	}
	if zip, err := GetSimpleText(a.reader, "Zip (optional)", a.out); err == nil {
		s.Zip = zip
	}

	mask, err := a.coord.FuelStations.Save(ctx, s)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		_, _ = a.coord.FuelStations.CancelEdit(ctx, s)
		return
	}
	if mask != 0 {
		fmt.Fprintln(a.out, "- name is required")
		_, _ = a.coord.FuelStations.CancelEdit(ctx, s)
		return
	}

	syncOut, err := a.coord.FuelStations.MarkDoneEditingAndSync(ctx, s)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Saved (%s).\n", syncOut)
}
