package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/editlock"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/store"
)

func (a *App) listVehicles(ctx context.Context) {
	list, err := a.coord.Vehicles.List(ctx, store.ListQuery{})
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No vehicles yet. Use 'addvehicle'.")
		return
	}
	for _, v := range list {
		fmt.Fprintf(a.out, "%4d  %-20s octane %d, %.1f gal %s\n",
			v.LocalMainID.Int64, v.Name, v.DefaultOctane, v.FuelCapacity, rowFlags(v))
	}
}

// rowFlags renders the sync state suffix shown in listings.
func rowFlags(e model.Entity) string {
	meta := e.SyncMeta()
	switch {
	case meta.InConflict:
		return "[conflict]"
	case meta.Deleted:
		return "[deleting]"
	case meta.EditInProgress:
		return "[editing]"
	case !meta.Synced:
		return "[unsynced]"
	default:
		return ""
	}
}

func (a *App) addVehicle(ctx context.Context) {
	u, ok := a.deviceUserOrPrompt(ctx)
	if !ok {
		return
	}
	v := &model.Vehicle{}
	v.User.MainID = u.LocalMainID
	v.User.MasterID = u.LocalMasterID
	v.User.GlobalID = u.GlobalID
	a.editVehicleFields(ctx, v)
}

func (a *App) editVehicle(ctx context.Context, id int64) {
	v, err := a.coord.Vehicles.ByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			fmt.Fprintln(a.out, "No such vehicle:", id)
		} else {
			fmt.Fprintln(a.out, "error:", err)
		}
		return
	}
	a.editVehicleFields(ctx, v)
}

func (a *App) editVehicleFields(ctx context.Context, v *model.Vehicle) {
	out, err := a.coord.Vehicles.BeginEdit(ctx, v, model.ActorInteractive)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	if out != editlock.Ok {
		fmt.Fprintf(a.out, "Cannot edit: %s\n", out)
		return
	}

	name, err := GetSimpleText(a.reader, fmt.Sprintf("Name [%s]", v.Name), a.out)
	if err == nil && name != "" {
		v.Name = name
	}
	if octane, err := GetInt(a.reader, fmt.Sprintf("Default octane [%d]", v.DefaultOctane), v.DefaultOctane, a.out); err == nil {
		v.DefaultOctane = octane
	}
	if capacity, err := GetFloat(a.reader, fmt.Sprintf("Fuel capacity, gal [%.1f]", v.FuelCapacity), v.FuelCapacity, a.out); err == nil {
		v.FuelCapacity = capacity
	}

	mask, err := a.coord.Vehicles.Save(ctx, v)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		_, _ = a.coord.Vehicles.CancelEdit(ctx, v)
		return
	}
	if mask != 0 {
		if mask&uint64(model.SaveVehicleNameNotProvided) != 0 {
			fmt.Fprintln(a.out, "- name is required")
		}
		if mask&uint64(model.SaveVehicleNameContainsPipe) != 0 {
			fmt.Fprintln(a.out, "- name may not contain '|'")
		}
		_, _ = a.coord.Vehicles.CancelEdit(ctx, v)
		return
	}

	syncOut, err := a.coord.Vehicles.MarkDoneEditingAndSync(ctx, v)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Saved (%s).\n", syncOut)
}

func (a *App) deleteVehicle(ctx context.Context, id int64) {
	v, err := a.coord.Vehicles.ByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			fmt.Fprintln(a.out, "No such vehicle:", id)
		} else {
			fmt.Fprintln(a.out, "error:", err)
		}
		return
	}
	out, err := a.coord.Vehicles.MarkDeletedAndSync(ctx, v)
	if err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintf(a.out, "Deleted (%s).\n", out)
}

// reloadVehicle resolves a conflict by taking the server's version.
func (a *App) reloadVehicle(ctx context.Context, id int64) {
	v, err := a.coord.Vehicles.ByID(ctx, id)
	if err != nil {
		if store.IsNotFound(err) {
			fmt.Fprintln(a.out, "No such vehicle:", id)
		} else {
			fmt.Fprintln(a.out, "error:", err)
		}
		return
	}
	if err := a.coord.Vehicles.Reload(ctx, v); err != nil {
		fmt.Fprintln(a.out, "error:", err)
		return
	}
	fmt.Fprintln(a.out, "Restored the server's version.")
}
