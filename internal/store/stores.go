package store

import (
	"context"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// Stores bundles the five per-entity stores and carries the cross-entity
// operations (prune-all, cancel-all, parent link back-fill) that need to
// know the table topology.
type Stores struct {
	Users            *Store[*model.User]
	Vehicles         *Store[*model.Vehicle]
	FuelStations     *Store[*model.FuelStation]
	FuelPurchaseLogs *Store[*model.FuelPurchaseLog]
	EnvironmentLogs  *Store[*model.EnvironmentLog]
}

func NewStores(log logging.Logger) *Stores {
	return &Stores{
		Users:            New(UserDescriptor(), log),
		Vehicles:         New(VehicleDescriptor(), log),
		FuelStations:     New(FuelStationDescriptor(), log),
		FuelPurchaseLogs: New(FuelPurchaseLogDescriptor(), log),
		EnvironmentLogs:  New(EnvironmentLogDescriptor(), log),
	}
}

// PruneAllSynced prunes the high-volume entities, children before parents
// so a parent is never removed out from under a still-present child row.
// The user row is the device's identity and is never pruned.
func (s *Stores) PruneAllSynced(ctx context.Context, q dbx.DBTX) (int, error) {
	total := 0

	n, err := s.FuelPurchaseLogs.PruneSynced(ctx, q, nil)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.EnvironmentLogs.PruneSynced(ctx, q, nil)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.Vehicles.PruneSynced(ctx, q, []ChildFilter{
		{ChildMainTable: "main_fuel_purchase_log", ParentMainCol: "vehicle_main_id"},
		{ChildMainTable: "main_environment_log", ParentMainCol: "vehicle_main_id"},
	})
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.FuelStations.PruneSynced(ctx, q, []ChildFilter{
		{ChildMainTable: "main_fuel_purchase_log", ParentMainCol: "fuel_station_main_id"},
	})
	if err != nil {
		return total, err
	}
	total += n

	return total, nil
}

// CancelAllSyncInProgress releases every outstanding sync lock across all
// entity types (application shutdown/reset). Late network completions for
// the released rows will fail their token guard and be discarded.
func (s *Stores) CancelAllSyncInProgress(ctx context.Context, q dbx.DBTX) (int64, error) {
	var total int64
	for _, cancel := range []func(context.Context, dbx.DBTX) (int64, error){
		s.Users.CancelAllSyncInProgress,
		s.Vehicles.CancelAllSyncInProgress,
		s.FuelStations.CancelAllSyncInProgress,
		s.FuelPurchaseLogs.CancelAllSyncInProgress,
		s.EnvironmentLogs.CancelAllSyncInProgress,
	} {
		n, err := cancel(ctx, q)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DetachAllFromRemote reverts the whole replica to local-only state: main
// rows keep their domain fields but lose master links and global ids, and
// all master copies are dropped. Child types go first so no master cascade
// fires while a main row still references its master.
func (s *Stores) DetachAllFromRemote(ctx context.Context, q dbx.DBTX) error {
	for _, detach := range []func(context.Context, dbx.DBTX) error{
		s.FuelPurchaseLogs.DetachAllFromRemote,
		s.EnvironmentLogs.DetachAllFromRemote,
		s.Vehicles.DetachAllFromRemote,
		s.FuelStations.DetachAllFromRemote,
		s.Users.DetachAllFromRemote,
	} {
		if err := detach(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// AttachUserLinks back-fills user master/global references on all child
// tables after the user gains a master copy.
func (s *Stores) AttachUserLinks(ctx context.Context, q dbx.DBTX, u *model.User) error {
	if !u.LocalMainID.Valid || !u.LocalMasterID.Valid || !u.GlobalID.Valid {
		return nil
	}
	mainID, masterID, globalID := u.LocalMainID.Int64, u.LocalMasterID.Int64, u.GlobalID.String

	if err := s.Vehicles.AttachParentLinks(ctx, q, s.Vehicles.Desc().ParentCols[0], mainID, masterID, globalID); err != nil {
		return err
	}
	if err := s.FuelStations.AttachParentLinks(ctx, q, s.FuelStations.Desc().ParentCols[0], mainID, masterID, globalID); err != nil {
		return err
	}
	if err := s.FuelPurchaseLogs.AttachParentLinks(ctx, q, s.FuelPurchaseLogs.Desc().ParentCols[0], mainID, masterID, globalID); err != nil {
		return err
	}
	return s.EnvironmentLogs.AttachParentLinks(ctx, q, s.EnvironmentLogs.Desc().ParentCols[0], mainID, masterID, globalID)
}

// AttachVehicleLinks back-fills vehicle references on the log tables after
// the vehicle gains a master copy.
func (s *Stores) AttachVehicleLinks(ctx context.Context, q dbx.DBTX, v *model.Vehicle) error {
	if !v.LocalMainID.Valid || !v.LocalMasterID.Valid || !v.GlobalID.Valid {
		return nil
	}
	mainID, masterID, globalID := v.LocalMainID.Int64, v.LocalMasterID.Int64, v.GlobalID.String

	if err := s.FuelPurchaseLogs.AttachParentLinks(ctx, q, s.FuelPurchaseLogs.Desc().ParentCols[1], mainID, masterID, globalID); err != nil {
		return err
	}
	return s.EnvironmentLogs.AttachParentLinks(ctx, q, s.EnvironmentLogs.Desc().ParentCols[1], mainID, masterID, globalID)
}

// AttachFuelStationLinks back-fills station references on the fuel purchase
// log table after the station gains a master copy.
func (s *Stores) AttachFuelStationLinks(ctx context.Context, q dbx.DBTX, fs *model.FuelStation) error {
	if !fs.LocalMainID.Valid || !fs.LocalMasterID.Valid || !fs.GlobalID.Valid {
		return nil
	}
	return s.FuelPurchaseLogs.AttachParentLinks(ctx, q, s.FuelPurchaseLogs.Desc().ParentCols[2],
		fs.LocalMainID.Int64, fs.LocalMasterID.Int64, fs.GlobalID.String)
}
