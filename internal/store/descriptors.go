package store

import (
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// The five concrete descriptors. Table layout (two tables per entity plus a
// relation-link table) follows the persisted state layout of the sync core;
// see the migrations subpackage for the DDL.

func UserDescriptor() Descriptor[*model.User] {
	return Descriptor[*model.User]{
		Name:          "user",
		MainTable:     "main_user",
		MasterTable:   "master_user",
		RelationTable: "rel_user",
		DomainCols:    []string{"name", "email", "username"},
		DomainArgs: func(u *model.User) []any {
			return []any{u.Name, u.Email, u.Username}
		},
		DomainDest: func(u *model.User) []any {
			return []any{&u.Name, &u.Email, &u.Username}
		},
		New: func() *model.User { return &model.User{} },
	}
}

func userParentCol[T model.Entity](ref func(e T) *model.ParentRef) ParentCol {
	return ParentCol{
		MainCol:   "user_main_id",
		MasterCol: "user_master_id",
		GlobalCol: "user_global_id",
		Ref:       func(e model.Entity) *model.ParentRef { return ref(e.(T)) },
	}
}

func VehicleDescriptor() Descriptor[*model.Vehicle] {
	return Descriptor[*model.Vehicle]{
		Name:          "vehicle",
		MainTable:     "main_vehicle",
		MasterTable:   "master_vehicle",
		RelationTable: "rel_vehicle",
		ParentCols: []ParentCol{
			userParentCol(func(v *model.Vehicle) *model.ParentRef { return &v.User }),
		},
		DomainCols: []string{"name", "default_octane", "fuel_capacity"},
		DomainArgs: func(v *model.Vehicle) []any {
			return []any{v.Name, v.DefaultOctane, v.FuelCapacity}
		},
		DomainDest: func(v *model.Vehicle) []any {
			return []any{&v.Name, &v.DefaultOctane, &v.FuelCapacity}
		},
		New: func() *model.Vehicle { return &model.Vehicle{} },
	}
}

func FuelStationDescriptor() Descriptor[*model.FuelStation] {
	return Descriptor[*model.FuelStation]{
		Name:          "fuelstation",
		MainTable:     "main_fuel_station",
		MasterTable:   "master_fuel_station",
		RelationTable: "rel_fuel_station",
		ParentCols: []ParentCol{
			userParentCol(func(s *model.FuelStation) *model.ParentRef { return &s.User }),
		},
		DomainCols: []string{"name", "street", "city", "state", "zip", "latitude", "longitude"},
		DomainArgs: func(s *model.FuelStation) []any {
			return []any{s.Name, s.Street, s.City, s.State, s.Zip, s.Latitude, s.Longitude}
		},
		DomainDest: func(s *model.FuelStation) []any {
			return []any{&s.Name, &s.Street, &s.City, &s.State, &s.Zip, &s.Latitude, &s.Longitude}
		},
		New: func() *model.FuelStation { return &model.FuelStation{} },
	}
}

func FuelPurchaseLogDescriptor() Descriptor[*model.FuelPurchaseLog] {
	return Descriptor[*model.FuelPurchaseLog]{
		Name:          "fplog",
		MainTable:     "main_fuel_purchase_log",
		MasterTable:   "master_fuel_purchase_log",
		RelationTable: "rel_fuel_purchase_log",
		ParentCols: []ParentCol{
			userParentCol(func(l *model.FuelPurchaseLog) *model.ParentRef { return &l.User }),
			{
				MainCol:   "vehicle_main_id",
				MasterCol: "vehicle_master_id",
				GlobalCol: "vehicle_global_id",
				Ref: func(e model.Entity) *model.ParentRef {
					return &e.(*model.FuelPurchaseLog).Vehicle
				},
			},
			{
				MainCol:   "fuel_station_main_id",
				MasterCol: "fuel_station_master_id",
				GlobalCol: "fuel_station_global_id",
				Ref: func(e model.Entity) *model.ParentRef {
					return &e.(*model.FuelPurchaseLog).FuelStation
				},
			},
		},
		DomainCols: []string{
			"num_gallons", "octane", "gallon_price",
			"got_car_wash", "car_wash_per_gallon_discount", "purchased_at",
		},
		DomainArgs: func(l *model.FuelPurchaseLog) []any {
			return []any{
				l.NumGallons, l.Octane, l.GallonPrice,
				l.GotCarWash, l.CarWashPerGallonDiscount, l.PurchasedAt,
			}
		},
		DomainDest: func(l *model.FuelPurchaseLog) []any {
			return []any{
				&l.NumGallons, &l.Octane, &l.GallonPrice,
				&l.GotCarWash, &l.CarWashPerGallonDiscount, &l.PurchasedAt,
			}
		},
		New: func() *model.FuelPurchaseLog { return &model.FuelPurchaseLog{} },
	}
}

func EnvironmentLogDescriptor() Descriptor[*model.EnvironmentLog] {
	return Descriptor[*model.EnvironmentLog]{
		Name:          "envlog",
		MainTable:     "main_environment_log",
		MasterTable:   "master_environment_log",
		RelationTable: "rel_environment_log",
		ParentCols: []ParentCol{
			userParentCol(func(l *model.EnvironmentLog) *model.ParentRef { return &l.User }),
			{
				MainCol:   "vehicle_main_id",
				MasterCol: "vehicle_master_id",
				GlobalCol: "vehicle_global_id",
				Ref: func(e model.Entity) *model.ParentRef {
					return &e.(*model.EnvironmentLog).Vehicle
				},
			},
		},
		DomainCols: []string{
			"odometer", "reported_avg_mpg", "reported_avg_mph",
			"reported_outside_temp", "reported_dte", "log_date",
		},
		DomainArgs: func(l *model.EnvironmentLog) []any {
			return []any{
				l.Odometer, l.ReportedAvgMPG, l.ReportedAvgMPH,
				l.ReportedOutsideTemp, l.ReportedDTE, l.LogDate,
			}
		},
		DomainDest: func(l *model.EnvironmentLog) []any {
			return []any{
				&l.Odometer, &l.ReportedAvgMPG, &l.ReportedAvgMPH,
				&l.ReportedOutsideTemp, &l.ReportedDTE, &l.LogDate,
			}
		},
		New: func() *model.EnvironmentLog { return &model.EnvironmentLog{} },
	}
}
