package model

import (
	"database/sql"
	"time"
)

// EnvironmentLog records odometer and trip-computer readings for a vehicle
// at a point in time.
type EnvironmentLog struct {
	MasterMetadata
	SyncMetadata

	User    ParentRef
	Vehicle ParentRef

	Odometer            float64
	ReportedAvgMPG      sql.NullFloat64
	ReportedAvgMPH      sql.NullFloat64
	ReportedOutsideTemp sql.NullFloat64
	// ReportedDTE is the trip computer's distance-to-empty reading.
	ReportedDTE sql.NullFloat64
	LogDate     time.Time
}

func (l *EnvironmentLog) MasterMeta() *MasterMetadata { return &l.MasterMetadata }
func (l *EnvironmentLog) SyncMeta() *SyncMetadata     { return &l.SyncMetadata }

func (l *EnvironmentLog) Overwrite(other *EnvironmentLog) {
	l.Odometer = other.Odometer
	l.ReportedAvgMPG = other.ReportedAvgMPG
	l.ReportedAvgMPH = other.ReportedAvgMPH
	l.ReportedOutsideTemp = other.ReportedOutsideTemp
	l.ReportedDTE = other.ReportedDTE
	l.LogDate = other.LogDate
	l.overwriteMaster(&other.MasterMetadata)
}

// SaveEnvironmentLogErr is the user-faulted validation bitmask for saving an
// environment log.
type SaveEnvironmentLogErr uint64

const (
	SaveEnvironmentLogAnyIssues SaveEnvironmentLogErr = 1 << iota
	SaveEnvironmentLogDateNotProvided
	SaveEnvironmentLogOdometerNotProvided
	SaveEnvironmentLogVehicleNotProvided
)

func (l *EnvironmentLog) Validate() SaveEnvironmentLogErr {
	var mask SaveEnvironmentLogErr
	if l.LogDate.IsZero() {
		mask |= SaveEnvironmentLogAnyIssues | SaveEnvironmentLogDateNotProvided
	}
	if l.Odometer <= 0 {
		mask |= SaveEnvironmentLogAnyIssues | SaveEnvironmentLogOdometerNotProvided
	}
	if !l.Vehicle.MainID.Valid {
		mask |= SaveEnvironmentLogAnyIssues | SaveEnvironmentLogVehicleNotProvided
	}
	return mask
}
