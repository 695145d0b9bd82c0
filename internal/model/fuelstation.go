package model

import "database/sql"

// FuelStation is a gas station a user purchases fuel from.
type FuelStation struct {
	MasterMetadata
	SyncMetadata

	User ParentRef

	Name      string
	Street    string
	City      string
	State     string
	Zip       string
	Latitude  sql.NullFloat64
	Longitude sql.NullFloat64
}

func (s *FuelStation) MasterMeta() *MasterMetadata { return &s.MasterMetadata }
func (s *FuelStation) SyncMeta() *SyncMetadata     { return &s.SyncMetadata }

func (s *FuelStation) Overwrite(other *FuelStation) {
	s.Name = other.Name
	s.Street = other.Street
	s.City = other.City
	s.State = other.State
	s.Zip = other.Zip
	s.Latitude = other.Latitude
	s.Longitude = other.Longitude
	s.overwriteMaster(&other.MasterMetadata)
}

// SaveFuelStationErr is the user-faulted validation bitmask for saving a
// fuel station.
type SaveFuelStationErr uint64

const (
	SaveFuelStationAnyIssues SaveFuelStationErr = 1 << iota
	SaveFuelStationNameNotProvided
)

func (s *FuelStation) Validate() SaveFuelStationErr {
	var mask SaveFuelStationErr
	if s.Name == "" {
		mask |= SaveFuelStationAnyIssues | SaveFuelStationNameNotProvided
	}
	return mask
}
