package model

// Vehicle is a user's car/truck; fuel purchase and environment logs
// reference one.
type Vehicle struct {
	MasterMetadata
	SyncMetadata

	User ParentRef

	Name          string
	DefaultOctane int
	// FuelCapacity is in gallons.
	FuelCapacity float64
}

func (v *Vehicle) MasterMeta() *MasterMetadata { return &v.MasterMetadata }
func (v *Vehicle) SyncMeta() *SyncMetadata     { return &v.SyncMetadata }

func (v *Vehicle) Overwrite(other *Vehicle) {
	v.Name = other.Name
	v.DefaultOctane = other.DefaultOctane
	v.FuelCapacity = other.FuelCapacity
	v.overwriteMaster(&other.MasterMetadata)
}

// SaveVehicleErr is the user-faulted validation bitmask for saving a vehicle.
type SaveVehicleErr uint64

const (
	SaveVehicleAnyIssues SaveVehicleErr = 1 << iota
	SaveVehicleNameNotProvided
	SaveVehicleNameContainsPipe
)

func (v *Vehicle) Validate() SaveVehicleErr {
	var mask SaveVehicleErr
	if v.Name == "" {
		mask |= SaveVehicleAnyIssues | SaveVehicleNameNotProvided
	}
	for _, r := range v.Name {
		if r == '|' {
			mask |= SaveVehicleAnyIssues | SaveVehicleNameContainsPipe
			break
		}
	}
	return mask
}
