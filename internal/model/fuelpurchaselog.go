package model

import "time"

// FuelPurchaseLog records a single fill-up at a fuel station with a vehicle.
type FuelPurchaseLog struct {
	MasterMetadata
	SyncMetadata

	User        ParentRef
	Vehicle     ParentRef
	FuelStation ParentRef

	NumGallons               float64
	Octane                   int
	GallonPrice              float64
	GotCarWash               bool
	CarWashPerGallonDiscount float64
	PurchasedAt              time.Time
}

func (l *FuelPurchaseLog) MasterMeta() *MasterMetadata { return &l.MasterMetadata }
func (l *FuelPurchaseLog) SyncMeta() *SyncMetadata     { return &l.SyncMetadata }

func (l *FuelPurchaseLog) Overwrite(other *FuelPurchaseLog) {
	l.NumGallons = other.NumGallons
	l.Octane = other.Octane
	l.GallonPrice = other.GallonPrice
	l.GotCarWash = other.GotCarWash
	l.CarWashPerGallonDiscount = other.CarWashPerGallonDiscount
	l.PurchasedAt = other.PurchasedAt
	l.overwriteMaster(&other.MasterMetadata)
}

// SaveFuelPurchaseLogErr is the user-faulted validation bitmask for saving a
// fuel purchase log.
type SaveFuelPurchaseLogErr uint64

const (
	SaveFuelPurchaseLogAnyIssues SaveFuelPurchaseLogErr = 1 << iota
	SaveFuelPurchaseLogPurchaseDateNotProvided
	SaveFuelPurchaseLogNumGallonsNotProvided
	SaveFuelPurchaseLogOctaneNotProvided
	SaveFuelPurchaseLogGallonPriceNotProvided
	SaveFuelPurchaseLogVehicleNotProvided
	SaveFuelPurchaseLogFuelStationNotProvided
)

func (l *FuelPurchaseLog) Validate() SaveFuelPurchaseLogErr {
	var mask SaveFuelPurchaseLogErr
	if l.PurchasedAt.IsZero() {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogPurchaseDateNotProvided
	}
	if l.NumGallons <= 0 {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogNumGallonsNotProvided
	}
	if l.Octane <= 0 {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogOctaneNotProvided
	}
	if l.GallonPrice <= 0 {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogGallonPriceNotProvided
	}
	if !l.Vehicle.MainID.Valid {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogVehicleNotProvided
	}
	if !l.FuelStation.MainID.Valid {
		mask |= SaveFuelPurchaseLogAnyIssues | SaveFuelPurchaseLogFuelStationNotProvided
	}
	return mask
}
