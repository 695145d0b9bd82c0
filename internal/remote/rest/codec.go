package rest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// Codec translates one entity type to/from its wire representation and
// knows where new instances of it are created.
type Codec[T model.Entity] struct {
	// MediaType is sent as Content-Type/Accept.
	MediaType string

	Encode func(e T) ([]byte, error)
	Decode func(data []byte) (T, error)

	// CollectionURI returns the path new entities are POSTed to; parent
	// global ids come from the entity's parent refs.
	CollectionURI func(e T) (string, error)
}

// Wire shapes. Optional numeric/time fields are pointers so absent and zero
// stay distinguishable on the wire.

type wireRelation struct {
	Name      string `json:"name"`
	URI       string `json:"uri"`
	MediaType string `json:"media-type"`
}

type wireMaster struct {
	GlobalID  string                  `json:"global-identifier,omitempty"`
	Relations map[string]wireRelation `json:"_links,omitempty"`
	CreatedAt *time.Time              `json:"created-at,omitempty"`
	UpdatedAt *time.Time              `json:"updated-at,omitempty"`
	DeletedAt *time.Time              `json:"deleted-at,omitempty"`
}

type wireUser struct {
	wireMaster
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

type wireVehicle struct {
	wireMaster
	UserGlobalID  string  `json:"user,omitempty"`
	Name          string  `json:"name"`
	DefaultOctane int     `json:"default-octane,omitempty"`
	FuelCapacity  float64 `json:"fuel-capacity,omitempty"`
}

type wireFuelStation struct {
	wireMaster
	UserGlobalID string   `json:"user,omitempty"`
	Name         string   `json:"name"`
	Street       string   `json:"street,omitempty"`
	City         string   `json:"city,omitempty"`
	State        string   `json:"state,omitempty"`
	Zip          string   `json:"zip,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

type wireFuelPurchaseLog struct {
	wireMaster
	UserGlobalID        string    `json:"user,omitempty"`
	VehicleGlobalID     string    `json:"vehicle,omitempty"`
	FuelStationGlobalID string    `json:"fuelstation,omitempty"`
	NumGallons          float64   `json:"num-gallons"`
	Octane              int       `json:"octane"`
	GallonPrice         float64   `json:"gallon-price"`
	GotCarWash          bool      `json:"got-car-wash"`
	CarWashDiscount     float64   `json:"car-wash-per-gallon-discount,omitempty"`
	PurchasedAt         time.Time `json:"purchased-at"`
}

type wireEnvironmentLog struct {
	wireMaster
	UserGlobalID    string     `json:"user,omitempty"`
	VehicleGlobalID string     `json:"vehicle,omitempty"`
	Odometer        float64    `json:"odometer"`
	ReportedAvgMPG  *float64   `json:"reported-avg-mpg,omitempty"`
	ReportedAvgMPH  *float64   `json:"reported-avg-mph,omitempty"`
	OutsideTemp     *float64   `json:"reported-outside-temp,omitempty"`
	DTE             *float64   `json:"reported-dte,omitempty"`
	LogDate         time.Time  `json:"log-date"`
}

func masterToWire(m *model.MasterMetadata) wireMaster {
	w := wireMaster{GlobalID: m.GlobalID.String}
	if len(m.Relations) > 0 {
		w.Relations = make(map[string]wireRelation, len(m.Relations))
		for name, r := range m.Relations {
			w.Relations[name] = wireRelation{Name: r.Name, URI: r.URI, MediaType: r.MediaType}
		}
	}
	w.CreatedAt = nullTimePtr(m.CreatedAt)
	w.UpdatedAt = nullTimePtr(m.UpdatedAt)
	w.DeletedAt = nullTimePtr(m.DeletedAt)
	return w
}

func wireToMaster(w wireMaster, mediaType string, m *model.MasterMetadata) {
	m.GlobalID = model.NullString(w.GlobalID)
	m.MediaType = mediaType
	if len(w.Relations) > 0 {
		m.Relations = make(map[string]model.Relation, len(w.Relations))
		for name, r := range w.Relations {
			m.Relations[name] = model.Relation{Name: r.Name, URI: r.URI, MediaType: r.MediaType}
		}
	}
	m.CreatedAt = ptrNullTime(w.CreatedAt)
	m.UpdatedAt = ptrNullTime(w.UpdatedAt)
	m.DeletedAt = ptrNullTime(w.DeletedAt)
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func ptrNullTime(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

func nullFloatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func ptrNullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// requireParent returns the parent's global id, which in this API is the
// parent's resource path; collection URIs are built by appending to it.
func requireParent(name string, ref model.ParentRef) (string, error) {
	if !ref.GlobalID.Valid {
		return "", fmt.Errorf("%s has no global id yet", name)
	}
	return ref.GlobalID.String, nil
}

// UserCodec is the wire codec for user resources.
func UserCodec() Codec[*model.User] {
	return Codec[*model.User]{
		MediaType: "application/vnd.fp.user-v1+json",
		Encode: func(u *model.User) ([]byte, error) {
			return json.Marshal(wireUser{
				wireMaster: masterToWire(&u.MasterMetadata),
				Name:       u.Name, Email: u.Email, Username: u.Username,
			})
		},
		Decode: func(data []byte) (*model.User, error) {
			var w wireUser
			if err := json.Unmarshal(data, &w); err != nil {
				return nil, fmt.Errorf("failed to decode user: %w", err)
			}
			u := &model.User{Name: w.Name, Email: w.Email, Username: w.Username}
			wireToMaster(w.wireMaster, "application/vnd.fp.user-v1+json", &u.MasterMetadata)
			return u, nil
		},
		CollectionURI: func(*model.User) (string, error) { return "/users", nil },
	}
}

// VehicleCodec is the wire codec for vehicle resources.
func VehicleCodec() Codec[*model.Vehicle] {
	return Codec[*model.Vehicle]{
		MediaType: "application/vnd.fp.vehicle-v1+json",
		Encode: func(v *model.Vehicle) ([]byte, error) {
			return json.Marshal(wireVehicle{
				wireMaster:    masterToWire(&v.MasterMetadata),
				UserGlobalID:  v.User.GlobalID.String,
				Name:          v.Name,
				DefaultOctane: v.DefaultOctane,
				FuelCapacity:  v.FuelCapacity,
			})
		},
		Decode: func(data []byte) (*model.Vehicle, error) {
			var w wireVehicle
			if err := json.Unmarshal(data, &w); err != nil {
				return nil, fmt.Errorf("failed to decode vehicle: %w", err)
			}
			v := &model.Vehicle{Name: w.Name, DefaultOctane: w.DefaultOctane, FuelCapacity: w.FuelCapacity}
			v.User.GlobalID = model.NullString(w.UserGlobalID)
			wireToMaster(w.wireMaster, "application/vnd.fp.vehicle-v1+json", &v.MasterMetadata)
			return v, nil
		},
		CollectionURI: func(v *model.Vehicle) (string, error) {
			user, err := requireParent("user", v.User)
			if err != nil {
				return "", err
			}
			return user + "/vehicles", nil
		},
	}
}

// FuelStationCodec is the wire codec for fuel station resources.
func FuelStationCodec() Codec[*model.FuelStation] {
	return Codec[*model.FuelStation]{
		MediaType: "application/vnd.fp.fuelstation-v1+json",
		Encode: func(fs *model.FuelStation) ([]byte, error) {
			return json.Marshal(wireFuelStation{
				wireMaster:   masterToWire(&fs.MasterMetadata),
				UserGlobalID: fs.User.GlobalID.String,
				Name:         fs.Name, Street: fs.Street, City: fs.City,
				State: fs.State, Zip: fs.Zip,
				Latitude:  nullFloatPtr(fs.Latitude),
				Longitude: nullFloatPtr(fs.Longitude),
			})
		},
		Decode: func(data []byte) (*model.FuelStation, error) {
			var w wireFuelStation
			if err := json.Unmarshal(data, &w); err != nil {
				return nil, fmt.Errorf("failed to decode fuel station: %w", err)
			}
			fs := &model.FuelStation{
				Name: w.Name, Street: w.Street, City: w.City, State: w.State, Zip: w.Zip,
				Latitude:  ptrNullFloat(w.Latitude),
				Longitude: ptrNullFloat(w.Longitude),
			}
			fs.User.GlobalID = model.NullString(w.UserGlobalID)
			wireToMaster(w.wireMaster, "application/vnd.fp.fuelstation-v1+json", &fs.MasterMetadata)
			return fs, nil
		},
		CollectionURI: func(fs *model.FuelStation) (string, error) {
			user, err := requireParent("user", fs.User)
			if err != nil {
				return "", err
			}
			return user + "/fuelstations", nil
		},
	}
}

// FuelPurchaseLogCodec is the wire codec for fuel purchase log resources.
func FuelPurchaseLogCodec() Codec[*model.FuelPurchaseLog] {
	return Codec[*model.FuelPurchaseLog]{
		MediaType: "application/vnd.fp.fplog-v1+json",
		Encode: func(l *model.FuelPurchaseLog) ([]byte, error) {
			return json.Marshal(wireFuelPurchaseLog{
				wireMaster:          masterToWire(&l.MasterMetadata),
				UserGlobalID:        l.User.GlobalID.String,
				VehicleGlobalID:     l.Vehicle.GlobalID.String,
				FuelStationGlobalID: l.FuelStation.GlobalID.String,
				NumGallons:          l.NumGallons,
				Octane:              l.Octane,
				GallonPrice:         l.GallonPrice,
				GotCarWash:          l.GotCarWash,
				CarWashDiscount:     l.CarWashPerGallonDiscount,
				PurchasedAt:         l.PurchasedAt,
			})
		},
		Decode: func(data []byte) (*model.FuelPurchaseLog, error) {
			var w wireFuelPurchaseLog
			if err := json.Unmarshal(data, &w); err != nil {
				return nil, fmt.Errorf("failed to decode fuel purchase log: %w", err)
			}
			l := &model.FuelPurchaseLog{
				NumGallons: w.NumGallons, Octane: w.Octane, GallonPrice: w.GallonPrice,
				GotCarWash: w.GotCarWash, CarWashPerGallonDiscount: w.CarWashDiscount,
				PurchasedAt: w.PurchasedAt,
			}
			l.User.GlobalID = model.NullString(w.UserGlobalID)
			l.Vehicle.GlobalID = model.NullString(w.VehicleGlobalID)
			l.FuelStation.GlobalID = model.NullString(w.FuelStationGlobalID)
			wireToMaster(w.wireMaster, "application/vnd.fp.fplog-v1+json", &l.MasterMetadata)
			return l, nil
		},
		CollectionURI: func(l *model.FuelPurchaseLog) (string, error) {
			user, err := requireParent("user", l.User)
			if err != nil {
				return "", err
			}
			return user + "/fplogs", nil
		},
	}
}

// EnvironmentLogCodec is the wire codec for environment log resources.
func EnvironmentLogCodec() Codec[*model.EnvironmentLog] {
	return Codec[*model.EnvironmentLog]{
		MediaType: "application/vnd.fp.envlog-v1+json",
		Encode: func(l *model.EnvironmentLog) ([]byte, error) {
			return json.Marshal(wireEnvironmentLog{
				wireMaster:      masterToWire(&l.MasterMetadata),
				UserGlobalID:    l.User.GlobalID.String,
				VehicleGlobalID: l.Vehicle.GlobalID.String,
				Odometer:        l.Odometer,
				ReportedAvgMPG:  nullFloatPtr(l.ReportedAvgMPG),
				ReportedAvgMPH:  nullFloatPtr(l.ReportedAvgMPH),
				OutsideTemp:     nullFloatPtr(l.ReportedOutsideTemp),
				DTE:             nullFloatPtr(l.ReportedDTE),
				LogDate:         l.LogDate,
			})
		},
		Decode: func(data []byte) (*model.EnvironmentLog, error) {
			var w wireEnvironmentLog
			if err := json.Unmarshal(data, &w); err != nil {
				return nil, fmt.Errorf("failed to decode environment log: %w", err)
			}
			l := &model.EnvironmentLog{
				Odometer:            w.Odometer,
				ReportedAvgMPG:      ptrNullFloat(w.ReportedAvgMPG),
				ReportedAvgMPH:      ptrNullFloat(w.ReportedAvgMPH),
				ReportedOutsideTemp: ptrNullFloat(w.OutsideTemp),
				ReportedDTE:         ptrNullFloat(w.DTE),
				LogDate:             w.LogDate,
			}
			l.User.GlobalID = model.NullString(w.UserGlobalID)
			l.Vehicle.GlobalID = model.NullString(w.VehicleGlobalID)
			wireToMaster(w.wireMaster, "application/vnd.fp.envlog-v1+json", &l.MasterMetadata)
			return l, nil
		},
		CollectionURI: func(l *model.EnvironmentLog) (string, error) {
			user, err := requireParent("user", l.User)
			if err != nil {
				return "", err
			}
			return user + "/envlogs", nil
		},
	}
}
