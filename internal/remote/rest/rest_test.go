package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
	"github.com/stretchr/testify/require"
)

func vehicleClient(t *testing.T, handler http.HandlerFunc) *Client[*model.Vehicle] {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, VehicleCodec(), nil)
}

func unsyncedVehicle() *model.Vehicle {
	v := &model.Vehicle{Name: "Civic", DefaultOctane: 87}
	v.User.GlobalID = model.NullString("/users/usr-1")
	return v
}

func TestClient_CreateNew_Success(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get(common.AuthTokenHeaderName)
		gotContentType = r.Header.Get("Content-Type")

		var body wireVehicle
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Civic", body.Name)

		w.Header().Set("Location", "/users/usr-1/vehicles/veh-123")
		w.Header().Set(common.AuthTokenResponseHeaderName, "tok-next")
		w.Header().Set("Last-Modified", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusCreated)
		body.GlobalID = "/users/usr-1/vehicles/veh-123"
		_ = json.NewEncoder(w).Encode(body)
	})

	res := client.CreateNew(context.Background(), "tok-1", unsyncedVehicle())
	require.Equal(t, remote.OutcomeSuccess, res.Outcome)
	require.Equal(t, "/users/usr-1/vehicles", gotPath)
	require.Equal(t, AuthScheme+" tok-1", gotAuth)
	require.Equal(t, "application/vnd.fp.vehicle-v1+json", gotContentType)
	require.Equal(t, "/users/usr-1/vehicles/veh-123", res.GlobalID)
	require.Equal(t, "tok-next", res.AuthToken)
	require.True(t, res.HasResource)
	require.Equal(t, "Civic", res.Resource.Name)
	require.Equal(t, 2026, res.LastModified.Year())
}

func TestClient_CreateNew_RequiresParentGlobalID(t *testing.T) {
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request must be issued for a parent-less create")
	})
	v := &model.Vehicle{Name: "Civic"}
	res := client.CreateNew(context.Background(), "tok", v)
	require.Equal(t, remote.OutcomeTransientError, res.Outcome)
	require.Error(t, res.Err)
}

func TestClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   remote.Outcome
	}{
		{http.StatusUnauthorized, remote.OutcomeAuthRequired},
		{http.StatusConflict, remote.OutcomeConflict},
		{http.StatusGone, remote.OutcomeGone},
		{http.StatusNotFound, remote.OutcomeNotFound},
		{http.StatusServiceUnavailable, remote.OutcomeBusy},
		{http.StatusTooManyRequests, remote.OutcomeBusy},
		{http.StatusInternalServerError, remote.OutcomeTransientError},
		{http.StatusBadRequest, remote.OutcomeTransientError},
	}
	for _, tt := range tests {
		client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		res := client.CreateNew(context.Background(), "tok", unsyncedVehicle())
		require.Equal(t, tt.want, res.Outcome, "status %d", tt.status)
		require.Equal(t, tt.status, res.HTTPStatus)
	}
}

func TestClient_Busy_ParsesRetryAfterSeconds(t *testing.T) {
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	res := client.CreateNew(context.Background(), "tok", unsyncedVehicle())
	require.Equal(t, remote.OutcomeBusy, res.Outcome)
	require.Equal(t, now.Add(2*time.Minute), res.RetryAfter)
}

func TestClient_Conflict_CarriesRemoteVersion(t *testing.T) {
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/users/usr-1/vehicles/veh-123", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(wireVehicle{
			wireMaster: wireMaster{GlobalID: "/users/usr-1/vehicles/veh-123"},
			Name:       "Civic (renamed remotely)",
		})
	})

	v := unsyncedVehicle()
	v.GlobalID = model.NullString("/users/usr-1/vehicles/veh-123")
	res := client.SaveExisting(context.Background(), "tok", v)
	require.Equal(t, remote.OutcomeConflict, res.Outcome)
	require.True(t, res.HasResource)
	require.Equal(t, "Civic (renamed remotely)", res.Resource.Name)
}

func TestClient_Fetch_NotModified(t *testing.T) {
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, since.Format(http.TimeFormat), r.Header.Get("If-Modified-Since"))
		w.WriteHeader(http.StatusNotModified)
	})
	res := client.Fetch(context.Background(), "tok", "/users/usr-1/vehicles/veh-123", since)
	require.Equal(t, remote.OutcomeNotModified, res.Outcome)
}

func TestClient_MovedPermanently_CarriesNewLocation(t *testing.T) {
	var requests int
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Location", "/users/usr-1/vehicles/veh-456")
		w.WriteHeader(http.StatusMovedPermanently)
	})
	res := client.Fetch(context.Background(), "tok", "/users/usr-1/vehicles/veh-123", time.Time{})
	require.Equal(t, remote.OutcomeMovedPermanently, res.Outcome)
	require.Equal(t, "/users/usr-1/vehicles/veh-456", res.GlobalID)
	require.Equal(t, 1, requests, "the redirect is reported, not chased")
}

func TestClient_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewClient(srv.Client(), srv.URL, VehicleCodec(), nil)
	srv.Close()

	res := client.CreateNew(context.Background(), "tok", unsyncedVehicle())
	require.Equal(t, remote.OutcomeTransientError, res.Outcome)
	require.Error(t, res.Err)
}

func TestClient_ErrorMaskHeader(t *testing.T) {
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(common.ErrorMaskHeaderName, "5")
		w.WriteHeader(http.StatusBadRequest)
	})
	res := client.CreateNew(context.Background(), "tok", unsyncedVehicle())
	require.Equal(t, int64(5), res.ErrMask)
}

func TestClient_DeleteUsesSelfRelation(t *testing.T) {
	var gotPath string
	client := vehicleClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	v := unsyncedVehicle()
	v.GlobalID = model.NullString("/users/usr-1/vehicles/veh-123")
	v.Relations = map[string]model.Relation{
		"self": {Name: "self", URI: "/v2/vehicles/veh-123"},
	}
	res := client.Delete(context.Background(), "tok", v)
	require.Equal(t, remote.OutcomeSuccess, res.Outcome)
	require.Equal(t, "/v2/vehicles/veh-123", gotPath)
}

func TestAccounts_LoginDecodesUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "paul@example.com", body.Email)

		w.Header().Set(common.AuthTokenResponseHeaderName, "tok-1")
		_ = json.NewEncoder(w).Encode(wireUser{
			wireMaster: wireMaster{GlobalID: "/users/usr-1"},
			Name:       "Paul", Email: "paul@example.com",
		})
	}))
	defer srv.Close()

	a := NewAccounts(srv.Client(), srv.URL, nil)
	res := a.Login(context.Background(), "paul@example.com", "secret")
	require.Equal(t, remote.OutcomeSuccess, res.Outcome)
	require.Equal(t, "tok-1", res.AuthToken)
	require.NotNil(t, res.User)
	require.Equal(t, "/users/usr-1", res.User.GlobalID.String)
}

func TestAccounts_BadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAccounts(srv.Client(), srv.URL, nil)
	res := a.LightLogin(context.Background(), "paul@example.com", "wrong")
	require.Equal(t, remote.OutcomeAuthRequired, res.Outcome)
	require.Empty(t, res.AuthToken)
}

func TestChangelogClient_FetchAndDecode(t *testing.T) {
	lastMod := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/usr-1/changelog", r.URL.Path)
		w.Header().Set("Last-Modified", lastMod.Format(http.TimeFormat))

		veh, _ := json.Marshal(wireVehicle{
			wireMaster: wireMaster{GlobalID: "/users/usr-1/vehicles/veh-123"},
			Name:       "Civic",
		})
		deletedAt := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
		gone, _ := json.Marshal(wireVehicle{
			wireMaster: wireMaster{GlobalID: "/users/usr-1/vehicles/veh-99", DeletedAt: &deletedAt},
			Name:       "Old Truck",
		})
		_ = json.NewEncoder(w).Encode(wireChangelog{
			Vehicles: []json.RawMessage{veh, gone, json.RawMessage(`"garbage"`)},
		})
	}))
	defer srv.Close()

	c := NewChangelogClient(srv.Client(), srv.URL, nil)
	res := c.FetchChangelog(context.Background(), "tok", "/users/usr-1", time.Time{})
	require.Equal(t, remote.OutcomeSuccess, res.Outcome)
	require.NotNil(t, res.Changelog)
	require.Equal(t, lastMod, res.Changelog.LastModified)
	require.Len(t, res.Changelog.Vehicles, 2, "malformed entries are skipped")
	require.Equal(t, "Civic", res.Changelog.Vehicles[0].Name)
	require.True(t, res.Changelog.Vehicles[1].DeletedAt.Valid, "deletion markers carry deleted-at")
}

func TestChangelogClient_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := NewChangelogClient(srv.Client(), srv.URL, nil)
	res := c.FetchChangelog(context.Background(), "tok", "/users/usr-1", time.Now())
	require.Equal(t, remote.OutcomeNotModified, res.Outcome)
	require.Nil(t, res.Changelog)
}
