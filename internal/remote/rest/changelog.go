package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
)

// ChangelogClient implements remote.ChangelogSource against the user's
// changelog resource.
type ChangelogClient struct {
	http    *http.Client
	baseURL string
	log     logging.Logger
}

func NewChangelogClient(httpClient *http.Client, baseURL string, log logging.Logger) *ChangelogClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ChangelogClient{http: httpClient, baseURL: baseURL, log: log}
}

type wireChangelog struct {
	Users            []json.RawMessage `json:"users"`
	Vehicles         []json.RawMessage `json:"vehicles"`
	FuelStations     []json.RawMessage `json:"fuelstations"`
	FuelPurchaseLogs []json.RawMessage `json:"fplogs"`
	EnvironmentLogs  []json.RawMessage `json:"envlogs"`
}

// FetchChangelog downloads the batch of changes to the user's data since
// the given timestamp. userGlobalID is the user's resource path; the
// changelog hangs off it.
func (c *ChangelogClient) FetchChangelog(ctx context.Context, authToken, userGlobalID string, since time.Time) remote.ChangelogResult {
	uri := c.baseURL + userGlobalID + "/changelog"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return remote.ChangelogResult{Outcome: remote.OutcomeTransientError, Err: err}
	}
	req.Header.Set("Accept", "application/vnd.fp.changelog-v1+json")
	if authToken != "" {
		req.Header.Set(common.AuthTokenHeaderName, AuthScheme+" "+authToken)
	}
	if !since.IsZero() {
		req.Header.Set("If-Modified-Since", since.UTC().Format(http.TimeFormat))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return remote.ChangelogResult{Outcome: remote.OutcomeTransientError, Err: err}
	}
	defer resp.Body.Close()

	r := remote.ChangelogResult{
		HTTPStatus: resp.StatusCode,
		AuthToken:  resp.Header.Get(common.AuthTokenResponseHeaderName),
	}
	switch resp.StatusCode {
	case http.StatusOK:
		cl, err := c.decode(resp)
		if err != nil {
			r.Outcome = remote.OutcomeTransientError
			r.Err = err
			return r
		}
		r.Outcome = remote.OutcomeSuccess
		r.Changelog = cl
	case http.StatusNotModified:
		r.Outcome = remote.OutcomeNotModified
	case http.StatusUnauthorized:
		r.Outcome = remote.OutcomeAuthRequired
	case http.StatusNotFound:
		r.Outcome = remote.OutcomeNotFound
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		r.Outcome = remote.OutcomeBusy
	default:
		r.Outcome = remote.OutcomeTransientError
	}
	return r
}

func (c *ChangelogClient) decode(resp *http.Response) (*remote.Changelog, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var w wireChangelog
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	cl := &remote.Changelog{}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			cl.LastModified = t
		}
	}

	cl.Users = decodeEach(c.log, w.Users, UserCodec().Decode)
	cl.Vehicles = decodeEach(c.log, w.Vehicles, VehicleCodec().Decode)
	cl.FuelStations = decodeEach(c.log, w.FuelStations, FuelStationCodec().Decode)
	cl.FuelPurchaseLogs = decodeEach(c.log, w.FuelPurchaseLogs, FuelPurchaseLogCodec().Decode)
	cl.EnvironmentLogs = decodeEach(c.log, w.EnvironmentLogs, EnvironmentLogCodec().Decode)
	return cl, nil
}

// decodeEach tolerates individually malformed entries; a changelog is best
// effort and the next full fetch heals anything skipped here.
func decodeEach[T model.Entity](log logging.Logger, raw []json.RawMessage, decode func([]byte) (T, error)) []T {
	var out []T
	for _, entry := range raw {
		e, err := decode(entry)
		if err != nil {
			log.Warn(context.Background(), "skipping undecodable changelog entry", "error", err)
			continue
		}
		out = append(out, e)
	}
	return out
}
