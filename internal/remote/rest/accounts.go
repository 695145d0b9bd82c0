package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
)

// Accounts implements remote.Accounts against the REST API's login
// endpoints.
type Accounts struct {
	http    *http.Client
	baseURL string
	log     logging.Logger
}

func NewAccounts(httpClient *http.Client, baseURL string, log logging.Logger) *Accounts {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Accounts{http: httpClient, baseURL: baseURL, log: log}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates against /login, returning the token and the account's
// user resource.
func (a *Accounts) Login(ctx context.Context, email, password string) remote.LoginResult {
	return a.post(ctx, "/login", email, password, "", true)
}

// LightLogin authenticates against /light-login; token only, no account
// download.
func (a *Accounts) LightLogin(ctx context.Context, email, password string) remote.LoginResult {
	return a.post(ctx, "/light-login", email, password, "", false)
}

// Logout invalidates the session token.
func (a *Accounts) Logout(ctx context.Context, authToken string) remote.LoginResult {
	return a.post(ctx, "/logout", "", "", authToken, false)
}

func (a *Accounts) post(ctx context.Context, path, email, password, authToken string, wantUser bool) remote.LoginResult {
	var body io.Reader
	if email != "" {
		data, err := json.Marshal(loginRequest{Email: email, Password: password})
		if err != nil {
			return remote.LoginResult{Outcome: remote.OutcomeTransientError, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, body)
	if err != nil {
		return remote.LoginResult{Outcome: remote.OutcomeTransientError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set(common.AuthTokenHeaderName, AuthScheme+" "+authToken)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return remote.LoginResult{Outcome: remote.OutcomeTransientError, Err: err}
	}
	defer resp.Body.Close()

	r := remote.LoginResult{
		HTTPStatus: resp.StatusCode,
		AuthToken:  resp.Header.Get(common.AuthTokenResponseHeaderName),
	}
	if v := resp.Header.Get(common.ErrorMaskHeaderName); v != "" {
		if mask, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.ErrMask = mask
		}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		r.Outcome = remote.OutcomeSuccess
		if wantUser {
			data, err := io.ReadAll(resp.Body)
			if err == nil && len(data) > 0 {
				if u, err := UserCodec().Decode(data); err == nil {
					r.User = u
				} else {
					a.log.Warn(ctx, "undecodable login user body", "error", err)
				}
			}
		}
	case http.StatusUnauthorized, http.StatusForbidden:
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
