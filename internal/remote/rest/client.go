// Package rest is the HTTP implementation of the remote transport seam: it
// translates status codes and headers of the fuel purchase REST API into the
// outcome taxonomy the sync core consumes. The core never imports this
// package; cmd wires it in.
package rest

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/dmitrijs2005/fueltrack/internal/remote"
)

// AuthScheme prefixes the token on the Authorization request header.
const AuthScheme = "fp-auth"

// Client implements remote.Store[T] against the REST API. One instance per
// entity type, sharing the http.Client.
type Client[T model.Entity] struct {
	http    *http.Client
	baseURL string
	codec   Codec[T]
	log     logging.Logger

	// now is stubbed in tests of Retry-After parsing.
	now func() time.Time
}

func NewClient[T model.Entity](httpClient *http.Client, baseURL string, codec Codec[T], log logging.Logger) *Client[T] {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Client[T]{http: noRedirects(httpClient), baseURL: baseURL, codec: codec, log: log, now: time.Now}
}

// noRedirects copies the client with redirect-following disabled. A 301 is
// an API response here (the resource moved, Location carries its new global
// id), so classification must see the raw status.
func noRedirects(hc *http.Client) *http.Client {
	c := *hc
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &c
}

func (c *Client[T]) CreateNew(ctx context.Context, authToken string, e T) remote.Result[T] {
	uri, err := c.codec.CollectionURI(e)
	if err != nil {
		return remote.Result[T]{Outcome: remote.OutcomeTransientError, Err: err}
	}
	return c.do(ctx, http.MethodPost, uri, authToken, e, time.Time{})
}

func (c *Client[T]) SaveExisting(ctx context.Context, authToken string, e T) remote.Result[T] {
	return c.do(ctx, http.MethodPut, c.resourceURI(e), authToken, e, time.Time{})
}

func (c *Client[T]) Delete(ctx context.Context, authToken string, e T) remote.Result[T] {
	var zero T
	return c.do(ctx, http.MethodDelete, c.resourceURI(e), authToken, zero, time.Time{})
}

func (c *Client[T]) Fetch(ctx context.Context, authToken string, globalID string, ifModifiedSince time.Time) remote.Result[T] {
	var zero T
	return c.do(ctx, http.MethodGet, globalID, authToken, zero, ifModifiedSince)
}

// resourceURI: global ids in this API are resource paths, the hypermedia
// idiom. The "self" relation overrides when the server provided one.
func (c *Client[T]) resourceURI(e T) string {
	if rel, ok := e.MasterMeta().Relations["self"]; ok && rel.URI != "" {
		return rel.URI
	}
	return e.MasterMeta().GlobalID.String
}

func (c *Client[T]) do(ctx context.Context, method, uri, authToken string, body T, ifModifiedSince time.Time) remote.Result[T] {
	var reader io.Reader
	hasBody := method == http.MethodPost || method == http.MethodPut
	if hasBody {
		data, err := c.codec.Encode(body)
		if err != nil {
			return remote.Result[T]{Outcome: remote.OutcomeTransientError, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+uri, reader)
	if err != nil {
		return remote.Result[T]{Outcome: remote.OutcomeTransientError, Err: err}
	}
	req.Header.Set("Accept", c.codec.MediaType)
	if hasBody {
		req.Header.Set("Content-Type", c.codec.MediaType)
	}
	if authToken != "" {
		req.Header.Set(common.AuthTokenHeaderName, AuthScheme+" "+authToken)
	}
	if !ifModifiedSince.IsZero() {
		req.Header.Set("If-Modified-Since", ifModifiedSince.UTC().Format(http.TimeFormat))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and cancellations land here too; per the concurrency
		// model they are transient, never ambiguous.
		return remote.Result[T]{Outcome: remote.OutcomeTransientError, Err: err}
	}
	defer resp.Body.Close()

	return c.classify(resp)
}

func (c *Client[T]) classify(resp *http.Response) remote.Result[T] {
	r := remote.Result[T]{
		HTTPStatus: resp.StatusCode,
		AuthToken:  resp.Header.Get(common.AuthTokenResponseHeaderName),
	}
	if v := resp.Header.Get(common.ErrorMaskHeaderName); v != "" {
		if mask, err := strconv.ParseInt(v, 10, 64); err == nil {
			r.ErrMask = mask
		}
	}
	if v := resp.Header.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			r.LastModified = t
		}
	}
	r.RetryAfter = c.parseRetryAfter(resp.Header.Get("Retry-After"))

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		r.Outcome = remote.OutcomeSuccess
		if loc := resp.Header.Get("Location"); loc != "" {
			r.GlobalID = loc
		}
		c.decodeInto(&r, resp)
		if r.GlobalID == "" && r.HasResource {
			r.GlobalID = r.Resource.MasterMeta().GlobalID.String
		}
	case http.StatusNotModified:
		r.Outcome = remote.OutcomeNotModified
	case http.StatusMovedPermanently:
		r.Outcome = remote.OutcomeMovedPermanently
		r.GlobalID = resp.Header.Get("Location")
	case http.StatusUnauthorized:
		r.Outcome = remote.OutcomeAuthRequired
	case http.StatusConflict:
		r.Outcome = remote.OutcomeConflict
		c.decodeInto(&r, resp)
	case http.StatusGone:
		r.Outcome = remote.OutcomeGone
	case http.StatusNotFound:
		r.Outcome = remote.OutcomeNotFound
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		r.Outcome = remote.OutcomeBusy
	default:
		r.Outcome = remote.OutcomeTransientError
	}
	return r
}

// decodeInto reads the response entity, tolerating empty bodies (204, or a
// create that only returns Location).
func (c *Client[T]) decodeInto(r *remote.Result[T], resp *http.Response) {
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return
	}
	e, err := c.codec.Decode(data)
	if err != nil {
		c.log.Warn(resp.Request.Context(), "undecodable response body", "status", resp.StatusCode, "error", err)
		return
	}
	r.Resource = e
	r.HasResource = true
	r.Relations = e.MasterMeta().Relations
	if r.LastModified.IsZero() && e.MasterMeta().UpdatedAt.Valid {
		r.LastModified = e.MasterMeta().UpdatedAt.Time
	}
}

// parseRetryAfter handles both forms the header allows: delta seconds and an
// HTTP date.
func (c *Client[T]) parseRetryAfter(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return c.now().Add(time.Duration(secs) * time.Second)
	}
	if t, err := http.ParseTime(v); err == nil {
		return t
	}
	return time.Time{}
}
