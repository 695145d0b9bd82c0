// Package remote defines the transport seam between the sync core and the
// remote system of record: the per-call outcome taxonomy, the response shape
// every transport implementation must produce, and the auth-token holder.
//
// The core is transport-agnostic. Implementations (internal/remote/rest)
// classify every response — including timeouts — into exactly one Outcome so
// callers can match exhaustively instead of juggling completion callbacks.
package remote

import (
	"context"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// Outcome classifies the response to one remote operation.
type Outcome int

const (
	// OutcomeSuccess means the operation was accepted. For creates the
	// result carries the assigned global id; for fetches the resource body.
	OutcomeSuccess Outcome = iota

	// OutcomeBusy means the remote is overloaded and suggested a retry time.
	OutcomeBusy

	// OutcomeConflict means the remote copy has diverged since the last
	// sync; the result may carry the remote's current version.
	OutcomeConflict

	// OutcomeGone means the remote entity was permanently deleted.
	OutcomeGone

	// OutcomeNotFound means the remote entity does not exist.
	OutcomeNotFound

	// OutcomeAuthRequired means the request was rejected for authentication
	// reasons; the caller should re-authenticate and logically retry.
	OutcomeAuthRequired

	// OutcomeNotModified is the fetch response when the resource has not
	// changed since the caller-provided timestamp.
	OutcomeNotModified

	// OutcomeMovedPermanently means the resource lives at a new global id,
	// carried in the result.
	OutcomeMovedPermanently

	// OutcomeTransientError covers network failures, timeouts and 5xx
	// responses. Always retryable, never corrupts local state.
	OutcomeTransientError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeBusy:
		return "busy"
	case OutcomeConflict:
		return "conflict"
	case OutcomeGone:
		return "gone"
	case OutcomeNotFound:
		return "not found"
	case OutcomeAuthRequired:
		return "auth required"
	case OutcomeNotModified:
		return "not modified"
	case OutcomeMovedPermanently:
		return "moved permanently"
	case OutcomeTransientError:
		return "transient error"
	default:
		return "unknown"
	}
}

// Result is the uniform response shape of a remote entity operation.
type Result[T model.Entity] struct {
	Outcome Outcome

	// AuthToken is a fresh token issued by the remote alongside the
	// response, empty when none was issued.
	AuthToken string

	// GlobalID is the remote-assigned identifier: the new id on a create,
	// or the new location on OutcomeMovedPermanently.
	GlobalID string

	// Resource is the echoed/fetched entity body; valid when HasResource.
	Resource    T
	HasResource bool

	// Relations are the hypermedia links attached to the resource.
	Relations map[string]model.Relation

	// LastModified is the server-side modification timestamp of the
	// resource, zero when the response carried none.
	LastModified time.Time

	// RetryAfter is the server-suggested earliest retry time on
	// OutcomeBusy or OutcomeTransientError, zero when none was suggested.
	RetryAfter time.Time

	// HTTPStatus and ErrMask are diagnostics stored with a failed sync
	// attempt. Zero values mean not applicable.
	HTTPStatus int
	ErrMask    int64

	// Err is the underlying transport error on OutcomeTransientError.
	Err error
}

// Store is the per-entity-type remote operation set. Calls block until the
// response is classified; cancellation and timeouts come from ctx and are
// reported as OutcomeTransientError, never as an ambiguous state.
type Store[T model.Entity] interface {
	// CreateNew uploads a never-synced entity. Success carries the
	// assigned global id, relations and last-modified timestamp.
	CreateNew(ctx context.Context, authToken string, e T) Result[T]

	// SaveExisting uploads the working copy of an already-created entity,
	// addressed by its global id.
	SaveExisting(ctx context.Context, authToken string, e T) Result[T]

	// Delete removes the remote entity addressed by e's global id.
	Delete(ctx context.Context, authToken string, e T) Result[T]

	// Fetch downloads the entity with the given global id. A non-zero
	// ifModifiedSince makes the fetch conditional (OutcomeNotModified).
	Fetch(ctx context.Context, authToken string, globalID string, ifModifiedSince time.Time) Result[T]
}

// Changelog is a server-provided batch of per-entity snapshots since a
// given timestamp, scoped to one user. Snapshots whose DeletedAt master
// field is set are deletion markers.
type Changelog struct {
	// LastModified is the server timestamp of the batch; the client passes
	// it back as since on the next fetch.
	LastModified time.Time

	Users            []*model.User
	Vehicles         []*model.Vehicle
	FuelStations     []*model.FuelStation
	FuelPurchaseLogs []*model.FuelPurchaseLog
	EnvironmentLogs  []*model.EnvironmentLog
}

// ChangelogResult is the response shape of a changelog fetch.
type ChangelogResult struct {
	Outcome    Outcome
	AuthToken  string
	Changelog  *Changelog
	HTTPStatus int
	Err        error
}

// ChangelogSource fetches the change batch for one user's data.
type ChangelogSource interface {
	FetchChangelog(ctx context.Context, authToken, userGlobalID string, since time.Time) ChangelogResult
}

// LoginResult is the response shape of the account operations.
type LoginResult struct {
	Outcome   Outcome
	AuthToken string

	// User is the remote account's user resource; set on full Login only.
	User *model.User

	HTTPStatus int
	ErrMask    int64
	Err        error
}

// Accounts is the authentication collaborator's remote side.
type Accounts interface {
	// Login authenticates and returns both a token and the account's user
	// resource, used to link the local user to the remote account.
	Login(ctx context.Context, email, password string) LoginResult

	// LightLogin authenticates and returns a token only; used to refresh
	// an expired session without re-downloading the account.
	LightLogin(ctx context.Context, email, password string) LoginResult

	// Logout invalidates the token remotely.
	Logout(ctx context.Context, authToken string) LoginResult
}
