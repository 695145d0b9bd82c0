// Package model defines the persisted record shapes of the fueltrack sync
// core: the five domain entities, the master/main copy metadata they embed,
// actor identifiers, and the user-faulted validation bitmasks.
//
// Every entity is stored as two related rows. The master copy is the last
// version known to have been accepted by the remote store; the main copy is
// the locally mutable working copy. An entity struct embeds MasterMetadata
// and SyncMetadata by value; master rows simply ignore the sync fields.
package model

import (
	"database/sql"
	"time"
)

// ActorID identifies a logical editor of entities.
type ActorID string

const (
	// ActorInteractive is the foreground, user-driven editor.
	ActorInteractive ActorID = "interactive"
	// ActorBackground is the timer-driven background flusher.
	ActorBackground ActorID = "background"
)

// Relation is a named hypermedia link attached to a master copy by the
// remote store. The core persists relations opaquely for the transport
// collaborator; it never interprets them.
type Relation struct {
	Name      string
	URI       string
	MediaType string
}

// MasterMetadata holds the fields of the last-known-server copy.
type MasterMetadata struct {
	// LocalMasterID is the sqlite rowid of the master row. Stable for the
	// row's lifetime.
	LocalMasterID sql.NullInt64

	// GlobalID is the remote-assigned identifier. Assigned exactly once,
	// on the first successful create; never reassigned.
	GlobalID sql.NullString

	MediaType string
	Relations map[string]Relation

	CreatedAt sql.NullTime
	UpdatedAt sql.NullTime
	// DeletedAt is the remote soft-delete marker.
	DeletedAt sql.NullTime
}

// SyncMetadata holds the main-copy bookkeeping driving the per-entity state
// machine.
type SyncMetadata struct {
	// LocalMainID is the sqlite rowid of the main row. Stable for the
	// row's lifetime.
	LocalMainID sql.NullInt64

	// DateCopiedFromMaster records when the main row was last reset from
	// its master copy, for staleness detection.
	DateCopiedFromMaster sql.NullTime

	EditInProgress bool
	EditActorID    sql.NullString

	SyncInProgress bool
	Synced         bool
	InConflict     bool
	// Deleted marks the row for deletion, awaiting remote confirmation.
	Deleted bool

	// EditCount is the nesting depth of begin/end edit sessions.
	EditCount uint

	// Diagnostics from the last failed sync attempt.
	SyncHTTPRespCode sql.NullInt64
	SyncErrMask      sql.NullInt64
	// SyncRetryAt is the earliest time the scheduler should retry.
	SyncRetryAt sql.NullTime

	// SyncToken identifies the in-flight sync attempt. A completion whose
	// token no longer matches the row (the attempt was cancelled) is
	// discarded instead of applied.
	SyncToken sql.NullString
}

// ParentRef links a child row to its owning entity. MainID points at the
// parent's main row, MasterID at its master row; MasterID stays NULL until
// the parent has synced. GlobalID is denormalized from the parent's master
// copy for the transport collaborator.
type ParentRef struct {
	MainID   sql.NullInt64
	MasterID sql.NullInt64
	GlobalID sql.NullString
}

// Entity is implemented by pointers to the five domain entities; it exposes
// the embedded metadata to the generic store and sync layers.
type Entity interface {
	MasterMeta() *MasterMetadata
	SyncMeta() *SyncMetadata
}

// EditableBy reports whether actor may acquire the edit lock.
func (m *SyncMetadata) EditableBy(actor ActorID) bool {
	if m.SyncInProgress || m.Deleted || m.InConflict {
		return false
	}
	if !m.EditInProgress {
		return true
	}
	return m.EditActorID.Valid && ActorID(m.EditActorID.String) == actor
}

// ReadyToSync reports whether the row should be picked up by a flush pass
// at time now.
func (m *SyncMetadata) ReadyToSync(now time.Time) bool {
	if m.Synced || m.EditInProgress || m.SyncInProgress || m.InConflict {
		return false
	}
	if m.SyncRetryAt.Valid && m.SyncRetryAt.Time.After(now) {
		return false
	}
	return true
}

// ClearSyncDiagnostics resets the failure bookkeeping of the last attempt.
func (m *SyncMetadata) ClearSyncDiagnostics() {
	m.SyncHTTPRespCode = sql.NullInt64{}
	m.SyncErrMask = sql.NullInt64{}
	m.SyncRetryAt = sql.NullTime{}
}

// IncrementEditCount bumps the edit-session nesting depth.
func (m *SyncMetadata) IncrementEditCount() uint {
	m.EditCount++
	return m.EditCount
}

// DecrementEditCount lowers the nesting depth, stopping at zero.
func (m *SyncMetadata) DecrementEditCount() uint {
	if m.EditCount > 0 {
		m.EditCount--
	}
	return m.EditCount
}
