// Package store implements the relational store adapter of the sync core:
// one generic, table-name-parameterized component carrying the dual-copy
// (main working copy / master last-known-server copy) persistence logic,
// instantiated once per entity type through a Descriptor.
package store

import (
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// ParentCol describes how a child table references one of its owning
// entities. MainCol/MasterCol/GlobalCol are the column names present on
// both the main and master tables of the child (MainCol only on main).
type ParentCol struct {
	// MainCol references the parent's main row (set at creation time).
	MainCol string
	// MasterCol references the parent's master row (set once the parent
	// has synced).
	MasterCol string
	// GlobalCol denormalizes the parent's global identifier.
	GlobalCol string
	// Ref returns the parent link inside the entity struct.
	Ref func(e model.Entity) *model.ParentRef
}

// Descriptor parameterizes the generic store for one entity type: table
// names, domain columns, and row<->struct converters. Everything else —
// the sync metadata columns, the state machine, cascade and prune logic —
// is shared.
type Descriptor[T model.Entity] struct {
	// Name is the entity's short name, used in logs and event topics
	// ("user", "vehicle", "fuelstation", "fplog", "envlog").
	Name string

	MainTable     string
	MasterTable   string
	RelationTable string

	// ParentCols lists the owning-entity references, outermost first.
	ParentCols []ParentCol

	// DomainCols are the entity-specific columns, identical on the main
	// and master tables.
	DomainCols []string

	// DomainArgs returns the values of DomainCols, in order.
	DomainArgs func(e T) []any

	// DomainDest returns scan destinations for DomainCols, in order.
	DomainDest func(e T) []any

	// New returns a zero entity to scan into.
	New func() T
}

// mainMetaCols are the sync bookkeeping columns of every main table, in the
// canonical select/insert order. The id column is handled separately.
var mainMetaCols = []string{
	"master_id",
	"global_id",
	"date_copied_from_master",
	"edit_in_progress",
	"edit_actor_id",
	"sync_in_progress",
	"synced",
	"in_conflict",
	"deleted",
	"edit_count",
	"sync_http_resp_code",
	"sync_err_mask",
	"sync_retry_at",
	"sync_token",
}

// masterMetaCols are the master-copy columns of every master table.
var masterMetaCols = []string{
	"global_id",
	"media_type",
	"created_at",
	"updated_at",
	"deleted_at",
}

func mainMetaArgs(e model.Entity) []any {
	s := e.SyncMeta()
	m := e.MasterMeta()
	return []any{
		m.LocalMasterID,
		m.GlobalID,
		s.DateCopiedFromMaster,
		s.EditInProgress,
		s.EditActorID,
		s.SyncInProgress,
		s.Synced,
		s.InConflict,
		s.Deleted,
		s.EditCount,
		s.SyncHTTPRespCode,
		s.SyncErrMask,
		s.SyncRetryAt,
		s.SyncToken,
	}
}

func mainMetaDest(e model.Entity) []any {
	s := e.SyncMeta()
	m := e.MasterMeta()
	return []any{
		&s.LocalMainID,
		&m.LocalMasterID,
		&m.GlobalID,
		&s.DateCopiedFromMaster,
		&s.EditInProgress,
		&s.EditActorID,
		&s.SyncInProgress,
		&s.Synced,
		&s.InConflict,
		&s.Deleted,
		&s.EditCount,
		&s.SyncHTTPRespCode,
		&s.SyncErrMask,
		&s.SyncRetryAt,
		&s.SyncToken,
	}
}

func masterMetaArgs(e model.Entity) []any {
	m := e.MasterMeta()
	return []any{
		m.GlobalID,
		m.MediaType,
		m.CreatedAt,
		m.UpdatedAt,
		m.DeletedAt,
	}
}

func masterMetaDest(e model.Entity) []any {
	m := e.MasterMeta()
	return []any{
		&m.LocalMasterID,
		&m.GlobalID,
		&m.MediaType,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.DeletedAt,
	}
}

func parentMainArgs(cols []ParentCol, e model.Entity) []any {
	var args []any
	for _, pc := range cols {
		ref := pc.Ref(e)
		args = append(args, ref.MainID, ref.MasterID, ref.GlobalID)
	}
	return args
}

func parentMainDest(cols []ParentCol, e model.Entity) []any {
	var dest []any
	for _, pc := range cols {
		ref := pc.Ref(e)
		dest = append(dest, &ref.MainID, &ref.MasterID, &ref.GlobalID)
	}
	return dest
}

func parentMasterArgs(cols []ParentCol, e model.Entity) []any {
	var args []any
	for _, pc := range cols {
		ref := pc.Ref(e)
		args = append(args, ref.MasterID, ref.GlobalID)
	}
	return args
}

func parentMasterDest(cols []ParentCol, e model.Entity) []any {
	var dest []any
	for _, pc := range cols {
		ref := pc.Ref(e)
		dest = append(dest, &ref.MasterID, &ref.GlobalID)
	}
	return dest
}

func (d *Descriptor[T]) mainCols() []string {
	cols := append([]string{}, mainMetaCols...)
	for _, pc := range d.ParentCols {
		cols = append(cols, pc.MainCol, pc.MasterCol, pc.GlobalCol)
	}
	return append(cols, d.DomainCols...)
}

func (d *Descriptor[T]) masterCols() []string {
	cols := append([]string{}, masterMetaCols...)
	for _, pc := range d.ParentCols {
		cols = append(cols, pc.MasterCol, pc.GlobalCol)
	}
	return append(cols, d.DomainCols...)
}
