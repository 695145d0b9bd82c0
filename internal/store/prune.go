package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
)

// ChildFilter names a child main table and the column on it referencing
// this entity's main rows. Pruning skips parents that still have unsynced
// children, so no child ever loses the parent row it needs for
// reconciliation.
type ChildFilter struct {
	ChildMainTable string
	ParentMainCol  string
}

// PruneSynced removes fully-synced, non-dirty rows: main and master copies
// go together, atomically per row (the caller supplies the transaction).
// Rows that are mid-edit, mid-sync, unsynced, in conflict, or flagged for
// deletion are never touched. Returns the number of entities pruned.
func (s *Store[T]) PruneSynced(ctx context.Context, q dbx.DBTX, children []ChildFilter) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT id, master_id FROM %s
		WHERE synced = 1 AND edit_in_progress = 0 AND sync_in_progress = 0
		  AND in_conflict = 0 AND deleted = 0`, s.desc.MainTable)
	for _, c := range children {
		fmt.Fprintf(&sb, `
		  AND NOT EXISTS (SELECT 1 FROM %s c WHERE c.%s = %s.id AND c.synced = 0)`,
			c.ChildMainTable, c.ParentMainCol, s.desc.MainTable)
	}

	rows, err := q.QueryContext(ctx, sb.String())
	if err != nil {
		return 0, fmt.Errorf("failed to select prunable rows from %s: %w", s.desc.MainTable, err)
	}
	type pair struct{ mainID, masterID int64 }
	var victims []pair
	for rows.Next() {
		var p pair
		var masterID int64
		if err := rows.Scan(&p.mainID, &masterID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan prunable row: %w", err)
		}
		p.masterID = masterID
		victims = append(victims, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, v := range victims {
		if err := s.DeleteMain(ctx, q, v.mainID); err != nil {
			return 0, err
		}
		if err := s.DeleteMaster(ctx, q, v.masterID); err != nil {
			return 0, err
		}
	}
	return len(victims), nil
}
