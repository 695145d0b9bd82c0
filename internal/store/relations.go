package store

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// Relation links live on the master copy only; they are replaced wholesale
// whenever the remote echoes a resource back.

func (s *Store[T]) replaceRelations(ctx context.Context, q dbx.DBTX, e T) error {
	m := e.MasterMeta()
	if !m.LocalMasterID.Valid {
		return nil
	}
	del := fmt.Sprintf(`DELETE FROM %s WHERE master_id = ?`, s.desc.RelationTable)
	if _, err := q.ExecContext(ctx, del, m.LocalMasterID.Int64); err != nil {
		return fmt.Errorf("failed to clear %s: %w", s.desc.RelationTable, err)
	}
	ins := fmt.Sprintf(`INSERT INTO %s (master_id, name, uri, media_type) VALUES (?, ?, ?, ?)`,
		s.desc.RelationTable)
	for _, rel := range m.Relations {
		if _, err := q.ExecContext(ctx, ins, m.LocalMasterID.Int64, rel.Name, rel.URI, rel.MediaType); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", s.desc.RelationTable, err)
		}
	}
	return nil
}

func (s *Store[T]) loadRelations(ctx context.Context, q dbx.DBTX, e T) error {
	m := e.MasterMeta()
	if !m.LocalMasterID.Valid {
		return nil
	}
	query := fmt.Sprintf(`SELECT name, uri, media_type FROM %s WHERE master_id = ?`, s.desc.RelationTable)
	rows, err := q.QueryContext(ctx, query, m.LocalMasterID.Int64)
	if err != nil {
		return fmt.Errorf("failed to select from %s: %w", s.desc.RelationTable, err)
	}
	defer rows.Close()

	rels := make(map[string]model.Relation)
	for rows.Next() {
		var r model.Relation
		if err := rows.Scan(&r.Name, &r.URI, &r.MediaType); err != nil {
			return fmt.Errorf("failed to scan %s row: %w", s.desc.RelationTable, err)
		}
		rels[r.Name] = r
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(rels) > 0 {
		m.Relations = rels
	}
	return nil
}
