package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/fueltrack/internal/common"
	"github.com/dmitrijs2005/fueltrack/internal/dbx"
	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
)

// Store is the generic two-copy persistence component for one entity type.
// All methods take a dbx.DBTX so callers decide the transaction scope; the
// coordinator runs every mutation through the serialized writer.
type Store[T model.Entity] struct {
	desc Descriptor[T]
	log  logging.Logger
}

func New[T model.Entity](desc Descriptor[T], log logging.Logger) *Store[T] {
	if log == nil {
		log = logging.Nop()
	}
	return &Store[T]{desc: desc, log: log.With("table", desc.MainTable)}
}

// Desc exposes the descriptor for collaborators that need table metadata
// (pruning filters, child linking).
func (s *Store[T]) Desc() Descriptor[T] { return s.desc }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func setClause(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = c + " = ?"
	}
	return strings.Join(parts, ", ")
}

// InsertMain inserts e's working copy and records the assigned local id.
func (s *Store[T]) InsertMain(ctx context.Context, q dbx.DBTX, e T) error {
	cols := s.desc.mainCols()
	args := append(mainMetaArgs(e), parentMainArgs(s.desc.ParentCols, e)...)
	args = append(args, s.desc.DomainArgs(e)...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.desc.MainTable, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.desc.MainTable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.SyncMeta().LocalMainID = sql.NullInt64{Int64: id, Valid: true}
	return nil
}

// InsertMaster inserts e's master copy (and its relation links) and records
// the assigned local master id on e.
func (s *Store[T]) InsertMaster(ctx context.Context, q dbx.DBTX, e T) error {
	cols := s.desc.masterCols()
	args := append(masterMetaArgs(e), parentMasterArgs(s.desc.ParentCols, e)...)
	args = append(args, s.desc.DomainArgs(e)...)

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		s.desc.MasterTable, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", s.desc.MasterTable, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.MasterMeta().LocalMasterID = sql.NullInt64{Int64: id, Valid: true}
	return s.replaceRelations(ctx, q, e)
}

// UpdateMain overwrites the main row identified by e's local main id.
func (s *Store[T]) UpdateMain(ctx context.Context, q dbx.DBTX, e T) error {
	if !e.SyncMeta().LocalMainID.Valid {
		return fmt.Errorf("update %s: %w", s.desc.MainTable, common.ErrorNotFound)
	}
	cols := s.desc.mainCols()
	args := append(mainMetaArgs(e), parentMainArgs(s.desc.ParentCols, e)...)
	args = append(args, s.desc.DomainArgs(e)...)
	args = append(args, e.SyncMeta().LocalMainID.Int64)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, s.desc.MainTable, setClause(cols))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.desc.MainTable, err)
	}
	return s.expectOneRow(res, s.desc.MainTable)
}

// UpdateMaster overwrites the master row identified by e's local master id
// and replaces its relation links.
func (s *Store[T]) UpdateMaster(ctx context.Context, q dbx.DBTX, e T) error {
	if !e.MasterMeta().LocalMasterID.Valid {
		return fmt.Errorf("update %s: %w", s.desc.MasterTable, common.ErrorNoMaster)
	}
	cols := s.desc.masterCols()
	args := append(masterMetaArgs(e), parentMasterArgs(s.desc.ParentCols, e)...)
	args = append(args, s.desc.DomainArgs(e)...)
	args = append(args, e.MasterMeta().LocalMasterID.Int64)

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, s.desc.MasterTable, setClause(cols))
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", s.desc.MasterTable, err)
	}
	if err := s.expectOneRow(res, s.desc.MasterTable); err != nil {
		return err
	}
	return s.replaceRelations(ctx, q, e)
}

func (s *Store[T]) expectOneRow(res sql.Result, table string) error {
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return fmt.Errorf("%s: %w", table, common.ErrorNotFound)
	}
	return nil
}

func (s *Store[T]) scanMain(rows *sql.Rows) (T, error) {
	e := s.desc.New()
	dest := append(mainMetaDest(e), parentMainDest(s.desc.ParentCols, e)...)
	dest = append(dest, s.desc.DomainDest(e)...)
	if err := rows.Scan(dest...); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to scan %s row: %w", s.desc.MainTable, err)
	}
	return e, nil
}

func (s *Store[T]) scanMaster(rows *sql.Rows) (T, error) {
	e := s.desc.New()
	dest := append(masterMetaDest(e), parentMasterDest(s.desc.ParentCols, e)...)
	dest = append(dest, s.desc.DomainDest(e)...)
	if err := rows.Scan(dest...); err != nil {
		var zero T
		return zero, fmt.Errorf("failed to scan %s row: %w", s.desc.MasterTable, err)
	}
	return e, nil
}

func (s *Store[T]) mainSelect() string {
	cols := append([]string{"id"}, s.desc.mainCols()...)
	return fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), s.desc.MainTable)
}

func (s *Store[T]) masterSelect() string {
	cols := append([]string{"id"}, s.desc.masterCols()...)
	return fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), s.desc.MasterTable)
}

func (s *Store[T]) queryMains(ctx context.Context, q dbx.DBTX, suffix string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, s.mainSelect()+suffix, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", s.desc.MainTable, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		e, err := s.scanMain(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store[T]) queryMasters(ctx context.Context, q dbx.DBTX, suffix string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, s.masterSelect()+suffix, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select from %s: %w", s.desc.MasterTable, err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		e, err := s.scanMaster(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store[T]) oneOrNotFound(list []T, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if len(list) == 0 {
		return zero, common.ErrorNotFound
	}
	return list[0], nil
}

// MainByID fetches the main row with the given local id.
func (s *Store[T]) MainByID(ctx context.Context, q dbx.DBTX, id int64) (T, error) {
	list, err := s.queryMains(ctx, q, ` WHERE id = ?`, id)
	return s.oneOrNotFound(list, err)
}

// MainByMasterID fetches the main row linked to the given master row.
func (s *Store[T]) MainByMasterID(ctx context.Context, q dbx.DBTX, masterID int64) (T, error) {
	list, err := s.queryMains(ctx, q, ` WHERE master_id = ?`, masterID)
	return s.oneOrNotFound(list, err)
}

// MainByGlobalID fetches the main row carrying the given global identifier.
func (s *Store[T]) MainByGlobalID(ctx context.Context, q dbx.DBTX, globalID string) (T, error) {
	list, err := s.queryMains(ctx, q, ` WHERE global_id = ?`, globalID)
	return s.oneOrNotFound(list, err)
}

// MasterByID fetches the master row with the given local id.
func (s *Store[T]) MasterByID(ctx context.Context, q dbx.DBTX, id int64) (T, error) {
	list, err := s.queryMasters(ctx, q, ` WHERE id = ?`, id)
	e, err := s.oneOrNotFound(list, err)
	if err != nil {
		return e, err
	}
	return e, s.loadRelations(ctx, q, e)
}

// MasterByGlobalID fetches the master row carrying the given global
// identifier.
func (s *Store[T]) MasterByGlobalID(ctx context.Context, q dbx.DBTX, globalID string) (T, error) {
	list, err := s.queryMasters(ctx, q, ` WHERE global_id = ?`, globalID)
	e, err := s.oneOrNotFound(list, err)
	if err != nil {
		return e, err
	}
	return e, s.loadRelations(ctx, q, e)
}

// ListQuery filters and pages a main-table listing.
type ListQuery struct {
	// Where is an optional filter over main-table columns ("user_main_id = ?").
	Where string
	Args  []any
	// OrderBy is an optional "col dir" clause; defaults to "id ASC".
	OrderBy string
	// PageSize caps the result; zero means no cap.
	PageSize int
	Offset   int
}

// ListMains returns main rows matching the query.
func (s *Store[T]) ListMains(ctx context.Context, q dbx.DBTX, lq ListQuery) ([]T, error) {
	var sb strings.Builder
	args := append([]any{}, lq.Args...)
	if lq.Where != "" {
		sb.WriteString(` WHERE ` + lq.Where)
	}
	orderBy := lq.OrderBy
	if orderBy == "" {
		orderBy = "id ASC"
	}
	sb.WriteString(` ORDER BY ` + orderBy)
	if lq.PageSize > 0 {
		sb.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, lq.PageSize, lq.Offset)
	}
	return s.queryMains(ctx, q, sb.String(), args...)
}

// DeleteMain removes the main row with the given local id. Children main
// rows cascade via foreign keys.
func (s *Store[T]) DeleteMain(ctx context.Context, q dbx.DBTX, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.desc.MainTable)
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.desc.MainTable, err)
	}
	return nil
}

// DeleteMaster removes the master row with the given local id. Children
// master rows and relation links cascade via foreign keys.
func (s *Store[T]) DeleteMaster(ctx context.Context, q dbx.DBTX, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.desc.MasterTable)
	if _, err := q.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", s.desc.MasterTable, err)
	}
	return nil
}

// DeleteBothCopies physically removes e's main and master rows in one shot.
// Used on remote "gone" and on confirmed deletions.
func (s *Store[T]) DeleteBothCopies(ctx context.Context, q dbx.DBTX, e T) error {
	if e.SyncMeta().LocalMainID.Valid {
		if err := s.DeleteMain(ctx, q, e.SyncMeta().LocalMainID.Int64); err != nil {
			return err
		}
	}
	if e.MasterMeta().LocalMasterID.Valid {
		if err := s.DeleteMaster(ctx, q, e.MasterMeta().LocalMasterID.Int64); err != nil {
			return err
		}
	}
	return nil
}

// CountWhere counts main rows matching the filter.
func (s *Store[T]) CountWhere(ctx context.Context, q dbx.DBTX, where string, args ...any) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.desc.MainTable)
	if where != "" {
		query += ` WHERE ` + where
	}
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.desc.MainTable, err)
	}
	return n, nil
}

// CountUnsynced counts main rows whose working copy differs from the last
// accepted master copy (includes rows mid-edit and in conflict).
func (s *Store[T]) CountUnsynced(ctx context.Context, q dbx.DBTX, extraWhere string, args ...any) (int, error) {
	where := `synced = 0`
	if extraWhere != "" {
		where += ` AND ` + extraWhere
	}
	return s.CountWhere(ctx, q, where, args...)
}

// CountSyncNeeded counts main rows a flush pass would pick up right now
// (unsynced, lock-free, conflict-free).
func (s *Store[T]) CountSyncNeeded(ctx context.Context, q dbx.DBTX, extraWhere string, args ...any) (int, error) {
	where := `synced = 0 AND edit_in_progress = 0 AND sync_in_progress = 0 AND in_conflict = 0`
	if extraWhere != "" {
		where += ` AND ` + extraWhere
	}
	return s.CountWhere(ctx, q, where, args...)
}

// IsNotFound reports whether err is the store's not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrorNotFound)
}
