package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// BulkFetch implements core.Storage.
func (s *Store) BulkFetch(ctx context.Context, desc *core.TableDescriptor, lo, hi int64) (*core.ResultSet, error) {
	if !desc.HasClassTable() {
		return &core.ResultSet{Desc: desc}, nil
	}
	cols := []string{"obj_id"}
	for _, c := range desc.Columns {
		cols = append(cols, s.ident(c.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE obj_id BETWEEN ? AND ? ORDER BY obj_id", //nolint:gosec // identifiers are quoted
		strings.Join(cols, ", "), s.ident(desc.ClassTable))

	rows, err := s.db.QueryContext(ctx, s.q(query), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc.ClassTable, err)
	}
	defer func() { _ = rows.Close() }()

	rs := &core.ResultSet{Desc: desc}
	values := make([]sql.NullString, len(desc.Columns))
	dest := make([]any, len(desc.Columns)+1)
	for i := range values {
		dest[i+1] = &values[i]
	}
	for rows.Next() {
		var id int64
		dest[0] = &id
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", desc.ClassTable, err)
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			row[i] = v.String
		}
		rs.IDs = append(rs.IDs, id)
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", desc.ClassTable, err)
	}
	return rs, nil
}

// BlobObjects implements core.Storage.
func (s *Store) BlobObjects(ctx context.Context, desc *core.TableDescriptor, lo, hi int64) ([]int64, error) {
	query := fmt.Sprintf("SELECT DISTINCT obj_id FROM %s WHERE obj_id BETWEEN ? AND ? ORDER BY obj_id", //nolint:gosec // identifiers are quoted
		s.ident(desc.RawTable))
	rows, err := s.db.QueryContext(ctx, s.q(query), lo, hi)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc.RawTable, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", desc.RawTable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", desc.RawTable, err)
	}
	return ids, nil
}

// FetchBlob implements core.Storage.
func (s *Store) FetchBlob(ctx context.Context, objID int64, desc *core.TableDescriptor) ([]core.BlobValue, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE obj_id = ? ORDER BY raw_id", //nolint:gosec // identifiers are quoted
		s.ident("field"), s.ident("type"), s.ident("value"), s.ident(desc.RawTable))
	rows, err := s.db.QueryContext(ctx, s.q(query), objID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", desc.RawTable, err)
	}
	defer func() { _ = rows.Close() }()

	var out []core.BlobValue
	for rows.Next() {
		var v core.BlobValue
		if err := rows.Scan(&v.Field, &v.Tag, &v.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", desc.RawTable, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", desc.RawTable, err)
	}
	return out, nil
}

// ObjectsInfo implements core.Storage.
func (s *Store) ObjectsInfo(ctx context.Context, keyID int64) ([]core.ObjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT obj_id, class_name, version FROM objsql_objects WHERE key_id = ? ORDER BY obj_id`), keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query objects of key %d: %w", keyID, err)
	}
	defer func() { _ = rows.Close() }()

	var infos []core.ObjectInfo
	for rows.Next() {
		var o core.ObjectInfo
		if err := rows.Scan(&o.ObjID, &o.ClassName, &o.Version); err != nil {
			return nil, fmt.Errorf("failed to scan object info: %w", err)
		}
		infos = append(infos, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}
	if len(infos) == 0 {
		return nil, core.Errorf(core.MissingRow, "ObjectsInfo", "key %d has no stored objects", keyID)
	}
	return infos, nil
}

// ResolveLongString implements core.Storage.
func (s *Store) ResolveLongString(ctx context.Context, objID int64, slot int) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT value FROM objsql_strings WHERE obj_id = ? AND str_id = ?`), objID, slot).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.Errorf(core.MissingRow, "ResolveLongString", "no long string %d of object %d", slot, objID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query long string: %w", err)
	}
	return v, nil
}
