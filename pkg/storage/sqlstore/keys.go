package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// ClassTable summarizes the stored tables of one (class, version).
type ClassTable struct {
	Desc *core.TableDescriptor
	// Rows is the number of class table rows, zero without a class table.
	Rows int64
	// RawEntries is the number of raw table entries.
	RawEntries int64
}

const keyColumns = `key_id, uuid, name, class_name, first_obj_id, last_obj_id, created_at`

func scanKey(sc interface{ Scan(dest ...any) error }) (core.Key, error) {
	var k core.Key
	var created string
	if err := sc.Scan(&k.ID, &k.UUID, &k.Name, &k.ClassName, &k.FirstObjID, &k.LastObjID, &created); err != nil {
		return core.Key{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return core.Key{}, fmt.Errorf("invalid creation time %q of key %q: %w", created, k.Name, err)
	}
	k.CreatedAt = t
	return k, nil
}

// Keys returns all stored keys ordered by id.
func (s *Store) Keys(ctx context.Context) ([]core.Key, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+keyColumns+` FROM objsql_keys ORDER BY key_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []core.Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating keys: %w", err)
	}
	return keys, nil
}

// Key returns a stored key by name.
func (s *Store) Key(ctx context.Context, name string) (core.Key, error) {
	return s.key(ctx, s.db, name)
}

func (s *Store) key(ctx context.Context, q querier, name string) (core.Key, error) {
	k, err := scanKey(q.QueryRowContext(ctx, s.q(`SELECT `+keyColumns+` FROM objsql_keys WHERE name = ?`), name))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Key{}, core.Errorf(core.MissingRow, "Key", "no key named %q", name)
	}
	if err != nil {
		return core.Key{}, fmt.Errorf("failed to look up key %q: %w", name, err)
	}
	return k, nil
}

// DeleteKey removes a key with all of its objects.
func (s *Store) DeleteKey(ctx context.Context, name string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		k, err := s.key(ctx, tx, name)
		if err != nil {
			return err
		}
		descs, err := s.descriptors(ctx, tx)
		if err != nil {
			return err
		}

		var stmts []string
		for _, d := range descs {
			if d.HasClassTable() {
				stmts = append(stmts, fmt.Sprintf("DELETE FROM %s WHERE obj_id BETWEEN ? AND ?", s.ident(d.ClassTable)))
			}
			stmts = append(stmts, fmt.Sprintf("DELETE FROM %s WHERE obj_id BETWEEN ? AND ?", s.ident(d.RawTable)))
		}
		stmts = append(stmts, `DELETE FROM objsql_strings WHERE obj_id BETWEEN ? AND ?`)
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, s.q(stmt), k.FirstObjID, k.LastObjID); err != nil {
				return fmt.Errorf("failed to delete objects of key %q: %w", name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM objsql_objects WHERE key_id = ?`), k.ID); err != nil {
			return fmt.Errorf("failed to delete object infos of key %q: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM objsql_keys WHERE key_id = ?`), k.ID); err != nil {
			return fmt.Errorf("failed to delete key %q: %w", name, err)
		}
		s.logger.Debug("deleted key", "key", name, "key_id", k.ID)
		return nil
	})
}

// descriptors returns every stored descriptor ordered by class and version.
func (s *Store) descriptors(ctx context.Context, q querier) ([]*core.TableDescriptor, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT class_name, version FROM objsql_classes ORDER BY class_name, version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classes: %w", err)
	}
	type pair struct {
		name    string
		version int
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.name, &p.version); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan class: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error iterating classes: %w", err)
	}
	// Columns are loaded after the cursor is closed, the connection may be the only one.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close class cursor: %w", err)
	}

	descs := make([]*core.TableDescriptor, 0, len(pairs))
	for _, p := range pairs {
		d, err := s.loadDescriptor(ctx, q, p.name, p.version)
		if err != nil {
			return nil, err
		}
		if d != nil {
			descs = append(descs, d)
		}
	}
	return descs, nil
}

// Classes returns every stored (class, version) with its table sizes.
func (s *Store) Classes(ctx context.Context) ([]ClassTable, error) {
	descs, err := s.descriptors(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]ClassTable, 0, len(descs))
	for _, d := range descs {
		ct := ClassTable{Desc: d}
		if d.HasClassTable() {
			if ct.Rows, err = s.count(ctx, d.ClassTable); err != nil {
				return nil, err
			}
		}
		if ct.RawEntries, err = s.count(ctx, d.RawTable); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, nil
}

func (s *Store) count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.ident(table)).Scan(&n); err != nil { //nolint:gosec // identifier is quoted
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
