package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leapstack-labs/objsql/pkg/core"
)

// NextObjectID returns the first object id a new key may use.
func (s *Store) NextObjectID(ctx context.Context) (int64, error) {
	var next int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(last_obj_id), 0) + 1 FROM objsql_keys`).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to allocate object ids: %w", err)
	}
	return next, nil
}

// WriteKey stores batch as key name in one transaction. Nothing is stored
// when any part fails.
func (s *Store) WriteKey(ctx context.Context, name, className string, batch *core.Batch) (core.Key, error) {
	if batch == nil || len(batch.Objects) == 0 {
		return core.Key{}, fmt.Errorf("key %q: batch holds no objects", name)
	}
	infos := append([]core.ObjectInfo(nil), batch.Objects...)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ObjID < infos[j].ObjID })

	key := core.Key{
		UUID:       uuid.NewString(),
		Name:       name,
		ClassName:  className,
		FirstObjID: infos[0].ObjID,
		LastObjID:  infos[len(infos)-1].ObjID,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM objsql_keys WHERE name = ?`), name).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up key %q: %w", name, err)
		}
		if exists > 0 {
			return fmt.Errorf("key %q already exists", name)
		}
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(key_id), 0) + 1 FROM objsql_keys`).Scan(&key.ID); err != nil {
			return fmt.Errorf("failed to allocate key id: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.q(
			`INSERT INTO objsql_keys (key_id, uuid, name, class_name, first_obj_id, last_obj_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			key.ID, key.UUID, key.Name, key.ClassName, key.FirstObjID, key.LastObjID, key.CreatedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to insert key %q: %w", name, err)
		}

		for _, o := range infos {
			if _, err := tx.ExecContext(ctx, s.q(
				`INSERT INTO objsql_objects (obj_id, key_id, class_name, version) VALUES (?, ?, ?, ?)`),
				o.ObjID, key.ID, o.ClassName, o.Version,
			); err != nil {
				return fmt.Errorf("failed to insert object %d: %w", o.ObjID, err)
			}
		}

		for _, rec := range batch.Classes {
			if err := s.writeRecords(ctx, tx, rec); err != nil {
				return err
			}
		}

		for _, ls := range batch.Strings {
			if _, err := tx.ExecContext(ctx, s.q(
				`INSERT INTO objsql_strings (obj_id, str_id, value) VALUES (?, ?, ?)`),
				ls.ObjID, ls.Slot, ls.Value,
			); err != nil {
				return fmt.Errorf("failed to insert long string %d of object %d: %w", ls.Slot, ls.ObjID, err)
			}
		}
		return nil
	})
	if err != nil {
		return core.Key{}, err
	}

	s.logger.Debug("stored key",
		"key", name,
		"key_id", key.ID,
		"objects", len(infos),
		"classes", len(batch.Classes),
		"strings", len(batch.Strings))
	return key, nil
}

// writeRecords stores the rows and raw entries of one (class, version).
func (s *Store) writeRecords(ctx context.Context, tx *sql.Tx, rec *core.ClassRecords) error {
	desc, err := s.ensureDescriptor(ctx, tx, rec.Desc)
	if err != nil {
		return err
	}

	if len(rec.Rows) > 0 {
		cols := []string{"obj_id"}
		for _, c := range desc.Columns {
			cols = append(cols, s.ident(c.Name))
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // identifiers are quoted
			s.ident(desc.ClassTable), strings.Join(cols, ", "), s.dialect.Placeholders(1, len(cols)))
		for _, r := range rec.Rows {
			if len(r.Values) != len(desc.Columns) {
				return core.Errorf(core.SchemaMismatch, "WriteKey", "row of object %d has %d values for %d columns of %s",
					r.ObjID, len(r.Values), len(desc.Columns), desc.ClassTable)
			}
			args := make([]any, 0, len(cols))
			args = append(args, r.ObjID)
			for _, v := range r.Values {
				args = append(args, v)
			}
			if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
				return fmt.Errorf("failed to insert object %d into %s: %w", r.ObjID, desc.ClassTable, err)
			}
		}
	}

	if len(rec.Raw) > 0 {
		insert := fmt.Sprintf("INSERT INTO %s (obj_id, raw_id, %s, %s, %s) VALUES (%s)", //nolint:gosec // identifiers are quoted
			s.ident(desc.RawTable), s.ident("field"), s.ident("type"), s.ident("value"), s.dialect.Placeholders(1, 5))
		for _, r := range rec.Raw {
			if _, err := tx.ExecContext(ctx, insert, r.ObjID, r.RawID, r.Field, r.Tag, r.Value); err != nil {
				return fmt.Errorf("failed to insert raw entry %d of object %d into %s: %w", r.RawID, r.ObjID, desc.RawTable, err)
			}
		}
	}
	return nil
}
