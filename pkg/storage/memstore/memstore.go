// Package memstore is an in-memory core.Storage. It keeps flattened batches
// the way the SQL store lays them out and counts bulk fetches, which makes it
// the storage of choice for engine tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/leapstack-labs/objsql/pkg/core"
)

type table struct {
	desc *core.TableDescriptor
	rows map[int64]core.Row
	raw  map[int64][]core.RawRow
}

// Store holds keys and tables in memory.
type Store struct {
	mu      sync.Mutex
	keys    []core.Key
	objects map[int64][]core.ObjectInfo
	tables  map[string]*table
	strings map[int64]map[int]string
	lastID  int64

	bulkFetches int
	blobFetches int
	blobScans   int
}

// New creates an empty store.
func New() *Store {
	return &Store{
		objects: make(map[int64][]core.ObjectInfo),
		tables:  make(map[string]*table),
		strings: make(map[int64]map[int]string),
	}
}

// NextObjectID returns the first object id a new key may use.
func (s *Store) NextObjectID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastID + 1
}

// Apply stores batch as key name.
func (s *Store) Apply(name, className string, batch *core.Batch) (core.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(batch.Objects) == 0 {
		return core.Key{}, fmt.Errorf("key %q: batch holds no objects", name)
	}
	for _, rec := range batch.Classes {
		if err := s.ensure(rec.Desc); err != nil {
			return core.Key{}, err
		}
	}

	infos := append([]core.ObjectInfo(nil), batch.Objects...)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ObjID < infos[j].ObjID })
	key := core.Key{
		ID:         int64(len(s.keys) + 1),
		Name:       name,
		ClassName:  className,
		FirstObjID: infos[0].ObjID,
		LastObjID:  infos[len(infos)-1].ObjID,
		CreatedAt:  time.Now().UTC(),
	}
	s.objects[key.ID] = infos

	for _, rec := range batch.Classes {
		t := s.tables[rec.Desc.Key()]
		for _, r := range rec.Rows {
			t.rows[r.ObjID] = r.Values
		}
		for _, r := range rec.Raw {
			t.raw[r.ObjID] = append(t.raw[r.ObjID], r)
		}
	}
	for _, ls := range batch.Strings {
		if s.strings[ls.ObjID] == nil {
			s.strings[ls.ObjID] = make(map[int]string)
		}
		s.strings[ls.ObjID][ls.Slot] = ls.Value
	}

	s.keys = append(s.keys, key)
	if key.LastObjID > s.lastID {
		s.lastID = key.LastObjID
	}
	return key, nil
}

func (s *Store) ensure(desc *core.TableDescriptor) error {
	if t, ok := s.tables[desc.Key()]; ok {
		if !t.desc.SameLayout(desc) {
			return core.Errorf(core.SchemaMismatch, "Apply", "class %s version %d already stored with another layout", desc.ClassName, desc.Version)
		}
		return nil
	}
	s.tables[desc.Key()] = &table{
		desc: desc,
		rows: make(map[int64]core.Row),
		raw:  make(map[int64][]core.RawRow),
	}
	return nil
}

// Key returns a stored key by name.
func (s *Store) Key(name string) (core.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.Name == name {
			return k, true
		}
	}
	return core.Key{}, false
}

// BulkFetches returns the number of BulkFetch calls served.
func (s *Store) BulkFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bulkFetches
}

// BlobFetches returns the number of FetchBlob calls served.
func (s *Store) BlobFetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobFetches
}

// BlobScans returns the number of BlobObjects calls served.
func (s *Store) BlobScans() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blobScans
}

// SetRaw replaces the raw values of one object. Tests use it to corrupt stored data.
func (s *Store) SetRaw(desc *core.TableDescriptor, objID int64, values []core.BlobValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[desc.Key()]
	if !ok {
		return
	}
	rows := make([]core.RawRow, len(values))
	for i, v := range values {
		rows[i] = core.RawRow{ObjID: objID, RawID: i, BlobValue: v}
	}
	t.raw[objID] = rows
}

// Raw returns the raw values of one object.
func (s *Store) Raw(desc *core.TableDescriptor, objID int64) []core.BlobValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blob(desc, objID)
}

// FindTableDescriptor implements core.Storage.
func (s *Store) FindTableDescriptor(_ context.Context, className string, version int) (*core.TableDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[core.DescriptorKey(className, version)]; ok {
		return t.desc, nil
	}
	return nil, nil
}

// BulkFetch implements core.Storage.
func (s *Store) BulkFetch(_ context.Context, desc *core.TableDescriptor, lo, hi int64) (*core.ResultSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkFetches++

	t, ok := s.tables[desc.Key()]
	if !ok {
		return nil, fmt.Errorf("table %s does not exist", desc.ClassTable)
	}
	rs := &core.ResultSet{Desc: t.desc}
	for id := range t.rows {
		if id >= lo && id <= hi {
			rs.IDs = append(rs.IDs, id)
		}
	}
	sort.Slice(rs.IDs, func(i, j int) bool { return rs.IDs[i] < rs.IDs[j] })
	for _, id := range rs.IDs {
		rs.Rows = append(rs.Rows, t.rows[id])
	}
	return rs, nil
}

// BlobObjects implements core.Storage.
func (s *Store) BlobObjects(_ context.Context, desc *core.TableDescriptor, lo, hi int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobScans++

	t, ok := s.tables[desc.Key()]
	if !ok {
		return nil, nil
	}
	var ids []int64
	for id, rows := range t.raw {
		if id >= lo && id <= hi && len(rows) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FetchBlob implements core.Storage.
func (s *Store) FetchBlob(_ context.Context, objID int64, desc *core.TableDescriptor) ([]core.BlobValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobFetches++
	return s.blob(desc, objID), nil
}

func (s *Store) blob(desc *core.TableDescriptor, objID int64) []core.BlobValue {
	t, ok := s.tables[desc.Key()]
	if !ok {
		return nil
	}
	rows := t.raw[objID]
	out := make([]core.BlobValue, len(rows))
	for i, r := range rows {
		out[i] = r.BlobValue
	}
	return out
}

// ObjectsInfo implements core.Storage.
func (s *Store) ObjectsInfo(_ context.Context, keyID int64) ([]core.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos, ok := s.objects[keyID]
	if !ok {
		return nil, fmt.Errorf("key %d does not exist", keyID)
	}
	return infos, nil
}

// ResolveLongString implements core.Storage.
func (s *Store) ResolveLongString(_ context.Context, objID int64, slot int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.strings[objID][slot]
	if !ok {
		return "", core.Errorf(core.MissingRow, "ResolveLongString", "no long string %d of object %d", slot, objID)
	}
	return v, nil
}
