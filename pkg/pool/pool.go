// Package pool caches class table content for one read pass.
//
// Each (class, version) table is fetched at most once per pass, in one bulk
// query over the id range of the pass, and then served by object id.
package pool

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// Result is the cached content of one class table.
type Result struct {
	Desc  *core.TableDescriptor
	index map[int64]int
	rows  []core.Row
}

func newResult(desc *core.TableDescriptor, rs *core.ResultSet) *Result {
	r := &Result{Desc: desc, index: make(map[int64]int)}
	if rs == nil {
		return r
	}
	r.rows = rs.Rows
	for i, id := range rs.IDs {
		r.index[id] = i
	}
	return r
}

// RowFor returns the row of an object.
func (r *Result) RowFor(objID int64) (core.Row, bool) {
	i, ok := r.index[objID]
	if !ok {
		return nil, false
	}
	return r.rows[i], true
}

// Len returns the number of cached rows.
func (r *Result) Len() int {
	return len(r.rows)
}

// Pool is the per-pass row cache.
type Pool struct {
	storage core.Storage
	lo, hi  int64
	descs   map[string]*core.TableDescriptor
	results map[string]*Result
	blobIDs map[string]map[int64]bool
	fetches int
}

// New creates a pool over the object id range [lo, hi].
func New(storage core.Storage, lo, hi int64) *Pool {
	return &Pool{
		storage: storage,
		lo:      lo,
		hi:      hi,
		descs:   make(map[string]*core.TableDescriptor),
		results: make(map[string]*Result),
		blobIDs: make(map[string]map[int64]bool),
	}
}

// Descriptor returns the stored descriptor of a (class, version) pair.
func (p *Pool) Descriptor(ctx context.Context, className string, version int) (*core.TableDescriptor, error) {
	key := core.DescriptorKey(className, version)
	if d, ok := p.descs[key]; ok {
		return d, nil
	}
	d, err := p.storage.FindTableDescriptor(ctx, className, version)
	if err != nil {
		return nil, fmt.Errorf("failed to find table of %s version %d: %w", className, version, err)
	}
	if d == nil {
		return nil, core.Errorf(core.SchemaMismatch, "Descriptor", "no table stored for class %s version %d", className, version)
	}
	p.descs[key] = d
	return d, nil
}

// GetOrFetch returns the cached content of desc's class table, fetching it on first use.
// A cached entry whose descriptor differs from desc is a schema mismatch.
func (p *Pool) GetOrFetch(ctx context.Context, desc *core.TableDescriptor) (*Result, error) {
	if r, ok := p.results[desc.Key()]; ok {
		if !r.Desc.SameLayout(desc) {
			return nil, core.Errorf(core.SchemaMismatch, "GetOrFetch", "class %s version %d requested with a different table layout", desc.ClassName, desc.Version)
		}
		return r, nil
	}

	rs, err := p.storage.BulkFetch(ctx, desc, p.lo, p.hi)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", desc.ClassTable, err)
	}
	p.fetches++

	r := newResult(desc, rs)
	p.results[desc.Key()] = r
	return r, nil
}

// Fetches returns the number of bulk fetches performed.
func (p *Pool) Fetches() int {
	return p.fetches
}

// ObjectData builds the cursor over one object's data for desc.
func (p *Pool) ObjectData(ctx context.Context, objID int64, desc *core.TableDescriptor) (*ObjectData, error) {
	var row core.Row
	if desc.HasClassTable() {
		res, err := p.GetOrFetch(ctx, desc)
		if err != nil {
			return nil, err
		}
		var ok bool
		row, ok = res.RowFor(objID)
		if !ok {
			return nil, core.Errorf(core.MissingRow, "ObjectData", "no row for object %d in %s", objID, desc.ClassTable)
		}
	}

	has, err := p.hasBlob(ctx, objID, desc)
	if err != nil {
		return nil, err
	}
	var blobs []core.BlobValue
	if has {
		blobs, err = p.storage.FetchBlob(ctx, objID, desc)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch raw data of object %d from %s: %w", objID, desc.RawTable, err)
		}
	}
	return NewObjectData(objID, desc, row, blobs), nil
}

// hasBlob reports whether objID has raw values for desc. The ids with raw
// values are looked up once per descriptor over the id range of the pass.
func (p *Pool) hasBlob(ctx context.Context, objID int64, desc *core.TableDescriptor) (bool, error) {
	ids, ok := p.blobIDs[desc.Key()]
	if !ok {
		list, err := p.storage.BlobObjects(ctx, desc, p.lo, p.hi)
		if err != nil {
			return false, fmt.Errorf("failed to scan %s: %w", desc.RawTable, err)
		}
		ids = make(map[int64]bool, len(list))
		for _, id := range list {
			ids[id] = true
		}
		p.blobIDs[desc.Key()] = ids
	}
	return ids[objID], nil
}
