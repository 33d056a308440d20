// Package sqlfile stores object graphs as named keys in a SQL database.
//
// A File pairs a storage adapter with the class registry and engine settings.
// Every WriteObject is one write pass committed as one key; every ReadObject
// is one read pass over a key's objects.
package sqlfile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/leapstack-labs/objsql/pkg/adapter"
	"github.com/leapstack-labs/objsql/pkg/buffer"
	"github.com/leapstack-labs/objsql/pkg/codec"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/storage/sqlstore"
	"github.com/leapstack-labs/objsql/pkg/structure"
)

// Options holds engine settings of a file.
type Options struct {
	// Logger receives diagnostics (optional, uses discard if nil)
	Logger *slog.Logger
	// Compression above zero stores arrays as runs of equal values
	Compression int
	// FloatFormat is the %-style float format (optional, uses %g)
	FloatFormat string
	// LongStringThreshold moves longer strings out of line (0 disables)
	LongStringThreshold int
	// IgnoreVerification skips the type tag check of read values
	IgnoreVerification bool
}

// File is an open objsql database. It is safe for concurrent use; writes are
// serialized so that keys never share object ids.
type File struct {
	adapter  adapter.Adapter
	store    *sqlstore.Store
	registry *schema.Registry
	codec    *codec.Codec
	opts     Options
	logger   *slog.Logger

	writeMu sync.Mutex
}

// Open connects to the database described by cfg and migrates its metadata tables.
func Open(ctx context.Context, cfg adapter.Config, registry *schema.Registry, opts Options) (*File, error) {
	a, err := adapter.Open(ctx, cfg, opts.Logger)
	if err != nil {
		return nil, err
	}
	f, err := newFile(ctx, a.Conn(), a.Dialect(), registry, opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	f.adapter = a
	return f, nil
}

// OpenDB uses an existing connection. Close leaves db open.
func OpenDB(ctx context.Context, db *sql.DB, dialect *adapter.Dialect, registry *schema.Registry, opts Options) (*File, error) {
	return newFile(ctx, db, dialect, registry, opts)
}

func newFile(ctx context.Context, db *sql.DB, dialect *adapter.Dialect, registry *schema.Registry, opts Options) (*File, error) {
	if opts.FloatFormat != "" {
		if err := codec.ValidateFloatFormat(opts.FloatFormat); err != nil {
			return nil, err
		}
	}
	if registry == nil {
		registry = schema.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.Logger = logger

	store := sqlstore.New(db, dialect, logger)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return &File{
		store:    store,
		registry: registry,
		codec:    codec.New(codec.WithFloatFormat(opts.FloatFormat)),
		opts:     opts,
		logger:   logger,
	}, nil
}

// Close closes the connection opened by Open.
func (f *File) Close() error {
	if f.adapter == nil {
		return nil
	}
	return f.adapter.Close()
}

// Store returns the underlying storage.
func (f *File) Store() *sqlstore.Store {
	return f.store
}

// Registry returns the class registry of the file.
func (f *File) Registry() *schema.Registry {
	return f.registry
}

func (f *File) bufferConfig() buffer.Config {
	return buffer.Config{
		Logger:             f.logger,
		Registry:           f.registry,
		Codec:              f.codec,
		Compression:        f.opts.Compression,
		IgnoreVerification: f.opts.IgnoreVerification,
	}
}

// WriteObject stores obj and everything it references as key name.
// A nil cl means the class is looked up in the registry by the type of obj.
func (f *File) WriteObject(ctx context.Context, name string, obj any, cl schema.Class) (core.Key, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	first, err := f.store.NextObjectID(ctx)
	if err != nil {
		return core.Key{}, err
	}
	w := buffer.NewWriter(f.bufferConfig())
	root, err := w.WriteAny(ctx, obj, cl, first)
	if err != nil {
		return core.Key{}, fmt.Errorf("failed to write %q: %w", name, err)
	}
	batch, err := structure.Flatten(root, structure.FlattenOptions{LongStringThreshold: f.opts.LongStringThreshold})
	if err != nil {
		return core.Key{}, fmt.Errorf("failed to flatten %q: %w", name, err)
	}
	key, err := f.store.WriteKey(ctx, name, root.ClassName, batch)
	if err != nil {
		return core.Key{}, err
	}
	f.logger.Info("wrote object",
		"key", name,
		"class", key.ClassName,
		"objects", len(batch.Objects))
	return key, nil
}

// ReadObject materializes key name. The object is read into obj when it is
// given, into a new instance of the stored class otherwise.
func (f *File) ReadObject(ctx context.Context, name string, obj any) (any, schema.Class, error) {
	_, inst, cl, err := f.read(ctx, name, obj)
	return inst, cl, err
}

// ReadStructure reads key name and returns the structure tree of the pass.
func (f *File) ReadStructure(ctx context.Context, name string) (*structure.Node, error) {
	r, _, _, err := f.read(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return r.Root(), nil
}

func (f *File) read(ctx context.Context, name string, obj any) (*buffer.Buffer, any, schema.Class, error) {
	key, err := f.store.Key(ctx, name)
	if err != nil {
		return nil, nil, nil, err
	}
	r := buffer.NewReader(f.store, f.bufferConfig())
	inst, cl, err := r.ReadAny(ctx, key.ID, key.FirstObjID, obj)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	f.logger.Debug("read object", "key", name, "class", cl.Name(), "fetches", r.Fetches())
	return r, inst, cl, nil
}

// Keys returns all stored keys.
func (f *File) Keys(ctx context.Context) ([]core.Key, error) {
	return f.store.Keys(ctx)
}

// DeleteKey removes key name and its objects.
func (f *File) DeleteKey(ctx context.Context, name string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return f.store.DeleteKey(ctx, name)
}

// Classes returns the stored class tables.
func (f *File) Classes(ctx context.Context) ([]sqlstore.ClassTable, error) {
	return f.store.Classes(ctx)
}
