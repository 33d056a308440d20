// Package buffer is the traversal engine.
//
// A Buffer runs one pass at a time. A write pass walks an object graph through
// the describe callbacks of its classes and builds a structure tree; a read
// pass replays the same callbacks against stored rows, consuming values in
// the order they were written. Classes see both directions through the
// schema.Buffer interface.
//
// Failures never panic across the callback boundary. The first error is kept,
// every error is logged, and the failed flag stays set until the next pass.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/objsql/pkg/codec"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/identity"
	"github.com/leapstack-labs/objsql/pkg/pool"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/structure"
)

// noVersion marks an empty version deposit.
const noVersion = -1

// Config holds buffer configuration.
type Config struct {
	// Logger receives failure diagnostics (optional, uses discard if nil)
	Logger *slog.Logger
	// Registry resolves stored class names and the dynamic class of objects
	Registry *schema.Registry
	// Codec formats and parses values (optional, uses codec.Default())
	Codec *codec.Codec
	// Compression above zero stores arrays as runs of equal values
	Compression int
	// IgnoreVerification skips the type tag check of read values
	IgnoreVerification bool
}

// Buffer is the traversal engine. It is not safe for concurrent use.
type Buffer struct {
	logger             *slog.Logger
	registry           *schema.Registry
	codec              *codec.Codec
	compression        int
	ignoreVerification bool

	reading bool
	storage core.Storage

	// pass state
	ctx     context.Context
	pool    *pool.Pool
	ids     *identity.Registry
	stack   structure.Stack
	root    *structure.Node
	infos   []core.ObjectInfo
	first   int64
	version int
	err     error
}

var _ schema.Buffer = (*Buffer)(nil)

func newBuffer(cfg Config) *Buffer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := cfg.Codec
	if c == nil {
		c = codec.Default()
	}
	return &Buffer{
		logger:             logger,
		registry:           cfg.Registry,
		codec:              c,
		compression:        cfg.Compression,
		ignoreVerification: cfg.IgnoreVerification,
		version:            noVersion,
	}
}

// NewWriter creates a buffer for write passes.
func NewWriter(cfg Config) *Buffer {
	return newBuffer(cfg)
}

// NewReader creates a buffer for read passes over storage.
func NewReader(storage core.Storage, cfg Config) *Buffer {
	b := newBuffer(cfg)
	b.reading = true
	b.storage = storage
	return b
}

func (b *Buffer) reset(ctx context.Context) {
	b.ctx = ctx
	b.pool = nil
	b.stack = structure.Stack{}
	b.root = nil
	b.infos = nil
	b.first = 0
	b.version = noVersion
	b.err = nil
}

// WriteAny runs a write pass over obj and returns the root of the structure tree.
// Object ids are allocated from firstObjID. A nil cl means the class is looked
// up in the registry by the Go type of obj.
func (b *Buffer) WriteAny(ctx context.Context, obj any, cl schema.Class, firstObjID int64) (*structure.Node, error) {
	if b.reading {
		return nil, errors.New("buffer is not a writer")
	}
	b.reset(ctx)
	b.ids = identity.New(firstObjID)

	if identity.IsNil(obj) {
		return nil, core.Errorf(core.InvalidMemberSpec, "WriteAny", "cannot write a nil object")
	}
	b.WriteObject(obj, cl)
	if b.err != nil {
		return nil, b.err
	}
	return b.root, nil
}

// ReadAny runs a read pass and materializes object objID of key keyID.
// The object is read into obj when it is given, into a new instance otherwise.
func (b *Buffer) ReadAny(ctx context.Context, keyID, objID int64, obj any) (any, schema.Class, error) {
	if !b.reading {
		return nil, nil, errors.New("buffer is not a reader")
	}
	b.reset(ctx)

	infos, err := b.storage.ObjectsInfo(ctx, keyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load objects of key %d: %w", keyID, err)
	}
	// The window spans the whole key: objects referenced from objID may have
	// lower ids than objID itself.
	lo, hi := objID, objID
	for _, o := range infos {
		lo = min(lo, o.ObjID)
		hi = max(hi, o.ObjID)
	}
	b.infos = infos
	if len(infos) > 0 {
		b.first = infos[0].ObjID
	}
	b.pool = pool.New(b.storage, lo, hi)
	b.ids = identity.New(lo)

	b.logger.Debug("reading object", "key_id", keyID, "obj_id", objID, "objects", len(infos))

	inst, cl := b.readStored(objID, obj, nil)
	if b.err != nil {
		return nil, nil, b.err
	}
	return inst, cl, nil
}

// Root returns the structure tree of the last pass.
func (b *Buffer) Root() *structure.Node {
	return b.root
}

// LastObjectID returns the highest object id allocated by the last write pass.
func (b *Buffer) LastObjectID() int64 {
	if b.ids == nil {
		return 0
	}
	return b.ids.Last()
}

// Fetches returns the number of bulk fetches of the last read pass.
func (b *Buffer) Fetches() int {
	if b.pool == nil {
		return 0
	}
	return b.pool.Fetches()
}

// IsReading implements schema.Buffer.
func (b *Buffer) IsReading() bool {
	return b.reading
}

// Failed implements schema.Buffer.
func (b *Buffer) Failed() bool {
	return b.err != nil
}

// Err returns the first error of the pass.
func (b *Buffer) Err() error {
	return b.err
}

// Fail implements schema.Buffer.
func (b *Buffer) Fail(err error) {
	if err == nil {
		return
	}
	if b.err == nil {
		b.err = err
	}
	op := "buffer"
	var e *core.Error
	if errors.As(err, &e) && e.Op != "" {
		op = e.Op
	}
	b.logger.Error("pass failed",
		"op", op,
		"reading", b.reading,
		"depth", b.stack.Depth(),
		"error", err.Error())
}

func (b *Buffer) fail(kind core.ErrorKind, op, format string, args ...any) {
	b.Fail(core.Errorf(kind, op, format, args...))
}

// attach adds n below the current node, or makes it the root of the pass.
func (b *Buffer) attach(n *structure.Node) bool {
	top := b.stack.Top()
	if top != nil {
		top.Node.Add(n)
		return true
	}
	if b.root == nil {
		b.root = n
		return true
	}
	b.fail(core.StructuralUnderflow, "attach", "%s outside of any object", n.Kind)
	return false
}
