package buffer

import (
	"context"
	"strings"
	"testing"

	"github.com/leapstack-labs/objsql/internal/testutil"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/storage/memstore"
	"github.com/leapstack-labs/objsql/pkg/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vec struct{ X, Y, Z float64 }

var vecClass = schema.NewClass[vec]("vec", 1,
	schema.Chain(func(v *vec) []*float64 { return []*float64{&v.X, &v.Y, &v.Z} }, "x", "y", "z")...)

type particle struct {
	vec
	Name    string
	Charge  int32
	Hits    [4]int16
	Label   [8]byte
	Samples []int32
	Origin  vec
	Parent  *particle
	Partner *particle
}

var particleClass *schema.StructClass[particle]

type hit struct {
	X     float64
	N     int32
	Label string
}

var (
	hitX     = schema.Basic("x", func(h *hit) *float64 { return &h.X })
	hitN     = schema.Basic("n", func(h *hit) *int32 { return &h.N })
	hitLabel = schema.String("label", func(h *hit) *string { return &h.Label })

	hitV1 = schema.NewClass[hit]("hit", 1, hitX, hitN)
	hitV2 = schema.NewClass[hit]("hit", 2, hitX, hitN, hitLabel).WithVersion(1, hitX, hitN)
)

type series struct {
	Values []int32
}

var seriesClass = schema.NewClass[series]("series", 1,
	schema.Slice("values", func(s *series) *[]int32 { return &s.Values }))

type wideSeries struct {
	Values []int64
}

var wideSeriesClass = schema.NewClass[wideSeries]("series", 1,
	schema.Slice("values", func(s *wideSeries) *[]int64 { return &s.Values }))

type track struct {
	ID    int32
	Start vec
	Owner *hit
	Note  string
}

var trackClass = schema.NewCustomClass[track]("track", 2, func(b schema.Buffer, t *track, _ int) {
	b.ClassMember("id", "int32")
	b.Basic(&t.ID)
	b.ClassMember("start", "vec")
	b.StreamObject(&t.Start, vecClass)
	b.ClassMember("owner", "hit*")
	schema.StreamPointer(b, &t.Owner, hitV1)
	b.ClassMember("note", "string")
	b.CharStar(&t.Note)
})

func init() {
	self := schema.Ref("particle", func() schema.Class { return particleClass })
	particleClass = schema.NewClass[particle]("particle", 1,
		schema.Base(vecClass, func(p *particle) *vec { return &p.vec }),
		schema.String("name", func(p *particle) *string { return &p.Name }),
		schema.Basic("charge", func(p *particle) *int32 { return &p.Charge }),
		schema.Fixed("hits", func(p *particle) []int16 { return p.Hits[:] }, 4),
		schema.Fixed("label", func(p *particle) []byte { return p.Label[:] }, 8),
		schema.Slice("samples", func(p *particle) *[]int32 { return &p.Samples }),
		schema.Object("origin", vecClass, func(p *particle) *vec { return &p.Origin }),
		schema.Pointer("parent", self, func(p *particle) **particle { return &p.Parent }),
		schema.Pointer("partner", self, func(p *particle) **particle { return &p.Partner }),
	)
}

func testRegistry() *schema.Registry {
	return schema.NewRegistry(vecClass, particleClass, hitV1, seriesClass, trackClass)
}

type stored struct {
	store *memstore.Store
	key   core.Key
	root  *structure.Node
	batch *core.Batch
}

func write(t *testing.T, cfg Config, obj any, cl schema.Class) stored {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	store := memstore.New()
	w := NewWriter(cfg)
	root, err := w.WriteAny(context.Background(), obj, cl, store.NextObjectID())
	require.NoError(t, err)

	batch, err := structure.Flatten(root, structure.FlattenOptions{LongStringThreshold: 16})
	require.NoError(t, err)
	key, err := store.Apply("test", cl.Name(), batch)
	require.NoError(t, err)
	return stored{store: store, key: key, root: root, batch: batch}
}

func read(t *testing.T, s stored, cfg Config) (any, *Buffer, error) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	r := NewReader(s.store, cfg)
	inst, _, err := r.ReadAny(context.Background(), s.key.ID, s.key.FirstObjID, nil)
	return inst, r, err
}

// element returns the first element node of member name below n.
func element(n *structure.Node, name string) *structure.Node {
	var found *structure.Node
	n.Walk(func(x *structure.Node) bool {
		if x.Kind == structure.KindElement && x.Member.Name == name {
			found = x
			return false
		}
		return true
	})
	return found
}

func sampleGraph() *particle {
	p1 := &particle{
		vec:     vec{X: 1, Y: 2, Z: 3},
		Name:    strings.Repeat("electron ", 5),
		Charge:  -1,
		Hits:    [4]int16{5, 5, 0, 7},
		Samples: []int32{1, 1, 1, 2, 2, 3},
		Origin:  vec{X: 0.5},
	}
	copy(p1.Label[:], "particle")
	p2 := &particle{
		vec:    vec{X: -1, Y: 0.25, Z: 1e-9},
		Name:   "muon",
		Charge: 1,
	}
	copy(p2.Label[:], "mu")
	p1.Parent = p2
	p1.Partner = p1
	p2.Partner = p1
	return p1
}

func TestRoundTrip_Graph(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, sampleGraph(), particleClass)

	inst, r, err := read(t, s, cfg)
	require.NoError(t, err)
	require.False(t, r.Failed())

	got, ok := inst.(*particle)
	require.True(t, ok)
	assert.Equal(t, vec{X: 1, Y: 2, Z: 3}, got.vec)
	assert.Equal(t, strings.Repeat("electron ", 5), got.Name)
	assert.Equal(t, int32(-1), got.Charge)
	assert.Equal(t, [4]int16{5, 5, 0, 7}, got.Hits)
	assert.Equal(t, "particle", string(got.Label[:]))
	assert.Equal(t, []int32{1, 1, 1, 2, 2, 3}, got.Samples)
	assert.Equal(t, vec{X: 0.5}, got.Origin)

	assert.Same(t, got, got.Partner, "self reference resolves to the same instance")
	require.NotNil(t, got.Parent)
	assert.Same(t, got, got.Parent.Partner, "cycle through the parent")
	assert.Nil(t, got.Parent.Parent)
	assert.Equal(t, "muon", got.Parent.Name)
	assert.Equal(t, vec{X: -1, Y: 0.25, Z: 1e-9}, got.Parent.vec)
	assert.Equal(t, "mu\x00\x00\x00\x00\x00\x00", string(got.Parent.Label[:]))
	assert.Nil(t, got.Parent.Samples)
}

func TestWrite_IdentityAndNulls(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, sampleGraph(), particleClass)

	// p1, its origin, p2 and p2's origin
	require.Len(t, s.batch.Objects, 4)
	for i, o := range s.batch.Objects {
		assert.Equal(t, int64(i+1), o.ObjID)
	}
	assert.Equal(t, s.root.ObjID, s.key.FirstObjID)

	partner := element(s.root, "partner")
	require.NotNil(t, partner)
	require.Len(t, partner.Children(), 1)
	assert.Equal(t, structure.KindObjectReference, partner.Children()[0].Kind)
	assert.Equal(t, s.root.ObjID, partner.Children()[0].ObjID)

	var particleRows []core.ClassRow
	for _, rec := range s.batch.Classes {
		if rec.Desc.ClassName == "particle" {
			particleRows = rec.Rows
		}
	}
	require.Len(t, particleRows, 2)
	desc := particleClass.Info(1).Descriptor()
	p2Row := particleRows[0].Values
	assert.Equal(t, "0", p2Row[desc.ColumnIndex("parent")], "null pointers are stored as id 0")
	assert.Equal(t, "1", p2Row[desc.ColumnIndex("partner")])
}

func TestWrite_ArrayCompression(t *testing.T) {
	tests := []struct {
		name        string
		compression int
		want        []structure.Run
	}{
		{
			name:        "runs of equal values",
			compression: 1,
			want:        []structure.Run{{Value: "1", Start: 0, Length: 3}, {Value: "2", Start: 3, Length: 2}, {Value: "3", Start: 5, Length: 1}},
		},
		{
			name:        "one value per index",
			compression: 0,
			want: []structure.Run{
				{Value: "1", Start: 0, Length: 1}, {Value: "1", Start: 1, Length: 1}, {Value: "1", Start: 2, Length: 1},
				{Value: "2", Start: 3, Length: 1}, {Value: "2", Start: 4, Length: 1}, {Value: "3", Start: 5, Length: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Registry: testRegistry(), Compression: tt.compression}
			s := write(t, cfg, &series{Values: []int32{1, 1, 1, 2, 2, 3}}, seriesClass)

			el := element(s.root, "values")
			require.NotNil(t, el)
			arr := el.Children()[0]
			assert.Equal(t, 6, arr.Size)
			assert.Equal(t, tt.want, arr.Runs())

			inst, _, err := read(t, s, cfg)
			require.NoError(t, err)
			assert.Equal(t, []int32{1, 1, 1, 2, 2, 3}, inst.(*series).Values)
		})
	}
}

func TestWrite_ByteArrays(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, sampleGraph(), particleClass)

	labels := s.root.Find(structure.KindElement)
	var texts, arrays int
	for _, el := range labels {
		if el.Member.Name != "label" {
			continue
		}
		switch el.Children()[0].Kind {
		case structure.KindValue:
			texts++
			assert.Equal(t, "particle", el.Children()[0].Value)
		case structure.KindArray:
			arrays++
		}
	}
	assert.Equal(t, 1, texts, "text without zero bytes is one string value")
	assert.Equal(t, 1, arrays, "zero padded bytes stay an array")
}

func TestRead_MalformedRun(t *testing.T) {
	logger, logs := testutil.NewCaptureLogger(t)
	cfg := Config{
		Registry:    testRegistry(),
		Compression: 1,
		Logger:      logger,
	}
	s := write(t, cfg, &series{Values: []int32{1, 1, 1, 2, 2, 3}}, seriesClass)

	desc := seriesClass.Info(1).Descriptor()
	s.store.SetRaw(desc, s.key.FirstObjID, []core.BlobValue{
		{Field: "values", Tag: core.TagArray, Value: "6"},
		{Field: "[2..1]", Tag: "int32", Value: "1"},
	})

	inst, r, err := read(t, s, cfg)
	require.Error(t, err)
	assert.Nil(t, inst)
	assert.ErrorIs(t, err, core.ErrMalformedArrayRun)
	assert.True(t, r.Failed())
	assert.Contains(t, logs.String(), "op=Array")
}

func TestRead_RunPastEnd(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, &series{Values: []int32{4, 4}}, seriesClass)

	s.store.SetRaw(seriesClass.Info(1).Descriptor(), s.key.FirstObjID, []core.BlobValue{
		{Field: "values", Tag: core.TagArray, Value: "2"},
		{Field: "[0..2]", Tag: "int32", Value: "4"},
	})
	_, _, err := read(t, s, cfg)
	assert.ErrorIs(t, err, core.ErrMalformedArrayRun)
}

func TestRead_VersionStability(t *testing.T) {
	s := write(t, Config{Registry: schema.NewRegistry(hitV1)}, &hit{X: 2.5, N: 9}, hitV1)

	t.Run("newer class reads the stored version", func(t *testing.T) {
		inst, r, err := read(t, s, Config{Registry: schema.NewRegistry(hitV2)})
		require.NoError(t, err)
		assert.Equal(t, &hit{X: 2.5, N: 9}, inst)
		assert.Equal(t, 1, r.Root().Version)
	})

	t.Run("class without the stored version", func(t *testing.T) {
		hitV3 := schema.NewClass[hit]("hit", 3, hitX)
		_, _, err := read(t, s, Config{Registry: schema.NewRegistry(hitV3)})
		assert.ErrorIs(t, err, core.ErrSchemaMismatch)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, _, err := read(t, s, Config{Registry: schema.NewRegistry(vecClass)})
		assert.ErrorIs(t, err, core.ErrSchemaMismatch)
		var unknown *schema.UnknownClassError
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "hit", unknown.Name)
	})
}

func TestRead_DataTypeVerification(t *testing.T) {
	s := write(t, Config{Registry: testRegistry()}, &series{Values: []int32{7, 8}}, seriesClass)

	_, _, err := read(t, s, Config{Registry: schema.NewRegistry(wideSeriesClass)})
	assert.ErrorIs(t, err, core.ErrDataTypeMismatch)

	inst, _, err := read(t, s, Config{Registry: schema.NewRegistry(wideSeriesClass), IgnoreVerification: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, inst.(*wideSeries).Values)
}

func TestRead_PoolReuse(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, sampleGraph(), particleClass)

	_, r, err := read(t, s, cfg)
	require.NoError(t, err)

	// two particles and four vec rows (two bases, two origins)
	assert.Equal(t, 2, s.store.BulkFetches(), "one bulk fetch per class table")
	assert.Equal(t, 2, r.Fetches())
	// vec rows hold no raw values, so only the two particles reach the raw table
	assert.Equal(t, 2, s.store.BlobScans(), "one raw id scan per class")
	assert.Equal(t, 2, s.store.BlobFetches())
}

func TestRead_FromInnerObject(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	s := write(t, cfg, sampleGraph(), particleClass)

	var inner int64
	for _, o := range s.batch.Objects {
		if o.ClassName == "particle" && o.ObjID != s.key.FirstObjID {
			inner = o.ObjID
		}
	}
	require.NotZero(t, inner)
	require.Greater(t, inner, s.key.FirstObjID)

	r := NewReader(s.store, Config{Registry: cfg.Registry, Logger: testutil.NewTestLogger(t)})
	inst, cl, err := r.ReadAny(context.Background(), s.key.ID, inner, nil)
	require.NoError(t, err)
	assert.Equal(t, "particle", cl.Name())

	got := inst.(*particle)
	assert.Equal(t, "muon", got.Name)
	require.NotNil(t, got.Partner, "the partner has a lower id than the object read")
	assert.Equal(t, strings.Repeat("electron ", 5), got.Partner.Name)
	assert.Same(t, got, got.Partner.Parent)
	assert.Same(t, got.Partner, got.Partner.Partner)
	assert.Equal(t, vec{X: 0.5}, got.Partner.Origin)
}

func TestRoundTrip_CustomClass(t *testing.T) {
	cfg := Config{Registry: testRegistry(), Compression: 1}
	owner := &hit{X: 1, N: 2}
	s := write(t, cfg, &track{ID: 4, Start: vec{X: 7, Y: 8, Z: 9}, Owner: owner, Note: "first"}, trackClass)

	require.Len(t, s.batch.Objects, 2, "the inline vec has no id of its own")
	var raw []core.BlobValue
	for _, rec := range s.batch.Classes {
		if rec.Desc.ClassName == "track" {
			assert.False(t, rec.Desc.HasClassTable())
			for _, r := range rec.Raw {
				raw = append(raw, r.BlobValue)
			}
		}
	}
	require.GreaterOrEqual(t, len(raw), 4)
	assert.Equal(t, core.BlobValue{Field: "id", Tag: "int32", Value: "4"}, raw[0])
	assert.Equal(t, core.BlobValue{Field: "start", Tag: core.TagObjectRef, Value: "-1"}, raw[1])
	assert.Equal(t, core.BlobValue{Field: core.TagClass, Tag: core.TagClass, Value: "vec"}, raw[2])
	assert.Equal(t, core.BlobValue{Field: core.TagVersion, Tag: core.TagVersion, Value: "1"}, raw[3])

	inst, _, err := read(t, s, cfg)
	require.NoError(t, err)
	got := inst.(*track)
	assert.Equal(t, int32(4), got.ID)
	assert.Equal(t, vec{X: 7, Y: 8, Z: 9}, got.Start)
	assert.Equal(t, owner, got.Owner)
	assert.Equal(t, "first", got.Note)
}

type payload interface{ size() int }

func (h *hit) size() int    { return int(h.N) }
func (s *series) size() int { return len(s.Values) }

type holder struct {
	Main  payload
	Alias payload
	Other payload
	Empty payload
}

func TestRoundTrip_Polymorphism(t *testing.T) {
	holderClass := schema.NewClass[holder]("holder", 1,
		schema.Pointer("main", hitV1, func(h *holder) *payload { return &h.Main }),
		schema.Pointer("alias", hitV1, func(h *holder) *payload { return &h.Alias }),
		schema.Pointer("other", hitV1, func(h *holder) *payload { return &h.Other }),
		schema.Pointer("empty", hitV1, func(h *holder) *payload { return &h.Empty }),
	)
	cfg := Config{Registry: schema.NewRegistry(vecClass, hitV1, seriesClass, holderClass)}

	shared := &hit{X: 1.5, N: 2}
	s := write(t, cfg, &holder{Main: shared, Alias: shared, Other: &series{Values: []int32{4, 5, 6}}}, holderClass)

	classes := map[string]int{}
	for _, o := range s.batch.Objects {
		classes[o.ClassName]++
	}
	assert.Equal(t, map[string]int{"holder": 1, "hit": 1, "series": 1}, classes)

	inst, _, err := read(t, s, cfg)
	require.NoError(t, err)
	got := inst.(*holder)

	require.IsType(t, &hit{}, got.Main)
	assert.Equal(t, shared, got.Main)
	assert.Same(t, got.Main, got.Alias, "shared reference resolves to one instance")
	require.IsType(t, &series{}, got.Other, "stored class wins over the declared one")
	assert.Equal(t, 3, got.Other.size())
	assert.Nil(t, got.Empty)
}

func TestRead_InlinePointer(t *testing.T) {
	type hitHolder struct{ H hit }
	holderClass := schema.NewCustomClass[hitHolder]("hitholder", 1, func(b schema.Buffer, x *hitHolder, _ int) {
		b.ClassMember("owner", "hit")
		b.StreamObject(&x.H, hitV1)
	})
	cfg := Config{Registry: schema.NewRegistry(vecClass, hitV1, trackClass, holderClass)}

	// The raw stream of an inline hit, as a custom class writes it.
	inline := write(t, cfg, &hitHolder{H: hit{X: 2.5, N: 3}}, holderClass)
	var inlineHit []core.BlobValue
	for _, rec := range inline.batch.Classes {
		if rec.Desc.ClassName == "hitholder" {
			for _, r := range rec.Raw {
				inlineHit = append(inlineHit, r.BlobValue)
			}
		}
	}
	require.NotEmpty(t, inlineHit)
	require.Equal(t, "-1", inlineHit[0].Value)

	s := write(t, cfg, &track{ID: 9, Note: "inline"}, trackClass)
	var desc *core.TableDescriptor
	for _, rec := range s.batch.Classes {
		if rec.Desc.ClassName == "track" {
			desc = rec.Desc
		}
	}
	require.NotNil(t, desc)

	raw := s.store.Raw(desc, s.key.FirstObjID)
	var spliced []core.BlobValue
	for _, v := range raw {
		if v.Field == "owner" {
			spliced = append(spliced, inlineHit...)
			continue
		}
		spliced = append(spliced, v)
	}
	require.Len(t, spliced, len(raw)+len(inlineHit)-1)
	s.store.SetRaw(desc, s.key.FirstObjID, spliced)

	inst, r, err := read(t, s, cfg)
	require.NoError(t, err)
	require.False(t, r.Failed())
	got := inst.(*track)
	assert.Equal(t, int32(9), got.ID)
	assert.Equal(t, &hit{X: 2.5, N: 3}, got.Owner)
	assert.Equal(t, "inline", got.Note)
}

func TestRoundTrip_LongStrings(t *testing.T) {
	cfg := Config{Registry: testRegistry()}
	p := sampleGraph()
	s := write(t, cfg, p, particleClass)

	require.Len(t, s.batch.Strings, 1)
	assert.Equal(t, p.Name, s.batch.Strings[0].Value)

	inst, _, err := read(t, s, cfg)
	require.NoError(t, err)
	assert.Equal(t, p.Name, inst.(*particle).Name)
}

func TestRoundTrip_PlaceholderShapedStrings(t *testing.T) {
	cfg := Config{Registry: testRegistry()}
	for _, name := range []string{"#~#1#~#0#~#", "#~#2#~#5#~#", "#~#1#~#"} {
		t.Run(name, func(t *testing.T) {
			s := write(t, cfg, &particle{Name: name}, particleClass)

			inst, _, err := read(t, s, cfg)
			require.NoError(t, err)
			assert.Equal(t, name, inst.(*particle).Name)
		})
	}
}

func TestWrite_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("nil object", func(t *testing.T) {
		w := NewWriter(Config{Registry: testRegistry()})
		_, err := w.WriteAny(ctx, (*hit)(nil), hitV1, 1)
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})

	t.Run("value instead of pointer", func(t *testing.T) {
		w := NewWriter(Config{Registry: testRegistry()})
		_, err := w.WriteAny(ctx, hit{}, hitV1, 1)
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})

	t.Run("unbalanced class end", func(t *testing.T) {
		var after int
		broken := schema.NewCustomClass[hit]("broken", 1, func(b schema.Buffer, h *hit, _ int) {
			b.ClassEnd(vecClass)
			b.ClassMember("n", "int32")
			b.Basic(&h.N)
			if b.Failed() {
				after++
			}
		})
		w := NewWriter(Config{Logger: testutil.NewTestLogger(t), Registry: schema.NewRegistry(broken)})
		_, err := w.WriteAny(ctx, &hit{}, broken, 1)
		assert.ErrorIs(t, err, core.ErrStructuralUnderflow)
		assert.Equal(t, 1, after, "the failed flag is sticky")
		assert.Equal(t, 0, w.stack.Depth(), "frames are released on failure")
	})

	t.Run("unresolvable custom member", func(t *testing.T) {
		bad := schema.NewCustomClass[hit]("bad", 1, func(b schema.Buffer, h *hit, _ int) {
			b.ClassMember("n", "quaternion")
			b.Basic(&h.N)
		})
		w := NewWriter(Config{Registry: schema.NewRegistry(bad)})
		_, err := w.WriteAny(ctx, &hit{}, bad, 1)
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)
	})
}

func TestRead_MissingObject(t *testing.T) {
	cfg := Config{Registry: testRegistry()}
	s := write(t, cfg, &hit{N: 1}, hitV1)

	r := NewReader(s.store, cfg)
	_, _, err := r.ReadAny(context.Background(), s.key.ID, s.key.LastObjID+5, nil)
	assert.ErrorIs(t, err, core.ErrMissingRow)
}
