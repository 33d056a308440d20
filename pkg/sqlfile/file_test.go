package sqlfile

import (
	"context"
	"testing"

	"github.com/leapstack-labs/objsql/internal/demo"
	"github.com/leapstack-labs/objsql/internal/testutil"
	"github.com/leapstack-labs/objsql/pkg/adapter"
	_ "github.com/leapstack-labs/objsql/pkg/adapters/sqlite"
	"github.com/leapstack-labs/objsql/pkg/core"
	"github.com/leapstack-labs/objsql/pkg/schema"
	"github.com/leapstack-labs/objsql/pkg/structure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestFile(t *testing.T, opts Options) *File {
	t.Helper()
	opts.Logger = testutil.NewTestLogger(t)
	f, err := Open(context.Background(), adapter.Config{Type: "sqlite"}, demo.Registry(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFile_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"defaults", Options{}},
		{"compressed", Options{Compression: 1}},
		{"long strings", Options{LongStringThreshold: 16}},
		{"fixed float format", Options{FloatFormat: "%.17g"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := openTestFile(t, tt.opts)

			key, err := f.WriteObject(ctx, "ev1", demo.Sample(1), nil)
			require.NoError(t, err)
			assert.Equal(t, "Event", key.ClassName)
			assert.Equal(t, int64(1), key.FirstObjID)
			assert.Equal(t, int64(5), key.LastObjID, "event, vertex, two tracks and the calibration")

			got, cl, err := f.ReadObject(ctx, "ev1", nil)
			require.NoError(t, err)
			assert.Equal(t, "Event", cl.Name())

			ev, ok := got.(*demo.Event)
			require.True(t, ok, "read %T", got)
			assert.Equal(t, demo.Sample(1), ev)
			assert.Same(t, ev.Leading, ev.Subleading.Mother, "shared track is one instance")
		})
	}
}

type nsHit struct{ X float64 }

type flatHit struct{ Name string }

func TestFile_ClassesSharingTableBase(t *testing.T) {
	ctx := context.Background()
	scoped := schema.NewClass[nsHit]("ns::Hit", 1, schema.Basic("x", func(h *nsHit) *float64 { return &h.X }))
	flat := schema.NewClass[flatHit]("ns__Hit", 1, schema.String("name", func(h *flatHit) *string { return &h.Name }))

	f, err := Open(ctx, adapter.Config{Type: "sqlite"}, schema.NewRegistry(scoped, flat), Options{Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	_, err = f.WriteObject(ctx, "scoped", &nsHit{X: 2.5}, scoped)
	require.NoError(t, err)
	_, err = f.WriteObject(ctx, "flat", &flatHit{Name: "strip 4"}, flat)
	require.NoError(t, err)

	got, _, err := f.ReadObject(ctx, "scoped", nil)
	require.NoError(t, err)
	assert.Equal(t, &nsHit{X: 2.5}, got)
	got, _, err = f.ReadObject(ctx, "flat", nil)
	require.NoError(t, err)
	assert.Equal(t, &flatHit{Name: "strip 4"}, got)

	classes, err := f.Classes(ctx)
	require.NoError(t, err)
	tables := map[string]string{}
	for _, c := range classes {
		tables[c.Desc.ClassName] = c.Desc.ClassTable
	}
	assert.Equal(t, map[string]string{"ns::Hit": "ns__Hit_ver1", "ns__Hit": "ns__Hit_2_ver1"}, tables)
}

func TestFile_ReadIntoGivenObject(t *testing.T) {
	ctx := context.Background()
	f := openTestFile(t, Options{})

	_, err := f.WriteObject(ctx, "ev7", demo.Sample(7), demo.EventClass)
	require.NoError(t, err)

	var ev demo.Event
	got, _, err := f.ReadObject(ctx, "ev7", &ev)
	require.NoError(t, err)
	assert.Same(t, &ev, got)
	assert.Equal(t, int64(7), ev.Number)
	assert.Equal(t, []uint16{3, 3, 3, 7, 8, 8}, ev.Leading.Hits)
}

func TestFile_Keys(t *testing.T) {
	ctx := context.Background()
	f := openTestFile(t, Options{})

	for _, name := range []string{"ev1", "ev2", "ev3"} {
		_, err := f.WriteObject(ctx, name, demo.Sample(1), nil)
		require.NoError(t, err)
	}

	keys, err := f.Keys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 3)
	assert.Equal(t, int64(6), keys[1].FirstObjID, "keys never share object ids")
	assert.Equal(t, int64(15), keys[2].LastObjID)

	require.NoError(t, f.DeleteKey(ctx, "ev2"))
	_, _, err = f.ReadObject(ctx, "ev2", nil)
	assert.ErrorIs(t, err, core.ErrMissingRow)

	got, _, err := f.ReadObject(ctx, "ev3", nil)
	require.NoError(t, err)
	assert.Equal(t, demo.Sample(1), got)

	classes, err := f.Classes(ctx)
	require.NoError(t, err)
	names := make([]string, len(classes))
	for i, c := range classes {
		names[i] = c.Desc.ClassName
	}
	assert.Equal(t, []string{"Calibration", "Event", "Track", "Vec3"}, names)
}

func TestFile_ReadStructure(t *testing.T) {
	ctx := context.Background()
	f := openTestFile(t, Options{Compression: 1})

	_, err := f.WriteObject(ctx, "ev1", demo.Sample(1), nil)
	require.NoError(t, err)

	root, err := f.ReadStructure(ctx, "ev1")
	require.NoError(t, err)
	assert.Equal(t, structure.KindObject, root.Kind)
	assert.Equal(t, "Event", root.ClassName)
	assert.Equal(t, int64(1), root.ObjID)
	assert.Equal(t, 2, root.Version)
}

func TestFile_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid float format", func(t *testing.T) {
		_, err := Open(ctx, adapter.Config{Type: "sqlite"}, demo.Registry(), Options{FloatFormat: "%d"})
		assert.Error(t, err)
	})

	t.Run("unknown adapter", func(t *testing.T) {
		_, err := Open(ctx, adapter.Config{Type: "oracle"}, demo.Registry(), Options{})
		var unknown *adapter.UnknownAdapterError
		assert.ErrorAs(t, err, &unknown)
	})

	t.Run("failed write stores nothing", func(t *testing.T) {
		f := openTestFile(t, Options{})
		_, err := f.WriteObject(ctx, "nothing", nil, demo.EventClass)
		assert.ErrorIs(t, err, core.ErrInvalidMemberSpec)

		keys, err := f.Keys(ctx)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("duplicate key", func(t *testing.T) {
		f := openTestFile(t, Options{})
		_, err := f.WriteObject(ctx, "ev1", demo.Sample(1), nil)
		require.NoError(t, err)
		_, err = f.WriteObject(ctx, "ev1", demo.Sample(2), nil)
		assert.ErrorContains(t, err, "already exists")
	})

	t.Run("missing key", func(t *testing.T) {
		f := openTestFile(t, Options{})
		_, err := f.ReadStructure(ctx, "nope")
		assert.ErrorIs(t, err, core.ErrMissingRow)
	})
}
