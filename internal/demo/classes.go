// Package demo defines a small detector event model used by the objsql CLI
// to write sample keys and to read them back.
package demo

import (
	"github.com/leapstack-labs/objsql/pkg/schema"
)

// Vec3 is a point or momentum in detector coordinates.
type Vec3 struct {
	X, Y, Z float64
}

// Track is a reconstructed particle track.
type Track struct {
	Vec3   // momentum
	Charge int8
	Chi2   float32
	Hits   []uint16
	Mother *Track
}

// Calibration is streamed by hand.
type Calibration struct {
	Run   int32
	Gains [4]float32
	Note  string
}

// Event is one recorded collision.
type Event struct {
	Run        int32
	Number     int64
	Label      string
	Vertex     Vec3
	Leading    *Track
	Subleading *Track
	Weights    []float64
	Calib      *Calibration
}

var (
	// Vec3Class streams the coordinates as one member-wise run.
	Vec3Class = schema.NewClass[Vec3]("Vec3", 1,
		schema.Chain(func(v *Vec3) []*float64 { return []*float64{&v.X, &v.Y, &v.Z} }, "x", "y", "z")...)

	// TrackClass is set up in init, it refers to itself.
	TrackClass *schema.StructClass[Track]

	// CalibrationClass streams its members without a streamer info.
	CalibrationClass = schema.NewCustomClass[Calibration]("Calibration", 1, streamCalibration)

	// EventClass is version 2; version 1 had no label.
	EventClass *schema.StructClass[Event]
)

func init() {
	self := schema.Ref("Track", func() schema.Class { return TrackClass })
	TrackClass = schema.NewClass[Track]("Track", 1,
		schema.Base(Vec3Class, func(t *Track) *Vec3 { return &t.Vec3 }),
		schema.Basic("charge", func(t *Track) *int8 { return &t.Charge }),
		schema.Basic("chi2", func(t *Track) *float32 { return &t.Chi2 }),
		schema.Slice("hits", func(t *Track) *[]uint16 { return &t.Hits }),
		schema.Pointer("mother", self, func(t *Track) **Track { return &t.Mother }),
	)

	run := schema.Basic("run", func(e *Event) *int32 { return &e.Run })
	number := schema.Basic("number", func(e *Event) *int64 { return &e.Number })
	vertex := schema.Object("vertex", Vec3Class, func(e *Event) *Vec3 { return &e.Vertex })
	leading := schema.Pointer("leading", TrackClass, func(e *Event) **Track { return &e.Leading })
	subleading := schema.Pointer("subleading", TrackClass, func(e *Event) **Track { return &e.Subleading })
	weights := schema.Slice("weights", func(e *Event) *[]float64 { return &e.Weights })
	calib := schema.Pointer("calib", CalibrationClass, func(e *Event) **Calibration { return &e.Calib })

	EventClass = schema.NewClass[Event]("Event", 2,
		run, number,
		schema.String("label", func(e *Event) *string { return &e.Label }),
		vertex, leading, subleading, weights, calib,
	).WithVersion(1, run, number, vertex, leading, subleading, weights, calib)
}

func streamCalibration(b schema.Buffer, c *Calibration, _ int) {
	b.ClassMember("run", "int32")
	b.Basic(&c.Run)
	b.ClassMember("gains", "float32", len(c.Gains))
	b.FastArray(c.Gains[:])
	b.ClassMember("note", "string")
	b.CharStar(&c.Note)
}

// Registry returns a registry holding every demo class.
func Registry() *schema.Registry {
	return schema.NewRegistry(Vec3Class, TrackClass, CalibrationClass, EventClass)
}

// Sample builds event number n of run 1. Both tracks share the calibration
// of the event and the subleading track decays from the leading one.
func Sample(n int64) *Event {
	leading := &Track{
		Vec3:   Vec3{X: 12.5, Y: -3.25, Z: 40},
		Charge: 1,
		Chi2:   0.87,
		Hits:   []uint16{3, 3, 3, 7, 8, 8},
	}
	subleading := &Track{
		Vec3:   Vec3{X: -1.5, Y: 0.5, Z: 9.75},
		Charge: -1,
		Chi2:   1.5,
		Hits:   []uint16{1, 2},
		Mother: leading,
	}
	return &Event{
		Run:        1,
		Number:     n,
		Label:      "two prong candidate with a secondary vertex near the beam pipe",
		Vertex:     Vec3{X: 0.01, Y: -0.02, Z: 0.5},
		Leading:    leading,
		Subleading: subleading,
		Weights:    []float64{1, 1, 0.5},
		Calib:      &Calibration{Run: 1, Gains: [4]float32{1, 1.02, 0.98, 1}, Note: "nominal"},
	}
}
