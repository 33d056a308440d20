package schema

// CompType tells SetElementNumber how the following values map to members.
type CompType int

// Compositions.
const (
	// CompPlain streams exactly one member.
	CompPlain CompType = iota
	// CompChain streams the member and the following ones as one fast array.
	CompChain
)

// Buffer is the callback surface classes describe themselves through.
// Every method reads when IsReading is true and writes otherwise.
// Failures never panic: they set the buffer's sticky error flag and
// primitives leave their targets untouched.
type Buffer interface {
	// IsReading reports the direction of the pass.
	IsReading() bool

	// Failed reports whether any error was recorded during the pass.
	Failed() bool

	// Fail records err and sets the sticky error flag.
	Fail(err error)

	// ReadVersion returns the stored version of the class about to be described.
	ReadVersion(cl Class) int

	// WriteVersion records the current version of cl.
	WriteVersion(cl Class)

	// IncrementLevel opens the members of a class version.
	IncrementLevel(info *StreamerInfo)

	// DecrementLevel closes what IncrementLevel opened.
	DecrementLevel(info *StreamerInfo)

	// SetElementNumber selects the member the next values belong to.
	SetElementNumber(m *Member, comp CompType)

	// ClassBegin opens a custom-streamed class.
	ClassBegin(cl Class, version int)

	// ClassMember selects a member of a custom-streamed class by name and type name.
	ClassMember(name, typeName string, dims ...int)

	// ClassEnd closes what ClassBegin opened.
	ClassEnd(cl Class)

	// Basic streams the scalar ptr points to.
	Basic(ptr any)

	// CharStar streams a string.
	CharStar(s *string)

	// Array streams a slice whose length is persisted; slicePtr points to the slice.
	Array(slicePtr any)

	// FastArray streams a slice whose length the caller already knows.
	FastArray(slice any)

	// WriteObject writes a reference to obj and returns its object id (0 for nil).
	WriteObject(obj any, cl Class) int64

	// ReadObject reads a reference. When the object has not been seen yet in the
	// pass it is materialized into obj (if given) or a new instance.
	ReadObject(obj any, expected Class) (any, Class)

	// StreamObject streams an embedded object into or out of obj.
	StreamObject(obj any, cl Class)
}
