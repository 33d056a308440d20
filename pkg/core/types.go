package core

import (
	"reflect"
	"strings"
)

// Reserved reference values.
const (
	// NullObjectID marks a null reference.
	NullObjectID int64 = 0
	// InlineObjectID marks an object whose class and data follow inline in the raw stream.
	InlineObjectID int64 = -1
)

// DataType identifies the primitive type of a persisted value.
type DataType int

// Primitive data types.
const (
	TypeUnknown DataType = iota
	TypeBool
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
)

// Structural type tags stored next to raw values.
const (
	TagObjectRef = "ObjectRef"
	TagObjectPtr = "ObjectPtr"
	TagVersion   = "Version"
	TagArray     = "Array"
	TagClass     = "Class"
)

var dataTypeTags = map[DataType]string{
	TypeBool:    "bool",
	TypeInt8:    "int8",
	TypeInt16:   "int16",
	TypeInt32:   "int32",
	TypeInt64:   "int64",
	TypeUint8:   "uint8",
	TypeUint16:  "uint16",
	TypeUint32:  "uint32",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
}

// Tag returns the type tag persisted for values of this type.
func (t DataType) Tag() string {
	if tag, ok := dataTypeTags[t]; ok {
		return tag
	}
	return "unknown"
}

func (t DataType) String() string {
	return t.Tag()
}

// ParseDataType resolves a type tag to a DataType.
// A few common aliases (int, float, double, char) are accepted.
func ParseDataType(tag string) (DataType, bool) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for t, name := range dataTypeTags {
		if name == tag {
			return t, true
		}
	}
	switch tag {
	case "int":
		return TypeInt32, true
	case "long":
		return TypeInt64, true
	case "float":
		return TypeFloat32, true
	case "double":
		return TypeFloat64, true
	case "char":
		return TypeInt8, true
	case "byte":
		return TypeUint8, true
	}
	return TypeUnknown, false
}

// Scalar is the set of Go types the engine stores as primitive values.
type Scalar interface {
	~bool | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// DataTypeOf returns the DataType of a scalar type parameter.
func DataTypeOf[T Scalar]() DataType {
	var zero T
	return kindTypes[reflect.TypeOf(zero).Kind()]
}

var kindTypes = map[reflect.Kind]DataType{
	reflect.Bool:    TypeBool,
	reflect.Int8:    TypeInt8,
	reflect.Int16:   TypeInt16,
	reflect.Int32:   TypeInt32,
	reflect.Int64:   TypeInt64,
	reflect.Uint8:   TypeUint8,
	reflect.Uint16:  TypeUint16,
	reflect.Uint32:  TypeUint32,
	reflect.Uint64:  TypeUint64,
	reflect.Float32: TypeFloat32,
	reflect.Float64: TypeFloat64,
	reflect.String:  TypeString,
}
