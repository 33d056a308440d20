// Package codec converts primitive values to and from their persisted text form.
//
// Integers are written in decimal, floats with a configurable %-style format and
// booleans as "true"/"false". No locale is applied.
package codec

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/leapstack-labs/objsql/pkg/core"
)

// DefaultFloatFormat is the float format used when none is configured.
// %g yields the shortest text that reads back to the same value.
const DefaultFloatFormat = "%g"

// Boolean tokens.
const (
	TrueToken  = "true"
	FalseToken = "false"
)

var floatFormatRE = regexp.MustCompile(`^%[-+ #0]*[0-9]*(\.[0-9]+)?[eEfgG]$`)

// Codec encodes and decodes primitive values.
type Codec struct {
	floatFormat string
}

// Option configures a Codec.
type Option func(*Codec)

// WithFloatFormat sets the %-style float format (e.g. "%.10g").
func WithFloatFormat(format string) Option {
	return func(c *Codec) {
		if format != "" {
			c.floatFormat = format
		}
	}
}

// New creates a codec.
func New(opts ...Option) *Codec {
	c := &Codec{floatFormat: DefaultFloatFormat}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = New()

// Default returns the process-wide codec used when none is configured.
func Default() *Codec {
	return defaultCodec
}

// ValidateFloatFormat checks that format is a single float verb.
func ValidateFloatFormat(format string) error {
	if !floatFormatRE.MatchString(format) {
		return fmt.Errorf("invalid float format %q: expected a single %%e, %%f or %%g verb", format)
	}
	return nil
}

// FloatFormat returns the configured float format.
func (c *Codec) FloatFormat() string {
	return c.floatFormat
}

// FormatFloat formats a float with the configured format.
func (c *Codec) FormatFloat(v float64, bits int) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	if c.floatFormat == DefaultFloatFormat {
		return strconv.FormatFloat(v, 'g', -1, bits)
	}
	if bits == 32 {
		return fmt.Sprintf(c.floatFormat, float32(v))
	}
	return fmt.Sprintf(c.floatFormat, v)
}

// FormatBool formats a boolean token.
func FormatBool(v bool) string {
	if v {
		return TrueToken
	}
	return FalseToken
}

// ParseBool parses a boolean token. Numeric text is accepted, non-zero being true.
func ParseBool(text string) (bool, error) {
	text = strings.TrimSpace(text)
	switch text {
	case TrueToken:
		return true, nil
	case FalseToken, "":
		return false, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid bool %q", text)
	}
	return n != 0, nil
}

// TypeOf returns the DataType of a scalar or string value.
func TypeOf(v any) core.DataType {
	if v == nil {
		return core.TypeUnknown
	}
	return typeOfKind(reflect.TypeOf(v).Kind())
}

func typeOfKind(k reflect.Kind) core.DataType {
	switch k {
	case reflect.Bool:
		return core.TypeBool
	case reflect.Int8:
		return core.TypeInt8
	case reflect.Int16:
		return core.TypeInt16
	case reflect.Int32:
		return core.TypeInt32
	case reflect.Int64:
		return core.TypeInt64
	case reflect.Uint8:
		return core.TypeUint8
	case reflect.Uint16:
		return core.TypeUint16
	case reflect.Uint32:
		return core.TypeUint32
	case reflect.Uint64:
		return core.TypeUint64
	case reflect.Float32:
		return core.TypeFloat32
	case reflect.Float64:
		return core.TypeFloat64
	case reflect.String:
		return core.TypeString
	}
	return core.TypeUnknown
}

// Encode formats a scalar or string value and returns its type.
func (c *Codec) Encode(v any) (string, core.DataType, error) {
	if v == nil {
		return "", core.TypeUnknown, fmt.Errorf("cannot encode nil value")
	}
	rv := reflect.ValueOf(v)
	dt := typeOfKind(rv.Kind())
	switch dt {
	case core.TypeBool:
		return FormatBool(rv.Bool()), dt, nil
	case core.TypeInt8, core.TypeInt16, core.TypeInt32, core.TypeInt64:
		return strconv.FormatInt(rv.Int(), 10), dt, nil
	case core.TypeUint8, core.TypeUint16, core.TypeUint32, core.TypeUint64:
		return strconv.FormatUint(rv.Uint(), 10), dt, nil
	case core.TypeFloat32:
		return c.FormatFloat(rv.Float(), 32), dt, nil
	case core.TypeFloat64:
		return c.FormatFloat(rv.Float(), 64), dt, nil
	case core.TypeString:
		return rv.String(), dt, nil
	}
	return "", core.TypeUnknown, fmt.Errorf("unsupported value type %T", v)
}

// Decode parses text into the scalar or string ptr points to.
// Empty text decodes to the zero value.
func (c *Codec) Decode(text string, ptr any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", ptr)
	}
	elem := rv.Elem()
	dt := typeOfKind(elem.Kind())
	if dt == core.TypeString {
		elem.SetString(text)
		return nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		elem.SetZero()
		return nil
	}
	switch dt {
	case core.TypeBool:
		b, err := ParseBool(text)
		if err != nil {
			return err
		}
		elem.SetBool(b)
	case core.TypeInt8, core.TypeInt16, core.TypeInt32, core.TypeInt64:
		n, err := strconv.ParseInt(text, 10, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", dt, text, err)
		}
		elem.SetInt(n)
	case core.TypeUint8, core.TypeUint16, core.TypeUint32, core.TypeUint64:
		n, err := strconv.ParseUint(text, 10, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", dt, text, err)
		}
		elem.SetUint(n)
	case core.TypeFloat32, core.TypeFloat64:
		f, err := parseFloat(text, elem.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", dt, text, err)
		}
		elem.SetFloat(f)
	default:
		return fmt.Errorf("unsupported decode target %T", ptr)
	}
	return nil
}

func parseFloat(text string, bits int) (float64, error) {
	switch strings.ToLower(text) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(text, bits)
}

// VerifyDataType checks that a stored type tag matches the expected one.
func VerifyDataType(stored, expected string) error {
	if stored == expected {
		return nil
	}
	return core.Errorf(core.DataTypeMismatch, "VerifyDataType", "stored type %q, expected %q", stored, expected)
}
