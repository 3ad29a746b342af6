package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/relplan/internal/ir"
)

// ErrDuplicateColumn is returned when a schema or a combined output would
// carry the same column name twice.
var ErrDuplicateColumn = errors.New("duplicate column name")

// DType is a column data type.
type DType string

const (
	String    DType = "string"
	Int64     DType = "int64"
	Bool      DType = "bool"
	Timestamp DType = "timestamp" // ir.IRInt Unix nanoseconds
	Unknown   DType = "unknown"
)

// ParseDType parses a type name. Common aliases are accepted.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "str", "text", "utf8":
		return String, nil
	case "int64", "int", "integer", "bigint":
		return Int64, nil
	case "bool", "boolean":
		return Bool, nil
	case "timestamp", "time", "datetime":
		return Timestamp, nil
	case "unknown", "any":
		return Unknown, nil
	case "float", "float32", "float64", "double":
		return "", fmt.Errorf("float types are forbidden: %q", s)
	default:
		return "", fmt.Errorf("unknown column type %q", s)
	}
}

// Accepts reports whether v can be stored in a column of this type.
// Null fits every type.
func (d DType) Accepts(v ir.IRValue) bool {
	switch ir.KindOf(v) {
	case ir.KindNull:
		return true
	case ir.KindString:
		return d == String || d == Unknown
	case ir.KindInt:
		return d == Int64 || d == Timestamp || d == Unknown
	case ir.KindBool:
		return d == Bool || d == Unknown
	default:
		return d == Unknown
	}
}

// Ordered reports whether values of this type have a meaningful order for
// as-of matching.
func (d DType) Ordered() bool {
	return d == Int64 || d == Timestamp || d == String
}

// Column is a named, typed column.
type Column struct {
	Name string `json:"name" yaml:"name"`
	Type DType  `json:"type" yaml:"type"`
}

// Schema is an ordered list of columns. Order is significant: engines
// must emit columns in exactly this order.
type Schema []Column

// New builds a schema from columns and validates it.
func New(cols ...Column) (Schema, error) {
	s := Schema(cols)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// MustNew is like New but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustNew(cols ...Column) Schema {
	s, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks that every column has a non-empty, unique name.
func (s Schema) Validate() error {
	seen := make(map[string]bool, len(s))
	for i, c := range s {
		if c.Name == "" {
			return fmt.Errorf("column %d: empty name", i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// Names returns column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Lookup returns the column called name.
func (s Schema) Lookup(name string) (Column, bool) {
	if i := s.Index(name); i >= 0 {
		return s[i], true
	}
	return Column{}, false
}

// String renders the schema as "name:type, ...".
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return strings.Join(parts, ", ")
}
