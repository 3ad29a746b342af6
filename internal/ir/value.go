package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is a sealed interface representing constrained cell and literal values.
// Only IRNull, IRString, IRInt, IRBool, IRArray, and IRObject implement this.
// NO IRFloat - floats are forbidden (they break determinism).
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a missing value (an unmatched outer-join cell, a null literal).
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Timestamps are IRInt Unix nanoseconds.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// Null is the shared IRNull value.
var Null IRValue = IRNull{}

// Kind identifies the concrete variant of an IRValue.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "int", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// KindOf returns the kind of v. A nil interface is reported as KindNull.
func KindOf(v IRValue) Kind {
	switch v.(type) {
	case nil, IRNull:
		return KindNull
	case IRBool:
		return KindBool
	case IRInt:
		return KindInt
	case IRString:
		return KindString
	case IRArray:
		return KindArray
	case IRObject:
		return KindObject
	default:
		panic(fmt.Sprintf("unknown IRValue type %T", v))
	}
}

// IsNull reports whether v is missing.
func IsNull(v IRValue) bool {
	return KindOf(v) == KindNull
}

// Equal reports value equality with SQL semantics: null never equals
// anything, including another null.
func Equal(a, b IRValue) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	return KindOf(a) == KindOf(b) && Compare(a, b) == 0
}

// Identical is like Equal but treats two nulls as the same value.
// Used when comparing frames, not when evaluating predicates.
func Identical(a, b IRValue) bool {
	if IsNull(a) && IsNull(b) {
		return true
	}
	return Equal(a, b)
}

// Compare is a total order over IRValues. Values of different kinds order
// by kind, except that null always sorts last. Within a kind: false < true,
// integers numerically, strings bytewise, arrays element-wise.
func Compare(a, b IRValue) int {
	ka, kb := KindOf(a), KindOf(b)
	if ka == KindNull || kb == KindNull {
		switch {
		case ka == kb:
			return 0
		case ka == KindNull:
			return 1
		default:
			return -1
		}
	}
	if ka != kb {
		return cmpInt(int64(ka), int64(kb))
	}

	switch av := a.(type) {
	case IRBool:
		bv := b.(IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case IRInt:
		return cmpInt(int64(av), int64(b.(IRInt)))
	case IRString:
		return strings.Compare(string(av), string(b.(IRString)))
	case IRArray:
		bv := b.(IRArray)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Compare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(av)), int64(len(bv)))
	case IRObject:
		bv := b.(IRObject)
		ak, bk := av.SortedKeys(), bv.SortedKeys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := compareKeysRFC8785(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Compare(av[ak[i]], bv[bk[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(int64(len(ak)), int64(len(bk)))
	}
	return 0
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders v for explain output and diagnostics.
// Strings are quoted; null renders as "null".
func String(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return "null"
	case IRString:
		return strconv.Quote(string(val))
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRBool:
		return strconv.FormatBool(bool(val))
	case IRArray:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = String(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case IRObject:
		keys := val.SortedKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Quote(k) + ": " + String(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return cmpInt(int64(len(a16)), int64(len(b16)))
}

// FromAny converts a decoded Go value (from YAML, CUE or JSON) to an IRValue.
//
// nil becomes IRNull. Floats are accepted only when integral, since YAML and
// CUE decoders may surface integers as float64; any fractional value is
// rejected.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) || val > math.MaxInt64 || val < math.MinInt64 {
			return nil, fmt.Errorf("floats are forbidden: %v", val)
		}
		return IRInt(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ToAny converts an IRValue back to a plain Go value (nil, bool, int64,
// string, []any, map[string]any). Used for driver parameters and JSON output.
func ToAny(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRBool:
		return bool(val)
	case IRInt:
		return int64(val)
	case IRString:
		return string(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}
