package sqlpool

import (
	"database/sql/driver"
	"reflect"
	"time"
)

// ArgKind classifies a query argument for packing.
type ArgKind uint8

const (
	// ArgScalar occupies one parameter slot.
	ArgScalar ArgKind = iota
	// ArgFixedArray occupies one slot per element.
	ArgFixedArray
	// ArgTuple occupies one slot per component.
	ArgTuple
	// ArgStruct occupies one slot per exported field.
	ArgStruct
)

func (k ArgKind) String() string {
	switch k {
	case ArgScalar:
		return "scalar"
	case ArgFixedArray:
		return "fixed_array"
	case ArgTuple:
		return "tuple"
	case ArgStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// Tuple is an ordered group of values that expands to one parameter per
// component.
type Tuple []any

// T builds a Tuple.
func T(vals ...any) Tuple {
	return Tuple(vals)
}

var (
	valuerType = reflect.TypeFor[driver.Valuer]()
	timeType   = reflect.TypeFor[time.Time]()
	tupleType  = reflect.TypeFor[Tuple]()
)

// KindOf reports how v is packed.
func KindOf(v any) ArgKind {
	if v == nil {
		return ArgScalar
	}
	if _, ok := v.(Tuple); ok {
		return ArgTuple
	}
	return kindOfValue(reflect.ValueOf(v))
}

func kindOfValue(rv reflect.Value) ArgKind {
	if isLeaf(rv.Type()) {
		return ArgScalar
	}
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		return ArgFixedArray
	case reflect.Struct:
		return ArgStruct
	case reflect.Pointer:
		if rv.IsNil() || rv.Type().Elem().Kind() != reflect.Struct || isLeaf(rv.Type().Elem()) {
			return ArgScalar
		}
		return ArgStruct
	}
	return ArgScalar
}

// isLeaf reports types that bind as a single value even though they are
// aggregates in Go.
func isLeaf(t reflect.Type) bool {
	if t == tupleType {
		return false
	}
	if t.Implements(valuerType) || t == timeType {
		return true
	}
	// []byte binds as a blob.
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return true
	}
	// Value-receiver Valuers such as sql.NullString are caught above; pointer
	// receivers are checked on the addressable form.
	if t.Kind() == reflect.Struct && reflect.PointerTo(t).Implements(valuerType) {
		return true
	}
	return false
}

// Pack flattens args into positional parameters in left to right order.
// Scalars take one slot, arrays and slices one slot per element, a Tuple one
// slot per component and a struct one slot per exported field. Tuple
// components are not expanded further. Nothing is
// coerced; the driver validates the values at bind time.
func Pack(args ...any) []any {
	out := make([]any, 0, len(args))
	for _, arg := range args {
		out = packArg(out, arg)
	}
	return out
}

func packArg(out []any, arg any) []any {
	if arg == nil {
		return append(out, nil)
	}
	if tup, ok := arg.(Tuple); ok {
		for _, c := range tup {
			out = packComponent(out, c)
		}
		return out
	}
	return packValue(out, reflect.ValueOf(arg))
}

// packComponent binds a tuple component as one slot. A nested Tuple is
// opened one level; its own components are bound as they are.
func packComponent(out []any, c any) []any {
	if inner, ok := c.(Tuple); ok {
		return append(out, inner...)
	}
	return append(out, c)
}

func packValue(out []any, rv reflect.Value) []any {
	switch kindOfValue(rv) {
	case ArgFixedArray:
		for i := 0; i < rv.Len(); i++ {
			out = append(out, rv.Index(i).Interface())
		}
		return out
	case ArgStruct:
		if rv.Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		for _, idx := range structFields(rv.Type()) {
			out = append(out, rv.FieldByIndex(idx).Interface())
		}
		return out
	default:
		return append(out, rv.Interface())
	}
}

// structFields returns the index paths of the exported fields of t in
// declaration order. Embedded structs are inlined at their position and
// fields tagged db:"-" are skipped.
func structFields(t reflect.Type) [][]int {
	var fields [][]int
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get("db") == "-" {
			continue
		}
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				// Embedded pointers are not followed.
				continue
			}
			if ft.Kind() == reflect.Struct && !isLeaf(ft) {
				for _, sub := range structFields(ft) {
					fields = append(fields, append([]int{i}, sub...))
				}
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		fields = append(fields, []int{i})
	}
	return fields
}
