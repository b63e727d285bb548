package cell

import (
	"fmt"
	"reflect"
	"sync"
)

// LayoutError reports a type that cannot live in a Cell.
//
// Fields:
//   - Type: The rejected type
//   - Path: Selector path to the offending component ("" for Type itself),
//     e.g. ".Name" or ".Items[0].Next"
//   - Kind: Kind of the offending component
//
// Example output:
//
//	seqlock: type main.Config is not plain: .Name has kind string
type LayoutError struct {
	Type reflect.Type
	Path string
	Kind reflect.Kind
}

// Error implements the error interface.
func (e *LayoutError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("seqlock: type %v is not plain: kind %v holds indirection", e.Type, e.Kind)
	}
	return fmt.Sprintf("seqlock: type %v is not plain: %s has kind %v", e.Type, e.Path, e.Kind)
}

// Check reports whether values of type t may be copied while being
// overwritten. It returns nil for plain types and a *LayoutError naming the
// first component that holds indirection otherwise.
//
// Check walks arrays and structs recursively; blank (_) fields are checked
// like any other field because they are copied too.
func Check(t reflect.Type) error {
	if path, kind, ok := walk(t, ""); !ok {
		return &LayoutError{Type: t, Path: path, Kind: kind}
	}
	return nil
}

func walk(t reflect.Type, path string) (string, reflect.Kind, bool) {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return "", 0, true

	case reflect.Array:
		if t.Len() == 0 {
			return "", 0, true
		}
		return walk(t.Elem(), path+"[0]")

	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if p, k, ok := walk(f.Type, path+"."+f.Name); !ok {
				return p, k, false
			}
		}
		return "", 0, true

	default:
		return path, t.Kind(), false
	}
}

// verdicts caches Check results per type.
// Key: reflect.Type, Value: error (nil for plain types).
var verdicts sync.Map

// Validate is Check for T, cached per type.
//
// The writer path calls Validate on every acquisition, so after the first
// call for a type it costs a single sync.Map load.
func Validate[T any]() error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if v, ok := verdicts.Load(t); ok {
		if v == nil {
			return nil
		}
		return v.(error)
	}

	err := Check(t)
	if err == nil {
		verdicts.Store(t, nil)
		return nil
	}
	verdicts.Store(t, err)
	return err
}
