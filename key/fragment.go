package key

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Keyer is implemented by types that render their own key fragment.
type Keyer interface {
	CacheKey() string
}

// Tuple renders as the comma-joined fragments of its elements, without any
// enclosing tag. It mirrors how a whole argument list is rendered.
type Tuple []any

// UnsupportedError reports a value that has no canonical fragment.
type UnsupportedError struct {
	Type reflect.Type
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("key: unsupported parameter type %s", e.Type)
}

// HiddenFieldsError reports a struct whose unexported fields would be left out
// of its fragment. Implement Keyer or encoding.TextMarshaler on such types.
type HiddenFieldsError struct {
	Type reflect.Type
}

func (e *HiddenFieldsError) Error() string {
	return fmt.Sprintf("key: %s has unexported fields; implement CacheKey or MarshalText", e.Type)
}

// ErrCycle is returned for values that reference themselves.
var ErrCycle = errors.New("key: cyclic value")

var (
	keyerType = reflect.TypeOf((*Keyer)(nil)).Elem()
	textType  = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	tupleType = reflect.TypeOf(Tuple(nil))
)

// Derive renders values as one tuple fragment.
func Derive(values ...any) (string, error) {
	return Fragment(Tuple(values))
}

// Fragment renders v as a canonical key fragment.
func Fragment(v any) (string, error) {
	if v == nil {
		return "nil", nil
	}
	var b strings.Builder
	w := walker{b: &b}
	if err := w.write(reflect.ValueOf(v)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// visit identifies a reference on the current path. Slices that share a
// backing array but differ in length are different values.
type visit struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type walker struct {
	b    *strings.Builder
	path map[visit]struct{}
}

// enter marks rv as being rendered. Only the current path is tracked, so a
// value reached twice through siblings is fine.
func (w *walker) enter(rv reflect.Value) (func(), error) {
	v := visit{ptr: rv.Pointer(), typ: rv.Type()}
	if rv.Kind() == reflect.Slice {
		v.n = rv.Len()
	}
	if _, ok := w.path[v]; ok {
		return nil, fmt.Errorf("%w through %s", ErrCycle, rv.Type())
	}
	if w.path == nil {
		w.path = make(map[visit]struct{})
	}
	w.path[v] = struct{}{}
	return func() { delete(w.path, v) }, nil
}

// MustFragment is like Fragment but panics on unsupported values.
func MustFragment(v any) string {
	s, err := Fragment(v)
	if err != nil {
		panic(err)
	}
	return s
}

func (w *walker) write(rv reflect.Value) error {
	b := w.b
	if !rv.IsValid() {
		b.WriteString("nil")
		return nil
	}
	t := rv.Type()

	switch {
	case t == tupleType:
		leave, err := w.enter(rv)
		if err != nil {
			return err
		}
		defer leave()
		return w.writeList(rv)
	case t.Implements(keyerType):
		if isNilable(rv) && rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		b.WriteString(rv.Interface().(Keyer).CacheKey())
		return nil
	case t.Implements(textType):
		if isNilable(rv) && rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		txt, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return fmt.Errorf("key: marshal %s: %w", t, err)
		}
		b.Write(txt)
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		b.WriteString(rv.String())
	case reflect.Bool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 32))
	case reflect.Float64:
		b.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Complex64:
		b.WriteString(strconv.FormatComplex(rv.Complex(), 'g', -1, 64))
	case reflect.Complex128:
		b.WriteString(strconv.FormatComplex(rv.Complex(), 'g', -1, 128))
	case reflect.Interface:
		if rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		return w.write(rv.Elem())
	case reflect.Pointer:
		if rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		leave, err := w.enter(rv)
		if err != nil {
			return err
		}
		defer leave()
		return w.write(rv.Elem())
	case reflect.Slice:
		if rv.IsNil() {
			b.WriteString("nil")
			return nil
		}
		leave, err := w.enter(rv)
		if err != nil {
			return err
		}
		defer leave()
		b.WriteString("v[")
		if err := w.writeList(rv); err != nil {
			return err
		}
		b.WriteByte(']')
	case reflect.Array:
		b.WriteByte('a')
		b.WriteString(strconv.Itoa(rv.Len()))
		b.WriteByte('[')
		if err := w.writeList(rv); err != nil {
			return err
		}
		b.WriteByte(']')
	case reflect.Map:
		return w.writeMap(rv)
	case reflect.Struct:
		if t.NumField() == 0 {
			b.WriteString("()")
			return nil
		}
		return w.writeStruct(rv)
	default:
		return &UnsupportedError{Type: t}
	}
	return nil
}

func (w *walker) writeList(rv reflect.Value) error {
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			w.b.WriteString(Delimiter)
		}
		if err := w.write(rv.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

// writeMap orders pairs by key fragment, then value fragment, so keys that
// render alike (1 and "1" in a map[any]T) still come out in a stable order.
func (w *walker) writeMap(rv reflect.Value) error {
	b := w.b
	if rv.IsNil() {
		b.WriteString("nil")
		return nil
	}
	leave, err := w.enter(rv)
	if err != nil {
		return err
	}
	defer leave()

	type pair struct{ k, v string }
	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := w.sub(iter.Key())
		if err != nil {
			return err
		}
		v, err := w.sub(iter.Value())
		if err != nil {
			return err
		}
		pairs = append(pairs, pair{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k != pairs[j].k {
			return pairs[i].k < pairs[j].k
		}
		return pairs[i].v < pairs[j].v
	})

	b.WriteString("m{")
	for i, p := range pairs {
		if i > 0 {
			b.WriteString(Delimiter)
		}
		b.WriteString(p.k)
		b.WriteByte(':')
		b.WriteString(p.v)
	}
	b.WriteByte('}')
	return nil
}

// sub renders rv on its own, sharing the cycle path.
func (w *walker) sub(rv reflect.Value) (string, error) {
	var b strings.Builder
	sw := walker{b: &b, path: w.path}
	if err := sw.write(rv); err != nil {
		return "", err
	}
	return b.String(), nil
}

// structs render their fields in declaration order. A struct with
// unexported fields has no faithful rendering of its own.
func (w *walker) writeStruct(rv reflect.Value) error {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if !t.Field(i).IsExported() {
			return &HiddenFieldsError{Type: t}
		}
	}
	w.b.WriteByte('{')
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			w.b.WriteString(Delimiter)
		}
		if err := w.write(rv.Field(i)); err != nil {
			return err
		}
	}
	w.b.WriteByte('}')
	return nil
}

func isNilable(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}
