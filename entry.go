package potency

import (
	"context"
	"fmt"
	"reflect"

	"github.com/schell/potency/key"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	unitType    = reflect.TypeOf((*struct{})(nil)).Elem()
)

// Builder binds a function to an ordered parameter list. Each Param both
// extends the key and supplies the next argument, so the key always
// describes exactly the call that produces the value.
//
// Builders are immutable: Param returns a new Builder and the receiver can be
// reused as a common base.
type Builder[T any] struct {
	store   *Store
	fn      reflect.Value
	withCtx bool
	frags   []string
	args    []any
	err     error
}

// Entry starts a builder for fn, a function of the Param values in order.
// fn may return (T, error), T, or error when T is struct{}. A lone error
// result is never stored as a value, even when T is any.
func Entry[T any](s *Store, fn any) *Builder[T] {
	return newBuilder[T](s, fn, false)
}

// EntryContext is like Entry for functions taking a context.Context first.
// Run passes its ctx through.
func EntryContext[T any](s *Store, fn any) *Builder[T] {
	return newBuilder[T](s, fn, true)
}

func newBuilder[T any](s *Store, fn any, withCtx bool) *Builder[T] {
	b := &Builder[T]{store: s, withCtx: withCtx}
	rv := reflect.ValueOf(fn)
	switch {
	case s == nil:
		b.err = &BindError{Reason: "entry: nil store"}
	case fn == nil:
		b.err = &BindError{Reason: "entry: nil function"}
	case rv.Kind() != reflect.Func:
		b.err = &BindError{Reason: fmt.Sprintf("entry: %T is not a function", fn)}
	case rv.IsNil():
		b.err = &BindError{Reason: "entry: nil function"}
	default:
		b.fn = rv
	}
	return b
}

// Param appends v as the next argument and key fragment.
func (b *Builder[T]) Param(v any) *Builder[T] {
	nb := *b
	n := len(b.args)
	nb.args = append(b.args[:n:n], v)

	frag := ""
	if nb.err == nil {
		f, err := key.Fragment(v)
		if err != nil {
			nb.err = &BindError{Reason: fmt.Sprintf("param %d", n), Err: err}
		}
		frag = f
	}
	nb.frags = append(b.frags[:n:n], frag)
	return &nb
}

// Key is the key Run would use.
func (b *Builder[T]) Key() (key.Key, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.store.ns.Append(b.frags...), nil
}

// Run fetches the memoized result or calls the function and stores it.
func (b *Builder[T]) Run(ctx context.Context) (T, error) {
	var zero T
	k, err := b.Key()
	if err == nil {
		var task Task[T]
		if task, err = b.task(); err == nil {
			return FetchOrCompute(ctx, b.store, k, task)
		}
	}
	if b.store != nil {
		b.store.stats.failures.Add(1)
	}
	return zero, err
}

// Forget drops the memoized result for this call.
func (b *Builder[T]) Forget(ctx context.Context) error {
	k, err := b.Key()
	if err != nil {
		return err
	}
	return b.store.Forget(ctx, k)
}

// task checks fn against the bound arguments and T once, then returns the
// call as a Task.
func (b *Builder[T]) task() (Task[T], error) {
	ft := b.fn.Type()
	if ft.IsVariadic() {
		return nil, &BindError{Reason: "entry: variadic functions are not supported"}
	}

	off := 0
	if b.withCtx {
		if ft.NumIn() == 0 || ft.In(0) != contextType {
			return nil, &BindError{Reason: fmt.Sprintf("entry: %s does not take a context.Context first", ft)}
		}
		off = 1
	}
	if got, want := len(b.args), ft.NumIn()-off; got != want {
		return nil, &BindError{Reason: fmt.Sprintf("entry: %s takes %d params, got %d", ft, want, got)}
	}

	in := make([]reflect.Value, ft.NumIn())
	for i, a := range b.args {
		v, err := bindArg(a, ft.In(i+off))
		if err != nil {
			return nil, &BindError{Reason: fmt.Sprintf("param %d", i), Err: err}
		}
		in[i+off] = v
	}

	result, err := resultOf[T](ft)
	if err != nil {
		return nil, err
	}

	fn, withCtx := b.fn, b.withCtx
	return func(ctx context.Context) (T, error) {
		args := in
		if withCtx {
			args = make([]reflect.Value, len(in))
			copy(args, in)
			args[0] = reflect.ValueOf(&ctx).Elem()
		}
		return result(fn.Call(args))
	}, nil
}

// resultOf maps fn's results onto (T, error).
func resultOf[T any](ft reflect.Type) (func([]reflect.Value) (T, error), error) {
	want := reflect.TypeOf((*T)(nil)).Elem()

	switch {
	case ft.NumOut() == 2 && ft.Out(1) == errorType && ft.Out(0).AssignableTo(want):
		return func(out []reflect.Value) (T, error) {
			var v T
			if err, _ := out[1].Interface().(error); err != nil {
				return v, err
			}
			reflect.ValueOf(&v).Elem().Set(out[0])
			return v, nil
		}, nil
	case ft.NumOut() == 1 && ft.Out(0) == errorType && want == unitType:
		return func(out []reflect.Value) (T, error) {
			var v T
			err, _ := out[0].Interface().(error)
			return v, err
		}, nil
	case ft.NumOut() == 1 && ft.Out(0) != errorType && ft.Out(0).AssignableTo(want):
		return func(out []reflect.Value) (T, error) {
			var v T
			reflect.ValueOf(&v).Elem().Set(out[0])
			return v, nil
		}, nil
	}
	return nil, &BindError{Reason: fmt.Sprintf("entry: %s does not return %s", ft, want)}
}

// bindArg converts a param to the function's parameter type. Numeric kinds
// convert when the value survives the round trip; anything else must be
// assignable as is.
func bindArg(a any, want reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a %s", want)
	}

	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if isNumeric(v.Kind()) && isNumeric(want.Kind()) {
		c := v.Convert(want)
		if !c.Convert(v.Type()).Equal(v) {
			return reflect.Value{}, fmt.Errorf("%v does not fit %s", a, want)
		}
		return c, nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), want)
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
