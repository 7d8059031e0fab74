package potency

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schell/potency/backend/memory"
	"github.com/schell/potency/backend/sqlite"
)

// TestEntrySlowFunctionRunsOnce: the second identical call is served from
// the backend without waiting on the function.
func TestEntrySlowFunctionRunsOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})

	calls := 0
	slow := func(ms uint64, word string) string {
		calls++
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return fmt.Sprintf("%d %s", ms, word)
	}

	start := time.Now()
	v, err := Entry[string](s, slow).Param(uint64(500)).Param("hello").Run(ctx)
	first := time.Since(start)
	if err != nil || v != "500 hello" {
		t.Fatalf("first: v=%q err=%v", v, err)
	}
	if first < 500*time.Millisecond {
		t.Fatalf("first call returned after %v, before the function finished", first)
	}

	start = time.Now()
	v, err = Entry[string](s, slow).Param(uint64(500)).Param("hello").Run(ctx)
	second := time.Since(start)
	if err != nil || v != "500 hello" {
		t.Fatalf("second: v=%q err=%v", v, err)
	}
	if calls != 1 {
		t.Fatalf("function ran %d times", calls)
	}
	if second >= first/2 {
		t.Fatalf("memoized call took %v (first %v)", second, first)
	}
}

func TestEntryParamOrderMatters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})
	calls := 0
	join := func(a, b string) string { calls++; return a + b }

	xy, err := Entry[string](s, join).Param("x").Param("y").Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	yx, err := Entry[string](s, join).Param("y").Param("x").Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if xy != "xy" || yx != "yx" || calls != 2 {
		t.Fatalf("xy=%q yx=%q calls=%d", xy, yx, calls)
	}

	k1, _ := Entry[string](s, join).Param("x").Param("y").Key()
	k2, _ := Entry[string](s, join).Param("y").Param("x").Key()
	if k1.Equal(k2) {
		t.Fatalf("swapped params share key %v", k1)
	}
}

func TestEntryBuilderIsImmutable(t *testing.T) {
	s := newTestStore(t, memory.New(), Options{}).Namespace("ns")
	base := Entry[int](s, func(a, b int) int { return a + b }).Param(1)

	two, _ := base.Param(2).Key()
	three, _ := base.Param(3).Key()
	if two.String() != "ns,1,2" || three.String() != "ns,1,3" {
		t.Fatalf("keys %q %q", two, three)
	}
	if k, _ := base.Key(); k.String() != "ns,1" {
		t.Fatalf("base key changed to %q", k)
	}
}

func TestEntryResultShapes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})

	if v, err := Entry[int](s, func(a int) (int, error) { return a * 2, nil }).Param(4).Run(ctx); err != nil || v != 8 {
		t.Fatalf("(T, error): v=%d err=%v", v, err)
	}

	boom := errors.New("boom")
	if _, err := Entry[int](s, func(a int) (int, error) { return 0, boom }).Param(5).Run(ctx); !errors.Is(err, boom) {
		t.Fatalf("error not propagated: %v", err)
	}

	ran := 0
	side := func(name string) error { ran++; return nil }
	for i := 0; i < 2; i++ {
		if _, err := Entry[struct{}](s.Namespace("unit"), side).Param("once").Run(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if ran != 1 {
		t.Fatalf("unit result function ran %d times", ran)
	}

	// concrete result into an interface-typed T
	v, err := Entry[fmt.Stringer](s.Namespace("iface"), func() time.Duration { return time.Second }).Run(ctx)
	if err == nil {
		t.Fatalf("expected decode error for interface result, got %v", v)
	}
}

func TestEntryContextPassesContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "seen")
	s := newTestStore(t, memory.New(), Options{})

	v, err := EntryContext[string](s, func(ctx context.Context, suffix string) (string, error) {
		got, _ := ctx.Value(ctxKey{}).(string)
		return got + suffix, nil
	}).Param("!").Run(ctx)
	if err != nil || v != "seen!" {
		t.Fatalf("v=%q err=%v", v, err)
	}
}

func TestEntryNumericConversion(t *testing.T) {
	s := newTestStore(t, memory.New(), Options{})
	v, err := Entry[float64](s, func(a uint32, b float32) float64 { return float64(a) + float64(b) }).
		Param(1).
		Param(2.5).
		Run(context.Background())
	if err != nil || v != 3.5 {
		t.Fatalf("v=%v err=%v", v, err)
	}
}

type hiddenCfg struct{ n int }

func TestEntryBindErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})
	ran := false
	add := func(a, b int) int { ran = true; return a + b }

	cases := []struct {
		name string
		run  func() error
		want string
	}{
		{"not a function", func() error { _, err := Entry[int](s, 42).Run(ctx); return err }, "not a function"},
		{"nil function", func() error { _, err := Entry[int](s, nil).Run(ctx); return err }, "nil function"},
		{"too few", func() error { _, err := Entry[int](s, add).Param(1).Run(ctx); return err }, "takes 2 params, got 1"},
		{"too many", func() error { _, err := Entry[int](s, add).Param(1).Param(2).Param(3).Run(ctx); return err }, "takes 2 params, got 3"},
		{"wrong type", func() error { _, err := Entry[int](s, add).Param(1).Param("2").Run(ctx); return err }, "param 1"},
		{"overflow", func() error {
			_, err := Entry[int](s, func(a uint8) int { ran = true; return int(a) }).Param(300).Run(ctx)
			return err
		}, "does not fit"},
		{"fraction", func() error {
			_, err := Entry[int](s, func(a int) int { ran = true; return a }).Param(1.5).Run(ctx)
			return err
		}, "does not fit"},
		{"wrong result", func() error { _, err := Entry[string](s, add).Param(1).Param(2).Run(ctx); return err }, "does not return string"},
		{"missing context", func() error { _, err := EntryContext[int](s, add).Param(1).Param(2).Run(ctx); return err }, "context.Context"},
		{"variadic", func() error {
			_, err := Entry[int](s, func(xs ...int) int { ran = true; return len(xs) }).Param(1).Run(ctx)
			return err
		}, "variadic"},
		{"error as value", func() error {
			_, err := Entry[any](s, func(a int) error { ran = true; return nil }).Param(1).Run(ctx)
			return err
		}, "does not return interface {}"},
		{"hidden fields", func() error {
			_, err := Entry[int](s, func(c hiddenCfg) int { ran = true; return c.n }).Param(hiddenCfg{n: 1}).Run(ctx)
			return err
		}, "unexported fields"},
		{"unkeyable", func() error { _, err := Entry[int](s, func(f func()) int { ran = true; return 0 }).Param(func() {}).Run(ctx); return err }, "unsupported parameter type"},
	}
	for _, tc := range cases {
		err := tc.run()
		var be *BindError
		if !errors.As(err, &be) || !errors.Is(err, ErrBind) {
			t.Fatalf("%s: expected BindError, got %v", tc.name, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
	if ran {
		t.Fatalf("function ran despite a bind error")
	}
	if _, err := Entry[int](nil, add).Run(ctx); !errors.Is(err, ErrBind) {
		t.Fatalf("nil store: %v", err)
	}
}

func TestEntryNilParam(t *testing.T) {
	s := newTestStore(t, memory.New(), Options{})
	v, err := Entry[bool](s, func(p *int) bool { return p == nil }).Param(nil).Run(context.Background())
	if err != nil || !v {
		t.Fatalf("v=%v err=%v", v, err)
	}
	if _, err := Entry[int](s, func(a int) int { return a }).Param(nil).Run(context.Background()); !errors.Is(err, ErrBind) {
		t.Fatalf("nil into int: %v", err)
	}
}

func TestEntryForget(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})
	n := 0
	next := func(string) int { n++; return n }

	e := Entry[int](s, next).Param("counter")
	for _, want := range []int{1, 1} {
		if v, err := e.Run(ctx); err != nil || v != want {
			t.Fatalf("v=%d err=%v want %d", v, err, want)
		}
	}
	if err := e.Forget(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := e.Run(ctx); v != 2 {
		t.Fatalf("after Forget v=%d", v)
	}
}

// TestSQLiteSum3 persists across reopening the database file.
func TestSQLiteSum3(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "potency.db")

	calls := 0
	sum3 := func(_ context.Context, a, b, c uint32) (uint32, error) {
		calls++
		return a + b + c, nil
	}
	run := func() uint32 {
		t.Helper()
		db, err := sqlite.Open(ctx, sqlite.Config{Path: path})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer db.Close(ctx)
		s := newTestStore(t, db, Options{Namespace: []string{"sum3"}})
		v, err := EntryContext[uint32](s, sum3).Param(1).Param(2).Param(3).Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return v
	}

	if v := run(); v != 6 {
		t.Fatalf("sum3 = %d", v)
	}
	if v := run(); v != 6 {
		t.Fatalf("sum3 after reopen = %d", v)
	}
	if calls != 1 {
		t.Fatalf("sum3 ran %d times", calls)
	}
}

type limits struct{ max int }

func (l limits) CacheKey() string { return fmt.Sprintf("limits(%d)", l.max) }

func TestEntryStructParamsGetDistinctKeys(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, memory.New(), Options{})
	double := func(l limits) int { return l.max * 2 }

	a, err := Entry[int](s, double).Param(limits{max: 1}).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Entry[int](s, double).Param(limits{max: 21}).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a != 2 || b != 42 {
		t.Fatalf("a=%d b=%d", a, b)
	}
}
