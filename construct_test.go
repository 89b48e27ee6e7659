package wirez

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type point struct {
	X, Y int
	Tags []string
}

func newPoint(x, y int, tags ...string) *point {
	return &point{X: x, Y: y, Tags: tags}
}

func TestApplyConstructor(t *testing.T) {
	t.Run("Plain Arguments", func(t *testing.T) {
		got, err := ApplyConstructor(newPoint, 1, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p := got.(*point); p.X != 1 || p.Y != 2 || len(p.Tags) != 0 {
			t.Errorf("unexpected point %+v", p)
		}
	})

	t.Run("Spreads Trailing Slice", func(t *testing.T) {
		got, err := ApplyConstructor(newPoint, 1, []any{2, "a", "b"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p := got.(*point); p.Y != 2 || len(p.Tags) != 2 || p.Tags[1] != "b" {
			t.Errorf("unexpected point %+v", p)
		}
	})

	t.Run("Converts And Zeroes", func(t *testing.T) {
		got, err := ApplyConstructor(newPoint, 3.0, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p := got.(*point); p.X != 3 || p.Y != 0 {
			t.Errorf("unexpected point %+v", p)
		}
	})

	t.Run("Returns Constructor Error", func(t *testing.T) {
		boom := errors.New("boom")
		ctor := func(fail bool) (*point, error) {
			if fail {
				return nil, boom
			}
			return &point{}, nil
		}
		if _, err := ApplyConstructor(ctor, true); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
		if got, err := ApplyConstructor(ctor, false); err != nil || got.(*point) == nil {
			t.Errorf("expected point, got %v (%v)", got, err)
		}
	})

	t.Run("Multiple Results", func(t *testing.T) {
		got, err := ApplyConstructor(func() (int, string) { return 1, "a" })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if vals := got.([]any); len(vals) != 2 || vals[1] != "a" {
			t.Errorf("unexpected results %v", got)
		}
	})

	t.Run("Misuse", func(t *testing.T) {
		tests := []struct {
			name string
			ctor any
			args []any
			want error
		}{
			{"not callable", 42, nil, ErrNotCallable},
			{"nil", nil, nil, ErrNotCallable},
			{"too few", newPoint, []any{1}, ErrArgument},
			{"too many", func(int) int { return 0 }, []any{1, 2}, ErrArgument},
			{"wrong type", newPoint, []any{"x", 1}, ErrArgument},
			{"number as string", newPoint, []any{1, 2, 3}, ErrArgument},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ApplyConstructor(tt.ctor, tt.args...)
				if !errors.Is(err, tt.want) {
					t.Errorf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})

	t.Run("Stdlib Constructor", func(t *testing.T) {
		got, err := ApplyConstructor(strings.NewReplacer, "a", []any{"b"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out := got.(*strings.Replacer).Replace("aaa"); out != "bbb" {
			t.Errorf("unexpected replacement %q", out)
		}
	})

	t.Run("Error Only Result", func(t *testing.T) {
		_, err := ApplyConstructor(fmt.Errorf, "code %d", []any{7})
		if err == nil || err.Error() != "code 7" {
			t.Errorf("expected the returned error, got %v", err)
		}
	})
}
