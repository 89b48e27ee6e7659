package wirez

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zoobzio/tracez"

	"github.com/zoobzio/wirez/frame"
)

func TestCompose(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty Pipeline Is Identity", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		out, err := r.Compose(KindSetter, "nothing")(ctx, 7)
		if err != nil || out != 7 {
			t.Errorf("expected 7, got %v (%v)", out, err)
		}
	})

	t.Run("Folds In Registration Order", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.RegisterSetter("double-inc", "inc", func(_ context.Context, v any, _ ...any) (any, error) {
			return v.(int) + 1, nil
		})
		r.RegisterSetter("double-inc", "double", func(_ context.Context, v any, _ ...any) (any, error) {
			return v.(int) * 2, nil
		})

		out, err := r.Compose(KindSetter, "double-inc")(ctx, 3)
		if err != nil || out != 8 {
			t.Errorf("expected 8, got %v (%v)", out, err)
		}
	})

	t.Run("Same Args For Every Stage", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		var mu sync.Mutex
		var seen [][]any
		record := func(_ context.Context, v any, args ...any) (any, error) {
			mu.Lock()
			seen = append(seen, args)
			mu.Unlock()
			return v, nil
		}
		r.RegisterGetter("q", "a", record)
		r.RegisterGetter("q", "b", record)

		if _, err := r.Compose(KindGetter, "q")(ctx, nil, "x", 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seen) != 2 {
			t.Fatalf("expected 2 calls, got %d", len(seen))
		}
		for _, args := range seen {
			if len(args) != 2 || args[0] != "x" || args[1] != 2 {
				t.Errorf("unexpected args %v", args)
			}
		}
	})

	t.Run("Stage Writes To Args Stay Local", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.RegisterGetter("q", "a", func(_ context.Context, v any, args ...any) (any, error) {
			args[0] = "mutated"
			return v, nil
		})
		var seen any
		r.RegisterGetter("q", "b", func(_ context.Context, v any, args ...any) (any, error) {
			seen = args[0]
			return v, nil
		})

		args := []any{"orig"}
		if _, err := r.Compose(KindGetter, "q")(ctx, nil, args...); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen != "orig" {
			t.Errorf("stage b saw %v", seen)
		}
		if args[0] != "orig" {
			t.Errorf("caller args changed to %v", args)
		}
	})

	t.Run("Binds Late", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		composed := r.Compose(KindSetter, "late")
		r.RegisterSetter("late", "upper", func(_ context.Context, v any, _ ...any) (any, error) {
			return strings.ToUpper(v.(string)), nil
		})

		out, err := composed(ctx, "hi")
		if err != nil || out != "HI" {
			t.Errorf("expected HI, got %v (%v)", out, err)
		}

		r.Remove(KindSetter, "late", "upper")
		out, _ = composed(ctx, "hi")
		if out != "hi" {
			t.Errorf("expected removal to apply, got %v", out)
		}
	})

	t.Run("Accepted Shapes", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.Register(KindSetter, "shapes", "unary", func(v any) any { return v.(int) + 1 })
		r.Register(KindSetter, "shapes", "variadic", func(v any, args ...any) any { return v.(int) + args[0].(int) })
		r.Register(KindSetter, "shapes", "unnamed", func(_ context.Context, v any, _ ...any) (any, error) { return v.(int) * 10, nil })

		out, err := r.Compose(KindSetter, "shapes")(ctx, 1, 5)
		if err != nil || out != 70 {
			t.Errorf("expected 70, got %v (%v)", out, err)
		}
	})

	t.Run("Unsupported Shape", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.Register(KindSetter, "bad", "two-args", func(a, b int) int { return a + b })
		_, err := r.Compose(KindSetter, "bad")(ctx, 1)
		if !errors.Is(err, ErrTransformShape) {
			t.Fatalf("expected ErrTransformShape, got %v", err)
		}
		if !strings.Contains(err.Error(), "setter bad/two-args") {
			t.Errorf("expected location in error, got %q", err)
		}
	})

	t.Run("Stage Error Returned Unchanged", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		boom := errors.New("boom")
		var after int
		r.RegisterSetter("fail", "a", func(_ context.Context, _ any, _ ...any) (any, error) {
			return nil, boom
		})
		r.RegisterSetter("fail", "b", func(_ context.Context, v any, _ ...any) (any, error) {
			after++
			return v, nil
		})

		_, err := r.Compose(KindSetter, "fail")(ctx, 1)
		if err != boom { //nolint:errorlint // identity is the point
			t.Errorf("expected boom unchanged, got %v", err)
		}
		if after != 0 {
			t.Error("stages after a failure must not run")
		}
		if r.Metrics().Counter(PipelineFailuresTotal).Value() != 1 {
			t.Error("expected failure to be counted")
		}
	})

	t.Run("Spans", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		var mu sync.Mutex
		var spans []tracez.Span
		r.Tracer().OnSpanComplete(func(span tracez.Span) {
			mu.Lock()
			spans = append(spans, span)
			mu.Unlock()
		})

		r.RegisterSetter("traced", "a", identity)
		r.RegisterSetter("traced", "b", identity)
		if _, err := r.Compose(KindSetter, "traced")(ctx, 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		mu.Lock()
		defer mu.Unlock()
		var folds, stages int
		for _, span := range spans {
			switch span.Name {
			case string(PipelineFoldSpan):
				folds++
				if span.Tags[PipelineTagStageCount] != "2" || span.Tags[PipelineTagID] != "traced" {
					t.Errorf("unexpected fold tags %v", span.Tags)
				}
			case string(PipelineStageSpan):
				stages++
			}
		}
		if folds != 1 || stages != 2 {
			t.Errorf("expected 1 fold and 2 stage spans, got %d and %d", folds, stages)
		}
		if r.Metrics().Counter(PipelineFoldsTotal).Value() != 1 {
			t.Error("expected fold to be counted")
		}
	})
}

func TestComposeFx(t *testing.T) {
	ctx := context.Background()
	cofx := frame.Coeffects{frame.KeyDB: frame.DB{"user": "ada"}}

	t.Run("Empty Is Identity", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		fx := frame.Effects{"log": "x"}
		out, err := r.ComposeFx("save")(ctx, fx, cofx)
		if err != nil || out["log"] != "x" || len(out) != 1 {
			t.Errorf("expected effects unchanged, got %v (%v)", out, err)
		}
	})

	t.Run("Reads Coeffects", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.RegisterFx("save", "audit", func(_ context.Context, fx frame.Effects, c frame.Coeffects) (frame.Effects, error) {
			next := frame.Effects{}
			for k, v := range fx {
				next[k] = v
			}
			next["audit"] = c.DB()["user"]
			return next, nil
		})
		r.Register(KindFx, "save", "plain", func(fx frame.Effects, _ frame.Coeffects) frame.Effects {
			fx["plain"] = true
			return fx
		})

		out, err := r.ComposeFx("save")(ctx, frame.Effects{}, cofx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out["audit"] != "ada" || out["plain"] != true {
			t.Errorf("unexpected effects %v", out)
		}
	})

	t.Run("Setter Shape Rejected", func(t *testing.T) {
		r := NewRegistry()
		defer r.Close()

		r.Register(KindFx, "save", "wrong", identity)
		_, err := r.ComposeFx("save")(ctx, frame.Effects{}, cofx)
		if !errors.Is(err, ErrTransformShape) {
			t.Errorf("expected ErrTransformShape, got %v", err)
		}
	})
}
