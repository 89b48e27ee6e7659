package frame

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func recorder(id Name, log *[]string) Interceptor {
	return Interceptor{
		ID: id,
		Before: func(_ context.Context, _ *Context) error {
			*log = append(*log, "before:"+id)
			return nil
		},
		After: func(_ context.Context, _ *Context) error {
			*log = append(*log, "after:"+id)
			return nil
		},
	}
}

func TestExecute(t *testing.T) {
	t.Run("Phase Order", func(t *testing.T) {
		var log []string
		chain := []Interceptor{recorder("outer", &log), recorder("inner", &log)}

		_, err := Execute(context.Background(), nil, NewEvent("ev"), chain, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := []string{"before:outer", "before:inner", "after:inner", "after:outer"}
		if !reflect.DeepEqual(log, expected) {
			t.Errorf("expected %v, got %v", expected, log)
		}
	})

	t.Run("Coeffects Carry Event And DB", func(t *testing.T) {
		db := DB{"n": 1}
		event := NewEvent("ev", 7)
		var seen Coeffects
		chain := []Interceptor{{
			ID: "inspect",
			Before: func(_ context.Context, c *Context) error {
				seen = c.Coeffects
				return nil
			},
		}}

		if _, err := Execute(context.Background(), nil, event, chain, Coeffects{KeyDB: db}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seen.Event().ID() != "ev" || seen.Event().Arg(0) != 7 {
			t.Errorf("unexpected event in coeffects: %v", seen.Event())
		}
		if seen.DB()["n"] != 1 {
			t.Errorf("unexpected db in coeffects: %v", seen.DB())
		}
		if _, ok := seen[KeyOriginalEvent]; !ok {
			t.Error("expected original event in coeffects")
		}
	})

	t.Run("DB Handler Sets DB Effect", func(t *testing.T) {
		handler := DBHandlerInterceptor(func(_ context.Context, db DB, event Event) (DB, error) {
			return AssocIn(db, Path{"n"}, event.Arg(0)), nil
		})

		c, err := Execute(context.Background(), nil, NewEvent("set", 3), []Interceptor{handler}, Coeffects{KeyDB: DB{}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		db, ok := c.Effects.DB()
		if !ok || db["n"] != 3 {
			t.Errorf("expected db effect with n=3, got %v", c.Effects)
		}
	})

	t.Run("After Sees Handler Effects", func(t *testing.T) {
		var observed Effects
		watcher := Interceptor{
			ID: "watcher",
			After: func(_ context.Context, c *Context) error {
				observed = c.Effects
				return nil
			},
		}
		handler := FxHandlerInterceptor(func(_ context.Context, _ Coeffects, _ Event) (Effects, error) {
			return Effects{KeyDispatch: NewEvent("next")}, nil
		})

		if _, err := Execute(context.Background(), nil, NewEvent("ev"), []Interceptor{watcher, handler}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := observed[KeyDispatch]; !ok {
			t.Errorf("expected after phase to observe handler effects, got %v", observed)
		}
	})

	t.Run("Terminate Skips Remaining", func(t *testing.T) {
		var log []string
		stop := Interceptor{
			ID: "stop",
			Before: func(_ context.Context, c *Context) error {
				c.Terminate()
				return nil
			},
		}
		chain := []Interceptor{stop, recorder("skipped", &log)}

		if _, err := Execute(context.Background(), nil, NewEvent("ev"), chain, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(log) != 0 {
			t.Errorf("expected no phases after terminate, got %v", log)
		}
	})

	t.Run("Enqueue Extends Chain", func(t *testing.T) {
		var log []string
		grow := Interceptor{
			ID: "grow",
			Before: func(_ context.Context, c *Context) error {
				c.Enqueue(recorder("added", &log))
				return nil
			},
		}

		if _, err := Execute(context.Background(), nil, NewEvent("ev"), []Interceptor{grow}, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected := []string{"before:added", "after:added"}
		if !reflect.DeepEqual(log, expected) {
			t.Errorf("expected %v, got %v", expected, log)
		}
	})

	t.Run("Error Carries Path", func(t *testing.T) {
		boom := errors.New("boom")
		failing := Interceptor{
			ID: "failing",
			Before: func(_ context.Context, _ *Context) error {
				return boom
			},
		}

		_, err := Execute(context.Background(), nil, NewEvent("ev"), []Interceptor{failing}, nil)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		var frameErr *Error
		if !errors.As(err, &frameErr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if !reflect.DeepEqual(frameErr.Path, []Name{"ev", "failing"}) {
			t.Errorf("unexpected path %v", frameErr.Path)
		}
		if !strings.Contains(err.Error(), "ev -> failing") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("Error Timing Uses Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		slow := Interceptor{
			ID: "slow",
			Before: func(_ context.Context, _ *Context) error {
				clock.Advance(5 * time.Second)
				return errors.New("too slow")
			},
		}

		_, err := Execute(context.Background(), clock, NewEvent("ev"), []Interceptor{slow}, nil)
		var frameErr *Error
		if !errors.As(err, &frameErr) {
			t.Fatalf("expected *Error, got %T", err)
		}
		if !frameErr.Timestamp.Equal(clock.Now()) {
			t.Errorf("expected timestamp %v, got %v", clock.Now(), frameErr.Timestamp)
		}
		if frameErr.Duration != 5*time.Second {
			t.Errorf("expected 5s duration, got %v", frameErr.Duration)
		}
	})

	t.Run("Panic Becomes Error", func(t *testing.T) {
		panicking := Interceptor{
			ID: "panicking",
			After: func(_ context.Context, _ *Context) error {
				panic("oops")
			},
		}

		_, err := Execute(context.Background(), nil, NewEvent("ev"), []Interceptor{panicking}, nil)
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("expected *PanicError, got %v", err)
		}
		if panicErr.Value != "oops" {
			t.Errorf("unexpected panic value %v", panicErr.Value)
		}
	})
}

func TestErrorFlags(t *testing.T) {
	err := &Error{Err: context.DeadlineExceeded, Path: []Name{"ev"}}
	if !err.IsTimeout() {
		t.Error("expected timeout")
	}
	if err.IsCanceled() {
		t.Error("did not expect canceled")
	}

	canceled := &Error{Err: context.Canceled, Canceled: true, Path: []Name{"ev"}}
	if !canceled.IsCanceled() {
		t.Error("expected canceled")
	}
	if !strings.Contains(canceled.Error(), "canceled") {
		t.Errorf("unexpected message %q", canceled.Error())
	}
}
