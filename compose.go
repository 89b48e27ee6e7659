package wirez

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/wirez/frame"
)

// Observability constants for composed pipelines.
const (
	// Metrics.
	PipelineFoldsTotal    = metricz.Key("pipeline.folds.total")
	PipelineFailuresTotal = metricz.Key("pipeline.failures.total")
	PipelineStages        = metricz.Key("pipeline.stages")

	// Spans.
	PipelineFoldSpan  = tracez.Key("pipeline.fold")
	PipelineStageSpan = tracez.Key("pipeline.stage")

	// Tags.
	PipelineTagKind       = tracez.Tag("pipeline.kind")
	PipelineTagID         = tracez.Tag("pipeline.id")
	PipelineTagStageCount = tracez.Tag("pipeline.stage_count")
	PipelineTagKey        = tracez.Tag("pipeline.key")
	PipelineTagSuccess    = tracez.Tag("pipeline.success")
	PipelineTagError      = tracez.Tag("pipeline.error")
)

// span is the part of a tracez span the pipelines use.
type span interface {
	SetTag(tag tracez.Tag, value string)
	Finish()
}

// Composed runs a setter or getter pipeline. value is threaded through every
// stage; args are passed unchanged to each of them.
type Composed func(ctx context.Context, value any, args ...any) (any, error)

// FxComposed runs an effects pipeline.
type FxComposed func(ctx context.Context, fx frame.Effects, cofx frame.Coeffects) (frame.Effects, error)

// Compose returns a function running the (kind, id) pipeline. The pipeline
// is looked up on every call, never captured, so transforms registered or
// removed later take effect immediately. An empty pipeline returns value.
//
// Each stage receives its own copy of args.
//
// Stage errors are returned as they are. A stage whose signature is not one
// of the accepted setter/getter shapes fails with ErrTransformShape.
func (r *Registry) Compose(kind Kind, id ID) Composed {
	return func(ctx context.Context, value any, args ...any) (any, error) {
		transforms := r.Transforms(kind, id)
		keys, funcs := transforms.Keys(), transforms.Funcs()

		ctx, fold := r.startFold(ctx, kind, id, len(keys))
		defer fold.Finish()

		acc := value
		for i, fn := range funcs {
			next, err := r.stage(ctx, keys[i], func() (any, error) {
				return applyTransform(ctx, kind, id, keys[i], fn, acc, slices.Clone(args))
			})
			if err != nil {
				r.fail(fold, err)
				return nil, err
			}
			acc = next
		}
		fold.SetTag(PipelineTagSuccess, "true")
		return acc, nil
	}
}

// ComposeFx returns a function running the effects pipeline registered for
// id. Like Compose it binds late.
func (r *Registry) ComposeFx(id ID) FxComposed {
	return func(ctx context.Context, fx frame.Effects, cofx frame.Coeffects) (frame.Effects, error) {
		transforms := r.Transforms(KindFx, id)
		keys, funcs := transforms.Keys(), transforms.Funcs()

		ctx, fold := r.startFold(ctx, KindFx, id, len(keys))
		defer fold.Finish()

		acc := fx
		for i, fn := range funcs {
			next, err := r.stage(ctx, keys[i], func() (any, error) {
				return applyFxTransform(ctx, id, keys[i], fn, acc, cofx)
			})
			if err != nil {
				r.fail(fold, err)
				return nil, err
			}
			acc, _ = next.(frame.Effects)
		}
		fold.SetTag(PipelineTagSuccess, "true")
		return acc, nil
	}
}

func (r *Registry) startFold(ctx context.Context, kind Kind, id ID, stages int) (context.Context, span) {
	r.metrics.Counter(PipelineFoldsTotal).Inc()
	r.metrics.Gauge(PipelineStages).Set(float64(stages))

	ctx, fold := r.tracer.StartSpan(ctx, PipelineFoldSpan)
	fold.SetTag(PipelineTagKind, string(kind))
	fold.SetTag(PipelineTagID, id)
	fold.SetTag(PipelineTagStageCount, strconv.Itoa(stages))
	return ctx, fold
}

func (r *Registry) stage(ctx context.Context, key Name, run func() (any, error)) (any, error) {
	_, step := r.tracer.StartSpan(ctx, PipelineStageSpan)
	step.SetTag(PipelineTagKey, key)
	defer step.Finish()

	out, err := run()
	if err != nil {
		step.SetTag(PipelineTagSuccess, "false")
		return nil, err
	}
	step.SetTag(PipelineTagSuccess, "true")
	return out, nil
}

func (r *Registry) fail(fold span, err error) {
	r.metrics.Counter(PipelineFailuresTotal).Inc()
	fold.SetTag(PipelineTagSuccess, "false")
	fold.SetTag(PipelineTagError, err.Error())
}

func applyTransform(ctx context.Context, kind Kind, id ID, key Name, fn, value any, args []any) (any, error) {
	switch f := fn.(type) {
	case Transform:
		return f(ctx, value, args...)
	case func(context.Context, any, ...any) (any, error):
		return f(ctx, value, args...)
	case func(any, ...any) any:
		return f(value, args...), nil
	case func(any) any:
		return f(value), nil
	}
	return nil, fmt.Errorf("%s %s/%s (%T): %w", kind, id, key, fn, ErrTransformShape)
}

func applyFxTransform(ctx context.Context, id ID, key Name, fn any, fx frame.Effects, cofx frame.Coeffects) (any, error) {
	switch f := fn.(type) {
	case FxTransform:
		return f(ctx, fx, cofx)
	case func(context.Context, frame.Effects, frame.Coeffects) (frame.Effects, error):
		return f(ctx, fx, cofx)
	case func(frame.Effects, frame.Coeffects) frame.Effects:
		return f(fx, cofx), nil
	}
	return nil, fmt.Errorf("%s %s/%s (%T): %w", KindFx, id, key, fn, ErrTransformShape)
}
