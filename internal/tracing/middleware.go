package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/impel-dev/impel/internal/coordination/command"
	"github.com/impel-dev/impel/internal/coordination/processor"
	"github.com/impel-dev/impel/internal/coordination/types"
)

// NewTracingMiddleware creates a span per executed command. Each appended
// event is recorded as a span event. A nil tracer yields a pass-through.
func NewTracingMiddleware(tracer trace.Tracer) processor.Middleware {
	if tracer == nil {
		return func(next processor.CommandHandler) processor.CommandHandler {
			return next
		}
	}

	return func(next processor.CommandHandler) processor.CommandHandler {
		return processor.HandlerFunc(func(ctx context.Context, cmd command.Command) (*command.Result, error) {
			ctx = restoreSpanContext(ctx, cmd)

			ctx, span := tracer.Start(ctx, fmt.Sprintf("%s%s", SpanPrefixCommand, cmd.Type()),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer span.End()

			span.SetAttributes(
				attribute.String(AttrCommandID, cmd.ID()),
				attribute.String(AttrCommandType, cmd.Type().String()),
				attribute.String(AttrCommandSource, cmd.Source().String()),
				attribute.String(AttrCommandActor, cmd.Actor()),
			)
			if setter, ok := cmd.(interface{ SetSpanContext(trace.SpanContext) }); ok {
				setter.SetSpanContext(span.SpanContext())
			}

			result, err := next.Handle(ctx, cmd)
			if err != nil {
				span.RecordError(err)
				if kind := types.Kind(err); kind != nil {
					span.SetAttributes(attribute.String(AttrErrorKind, kind.Error()))
				}
				span.SetStatus(codes.Error, err.Error())
				return result, err
			}

			if result != nil {
				span.SetAttributes(attribute.Int(AttrEventCount, len(result.Events)))
				for _, ev := range result.Events {
					span.AddEvent(EventAppended, trace.WithAttributes(
						attribute.String(AttrEventKind, string(ev.Kind())),
						attribute.Int64(AttrEventSequence, int64(ev.Sequence)), //nolint:gosec // sequences fit in int64
						attribute.String(AttrEventEntity, ev.EntityID),
					))
				}
			}
			span.SetStatus(codes.Ok, "")
			return result, nil
		})
	}
}

// restoreSpanContext makes a span context carried by cmd the parent of the
// command span.
func restoreSpanContext(ctx context.Context, cmd command.Command) context.Context {
	if hasSpanContext, ok := cmd.(interface{ SpanContext() trace.SpanContext }); ok {
		if sc := hasSpanContext.SpanContext(); sc.IsValid() {
			return trace.ContextWithRemoteSpanContext(ctx, sc)
		}
	}
	return ctx
}
