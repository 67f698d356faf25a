// Package tracing turns published events into OpenTelemetry spans, for
// distributed tracing across an IDE session and any backing services the
// event log's evidence or checkpoint operations reach.
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalyank1144/agentcore/event"
)

// OTelBus attaches a span-per-event subscriber to an event.Bus. Every
// published event becomes an immediately-ended span named after its
// type, carrying task/mode/stage as attributes and the event's payload
// flattened onto the span the same way the teacher's emitter flattens
// node metadata (spec's event log is this module's node-execution
// trace).
type OTelBus struct {
	tracer trace.Tracer
}

// NewOTelBus constructs an OTelBus from an OpenTelemetry tracer, e.g.
// otel.Tracer("agentcore").
func NewOTelBus(tracer trace.Tracer) *OTelBus {
	return &OTelBus{tracer: tracer}
}

// Attach subscribes this OTelBus to bus, so every future Publish also
// produces a span. Returns the event.Handle for detaching later.
func (o *OTelBus) Attach(bus *event.Bus) event.Handle {
	return bus.Subscribe(o.onEvent)
}

func (o *OTelBus) onEvent(e event.Event) {
	ctx := context.Background()
	_, span := o.tracer.Start(ctx, string(e.Type))
	defer span.End()

	span.SetAttributes(
		attribute.String("agentcore.task_id", e.TaskID),
		attribute.String("agentcore.event_id", e.EventID),
		attribute.String("agentcore.mode", string(e.Mode)),
		attribute.String("agentcore.stage", string(e.Stage)),
	)
	if e.ParentEventID != "" {
		span.SetAttributes(attribute.String("agentcore.parent_event_id", e.ParentEventID))
	}

	o.addPayloadAttributes(span, e.Payload)

	if errMsg, ok := e.Payload["error"].(string); ok {
		span.SetStatus(codes.Error, errMsg)
		span.RecordError(fmt.Errorf("%s", errMsg))
	}
}

func (o *OTelBus) addPayloadAttributes(span trace.Span, payload map[string]any) {
	for key, value := range payload {
		attrKey := "agentcore." + key
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, int64(v/time.Millisecond)))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
