package observability

import (
	"context"
	"fmt"

	"github.com/aws/aws-xray-sdk-go/xray"
)

// Tracer wraps storage operations in X-Ray subsegments.
type Tracer struct {
	serviceName string
	enabled     bool
}

// NewTracer creates a tracer. A disabled tracer runs functions untraced.
func NewTracer(serviceName string, enabled bool) *Tracer {
	return &Tracer{
		serviceName: serviceName,
		enabled:     enabled,
	}
}

// StartSegment opens a root segment for commands that run outside Lambda.
// The returned function closes it. A disabled tracer returns ctx unchanged.
func (t *Tracer) StartSegment(ctx context.Context, name string) (context.Context, func(error)) {
	if t == nil || !t.enabled {
		return ctx, func(error) {}
	}
	ctx, seg := xray.BeginSegment(ctx, fmt.Sprintf("%s.%s", t.serviceName, name))
	return ctx, func(err error) {
		if err != nil {
			_ = seg.AddError(err)
		}
		seg.Close(err)
	}
}

// TraceFunction runs fn inside a subsegment when the context carries a
// segment to attach it to.
func (t *Tracer) TraceFunction(ctx context.Context, name string, fn func(context.Context) error) error {
	if t == nil || !t.enabled || xray.GetSegment(ctx) == nil {
		return fn(ctx)
	}
	ctx, seg := xray.BeginSubsegment(ctx, name)
	err := fn(ctx)
	if err != nil {
		_ = seg.AddError(err)
	}
	seg.Close(err)
	return err
}

// AddAnnotation adds an indexed annotation to the current segment.
func (t *Tracer) AddAnnotation(ctx context.Context, key string, value string) {
	if t == nil || !t.enabled {
		return
	}
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddAnnotation(key, value)
	}
}

// AddMetadata adds metadata to the current segment.
func (t *Tracer) AddMetadata(ctx context.Context, key string, value interface{}) {
	if t == nil || !t.enabled {
		return
	}
	if seg := xray.GetSegment(ctx); seg != nil {
		_ = seg.AddMetadata(key, value)
	}
}
