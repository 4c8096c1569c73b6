package ctxutil

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type traceDataKey struct{}

// TraceData identifies one request and the damage records it touched.
type TraceData struct {
	TraceID   string
	RequestID string
	DamageIDs []string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// AddDamageIDs records damage ids on the request trace data and on the active span.
// Blank and repeated ids are skipped.
func AddDamageIDs(ctx context.Context, ids ...string) {
	td := GetTraceData(ctx)
	if td == nil {
		td = &TraceData{}
	}
	added := false
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || containsString(td.DamageIDs, id) {
			continue
		}
		td.DamageIDs = append(td.DamageIDs, id)
		added = true
	}
	if !added {
		return
	}
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.SetAttributes(attribute.StringSlice("damage.ids", td.DamageIDs))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// LogFields returns the trace/request identifiers on ctx as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 6)
	if td.TraceID != "" {
		out = append(out, "trace_id", td.TraceID)
	}
	if td.RequestID != "" {
		out = append(out, "request_id", td.RequestID)
	}
	if len(td.DamageIDs) > 0 {
		out = append(out, "damage_ids", td.DamageIDs)
	}
	return out
}
