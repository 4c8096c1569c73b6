package ctxutil

import (
	"context"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLogFields(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("LogFields without trace data: want=nil got=%v", got)
	}
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t-1", RequestID: "r-1"})
	got := LogFields(ctx)
	want := []interface{}{"trace_id", "t-1", "request_id", "r-1"}
	if len(got) != len(want) {
		t.Fatalf("LogFields: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("LogFields[%d]: want=%v got=%v", i, want[i], got[i])
		}
	}
}

func TestRequestDataRoundTrip(t *testing.T) {
	ctx := WithRequestData(context.Background(), &RequestData{Subject: "inspector-1"})
	rd := GetRequestData(ctx)
	if rd == nil || rd.Subject != "inspector-1" {
		t.Fatalf("GetRequestData: got=%+v", rd)
	}
}

func TestAddDamageIDs(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	ctx, span := tp.Tracer("test").Start(context.Background(), "ingest")

	td := &TraceData{TraceID: "t-1"}
	ctx = WithTraceData(ctx, td)
	AddDamageIDs(ctx, "Crack_001", " ", "Crack_002")
	AddDamageIDs(ctx, "Crack_001")
	span.End()

	if len(td.DamageIDs) != 2 || td.DamageIDs[0] != "Crack_001" || td.DamageIDs[1] != "Crack_002" {
		t.Fatalf("DamageIDs: want=[Crack_001 Crack_002] got=%v", td.DamageIDs)
	}
	fields := LogFields(ctx)
	if len(fields) != 4 || fields[2] != "damage_ids" {
		t.Fatalf("LogFields: got=%v", fields)
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans: want=1 got=%d", len(ended))
	}
	found := false
	for _, kv := range ended[0].Attributes() {
		if string(kv.Key) == "damage.ids" {
			found = true
			if got := kv.Value.AsStringSlice(); len(got) != 2 {
				t.Fatalf("damage.ids attribute: want 2 ids got=%v", got)
			}
		}
	}
	if !found {
		t.Fatalf("damage.ids attribute missing on span")
	}
}

func TestAddDamageIDsWithoutTraceData(t *testing.T) {
	// no trace data and no span: must not panic
	AddDamageIDs(context.Background(), "Crack_001")
}
