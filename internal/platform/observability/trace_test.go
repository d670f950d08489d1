package observability

import (
	"testing"

	"github.com/cloud-atlas/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	const traceID = "105445aa7843bc8bf206b12000100000"

	cases := []struct {
		name    string
		header  string
		ok      bool
		sampled bool
		spanID  string
	}{
		{name: "decimal span id sampled", header: traceID + "/1;o=1", ok: true, sampled: true, spanID: "0000000000000001"},
		{name: "decimal span id unsampled", header: traceID + "/12345;o=0", ok: true, spanID: "0000000000003039"},
		{name: "hex span id", header: traceID + "/00f067aa0ba902b7", ok: true, spanID: "00f067aa0ba902b7"},
		{name: "short hex span id padded", header: traceID + "/bd", ok: true, spanID: "00000000000000bd"},
		{name: "no options defaults unsampled", header: traceID + "/1", ok: true, spanID: "0000000000000001"},
		{name: "missing span part", header: traceID, ok: false},
		{name: "short trace id", header: "abc123/1;o=1", ok: false},
		{name: "zero span id", header: traceID + "/0", ok: false},
		{name: "empty", header: "", ok: false},
		{name: "garbage span id", header: traceID + "/not-a-span", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spanCtx, ok := parseCloudTraceContext(tc.header)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !tc.ok {
				return
			}
			if got := spanCtx.TraceID().String(); got != traceID {
				t.Fatalf("trace id = %s, want %s", got, traceID)
			}
			if got := spanCtx.SpanID().String(); got != tc.spanID {
				t.Fatalf("span id = %s, want %s", got, tc.spanID)
			}
			if spanCtx.IsSampled() != tc.sampled {
				t.Fatalf("sampled = %v, want %v", spanCtx.IsSampled(), tc.sampled)
			}
			if !spanCtx.IsRemote() {
				t.Fatal("parsed span context must be remote")
			}
		})
	}
}

func TestFormatCloudTraceHeader(t *testing.T) {
	info := requestctx.TraceInfo{
		TraceID: "105445aa7843bc8bf206b12000100000",
		SpanID:  "00f067aa0ba902b7",
		Sampled: true,
	}
	if got := formatCloudTraceHeader(info); got != "105445aa7843bc8bf206b12000100000/00f067aa0ba902b7;o=1" {
		t.Fatalf("unexpected header %q", got)
	}

	info.Sampled = false
	if got := formatCloudTraceHeader(info); got != "105445aa7843bc8bf206b12000100000/00f067aa0ba902b7;o=0" {
		t.Fatalf("unexpected header %q", got)
	}
}
