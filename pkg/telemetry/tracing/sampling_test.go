package tracing

import (
	"context"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  string
	}{
		{strategy: SamplerAlways},
		{strategy: SamplerNever},
		{strategy: SamplerRatio, ratio: 0},
		{strategy: SamplerRatio, ratio: 0.25},
		{strategy: SamplerRatio, ratio: 1},
		{strategy: SamplerRatio, ratio: -0.5, wantErr: "between 0.0 and 1.0"},
		{strategy: SamplerRatio, ratio: 2, wantErr: "between 0.0 and 1.0"},
		{strategy: "sometimes", wantErr: "unknown sampler strategy"},
	}

	for _, tt := range tests {
		sampler, err := createSampler(tt.strategy, tt.ratio)
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("createSampler(%q, %v) error = %v, want %q", tt.strategy, tt.ratio, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("createSampler(%q, %v) unexpected error: %v", tt.strategy, tt.ratio, err)
			continue
		}
		if !strings.HasPrefix(sampler.Description(), "ParentBased") {
			t.Errorf("sampler %q is not parent based: %s", tt.strategy, sampler.Description())
		}
	}
}

func TestCreateSampler_FollowsSampledParent(t *testing.T) {
	sampler, err := createSampler(SamplerNever, 0)
	if err != nil {
		t.Fatal(err)
	}

	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)

	got := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: ctx,
		TraceID:       parent.TraceID(),
		Name:          "export.batch",
	})
	if got.Decision != sdktrace.RecordAndSample {
		t.Errorf("decision under sampled parent = %v, want RecordAndSample", got.Decision)
	}

	root := sampler.ShouldSample(sdktrace.SamplingParameters{
		ParentContext: context.Background(),
		TraceID:       trace.TraceID{0x03},
		Name:          "export.batch",
	})
	if root.Decision != sdktrace.Drop {
		t.Errorf("root decision = %v, want Drop", root.Decision)
	}
}
