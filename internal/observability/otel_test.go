package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tbourn/parking-alpr/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

// memClient is an otlptrace.Client that keeps uploads in memory.
type memClient struct {
	mu      sync.Mutex
	spans   int
	opts    int
	stopped bool
}

func (m *memClient) Start(context.Context) error { return nil }

func (m *memClient) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	return nil
}

func (m *memClient) UploadTraces(_ context.Context, rs []*tracepb.ResourceSpans) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		for _, ss := range r.GetScopeSpans() {
			m.spans += len(ss.GetSpans())
		}
	}
	return nil
}

// useMemClient routes the exporter to an in-memory client for the test.
func useMemClient(t *testing.T) *memClient {
	t.Helper()
	orig := newOTLPClient
	t.Cleanup(func() { newOTLPClient = orig })
	mc := &memClient{}
	newOTLPClient = func(opts ...otlptracegrpc.Option) otlptrace.Client {
		mc.opts = len(opts)
		return mc
	}
	return mc
}

func enabled(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false, Endpoint: "ignored:4317"}, "v0.0.0")
	if err != nil || shutdown == nil {
		t.Fatalf("shutdown=%v err=%v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled tracing must not replace the provider")
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)
		mc := useMemClient(t)

		shutdown, err := SetupOTel(context.Background(), enabled("parking-test", insecure), "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("expected *sdktrace.TracerProvider")
		}

		prop := otel.GetTextMapPropagator()
		carrier := propagation.MapCarrier{}
		ctx, span := otel.Tracer("test").Start(context.Background(), "RecordEntry")
		prop.Inject(ctx, carrier)
		span.End()
		if carrier.Get("traceparent") == "" {
			t.Fatalf("traceparent not injected: %v", carrier)
		}

		ct, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdown(ct); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		cancel()

		mc.mu.Lock()
		spans, stopped, opts := mc.spans, mc.stopped, mc.opts
		mc.mu.Unlock()
		if spans != 1 || !stopped {
			t.Fatalf("insecure=%v: exported spans=%d stopped=%v", insecure, spans, stopped)
		}
		if opts == 0 {
			t.Fatalf("insecure=%v: no client options passed", insecure)
		}
	}
}

func TestSetupOTel_CanceledContext_StillSucceeds(t *testing.T) {
	preserveOTelGlobals(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // the gRPC client connects lazily

	shutdown, err := SetupOTel(ctx, enabled("svc-canceled", true), "vX")
	if err != nil {
		t.Fatalf("unexpected err with canceled ctx: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetupOTel_FailuresLeaveGlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)
	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() { newOTLPExporterFn, newServiceResourceFn = origExp, origRes })

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()

	newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("boom-exporter")
	}
	if _, err := SetupOTel(context.Background(), enabled("svc", true), "v0"); err == nil {
		t.Fatalf("expected exporter error")
	}

	newOTLPExporterFn = origExp
	newServiceResourceFn = func(context.Context, string, string) (*resource.Resource, error) {
		return nil, errors.New("boom-resource")
	}
	if _, err := SetupOTel(context.Background(), enabled("svc", true), "v0"); err == nil {
		t.Fatalf("expected resource error")
	}

	if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
		t.Fatalf("globals changed on failure")
	}
}

func TestServiceResource_Attributes(t *testing.T) {
	res, err := newServiceResourceFn(context.Background(), "parking-alpr", "v2")
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	want := map[string]string{
		string(semconv.ServiceNameKey):      "parking-alpr",
		string(semconv.ServiceVersionKey):   "v2",
		string(semconv.ServiceNamespaceKey): Namespace,
	}
	got := map[string]string{}
	for _, kv := range res.Attributes() {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q; want %q (all: %v)", k, got[k], v, got)
		}
	}
}
