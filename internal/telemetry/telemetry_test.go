package telemetry

import (
	"context"
	"strings"
	"testing"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

func TestInitDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "catalog-search"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("disabled tracing must still return a shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestBuildResourceCarriesServiceIdentity(t *testing.T) {
	res, err := buildResource(context.Background(), Config{
		ServiceName:    "catalog-search",
		ServiceVersion: "1.4.2",
		Environment:    "staging",
	})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}

	got := make(map[string]string)
	for _, attr := range res.Attributes() {
		got[string(attr.Key)] = attr.Value.AsString()
	}
	if got[string(semconv.ServiceNameKey)] != "catalog-search" {
		t.Fatalf("service name = %q", got[string(semconv.ServiceNameKey)])
	}
	if got[string(semconv.ServiceVersionKey)] != "1.4.2" {
		t.Fatalf("service version = %q", got[string(semconv.ServiceVersionKey)])
	}
	if got[string(semconv.DeploymentEnvironmentKey)] != "staging" {
		t.Fatalf("environment = %q", got[string(semconv.DeploymentEnvironmentKey)])
	}
}

func TestBuildResourceSkipsBlankAttributes(t *testing.T) {
	res, err := buildResource(context.Background(), Config{ServiceName: "catalog-search"})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	for _, attr := range res.Attributes() {
		if attr.Key == semconv.ServiceVersionKey || attr.Key == semconv.DeploymentEnvironmentKey {
			t.Fatalf("blank %s must be omitted", attr.Key)
		}
	}
}

func TestSamplerSelection(t *testing.T) {
	for _, ratio := range []float64{0, -1, 1, 2.5} {
		if desc := sampler(ratio).Description(); desc != "AlwaysOnSampler" {
			t.Fatalf("sampler(%v) = %q, want AlwaysOnSampler", ratio, desc)
		}
	}
	desc := sampler(0.25).Description()
	if !strings.Contains(desc, "TraceIDRatioBased") || !strings.Contains(desc, "ParentBased") {
		t.Fatalf("sampler(0.25) = %q", desc)
	}
}

func TestTrimScheme(t *testing.T) {
	cases := map[string]string{
		"http://collector:4318":  "collector:4318",
		"https://collector:4318": "collector:4318",
		"collector:4318":         "collector:4318",
	}
	for in, want := range cases {
		if got := trimScheme(in); got != want {
			t.Fatalf("trimScheme(%q) = %q, want %q", in, got, want)
		}
	}
}
