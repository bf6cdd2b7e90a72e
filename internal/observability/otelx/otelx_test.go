package otelx

import (
	"context"
	"testing"

	"github.com/bakkerme/giftcard-bot/internal/config"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(context.Background(), nil, config.OTelEnvConfig{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitRejectsUnknownProtocol(t *testing.T) {
	_, err := Init(context.Background(), nil, config.OTelEnvConfig{Enabled: true, Protocol: "carrier"})
	if err == nil {
		t.Fatalf("expected unsupported protocol error")
	}
}

func TestProtocolAndEndpointDefaults(t *testing.T) {
	cases := []struct {
		cfg          config.OTelEnvConfig
		wantProtocol string
		wantEndpoint string
	}{
		{config.OTelEnvConfig{}, "grpc", "localhost:4317"},
		{config.OTelEnvConfig{Protocol: "HTTP"}, "http/protobuf", "localhost:4318"},
		{config.OTelEnvConfig{Protocol: "grpc", Endpoint: "collector:4317"}, "grpc", "collector:4317"},
	}
	for _, tc := range cases {
		if got := protocolOrDefault(tc.cfg); got != tc.wantProtocol {
			t.Errorf("protocol(%+v) = %q, want %q", tc.cfg, got, tc.wantProtocol)
		}
		if got := endpointOrDefault(tc.cfg); got != tc.wantEndpoint {
			t.Errorf("endpoint(%+v) = %q, want %q", tc.cfg, got, tc.wantEndpoint)
		}
	}
}

func TestGRPCEndpointStripsScheme(t *testing.T) {
	got, err := grpcEndpoint("https://otel.example.com:4317/v1")
	if err != nil {
		t.Fatalf("grpc endpoint: %v", err)
	}
	if got != "otel.example.com:4317" {
		t.Fatalf("endpoint = %q", got)
	}
}
