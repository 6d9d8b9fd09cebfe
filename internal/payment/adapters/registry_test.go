package adapters

import (
	"errors"
	"testing"

	"github.com/smallbiznis/antaeus/internal/payment/adapters/mock"
	"github.com/smallbiznis/antaeus/internal/payment/domain"
)

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(mock.NewFactory(), nil)

	if !registry.ProviderExists(" MOCK ") {
		t.Fatalf("expected mock provider to be registered")
	}
	if got := registry.Providers(); len(got) != 1 || got[0] != "mock" {
		t.Fatalf("unexpected providers %v", got)
	}
	if _, err := registry.NewGateway("stripe", domain.GatewayConfig{}); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}

	var empty *Registry
	if empty.ProviderExists("mock") {
		t.Fatalf("nil registry must not report providers")
	}
}
