package config

import (
	"testing"

	"pumpdesk/backend/internal/domain"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RATE_CACHE_TTL_SECONDS", "")
	t.Setenv("FALLBACK_RATES", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.RateCacheTTLSeconds != 30 {
		t.Fatalf("expected default rate cache TTL 30, got %d", cfg.RateCacheTTLSeconds)
	}
	if cfg.FallbackRates != nil {
		t.Fatalf("expected nil fallback rates when unset, got %v", cfg.FallbackRates)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestParseFallbackRates(t *testing.T) {
	rates := parseFallbackRates("MS=95.50,HSD=87.30")
	if rates[domain.FuelMS] != 9550 {
		t.Fatalf("expected MS 9550, got %d", rates[domain.FuelMS])
	}
	if rates[domain.FuelHSD] != 8730 {
		t.Fatalf("expected HSD 8730, got %d", rates[domain.FuelHSD])
	}

	// Malformed pairs are skipped, not fatal.
	rates = parseFallbackRates("MS=95.50,garbage,JET=1,CNG=-3")
	if len(rates) != 1 || rates[domain.FuelMS] != 9550 {
		t.Fatalf("expected only MS parsed, got %v", rates)
	}

	if parseFallbackRates("") != nil {
		t.Fatal("expected nil for empty input")
	}
	if parseFallbackRates("all,garbage") != nil {
		t.Fatal("expected nil when nothing parses")
	}
}
