package config

import (
	"testing"
	"time"
)

func TestLoaderFromEnv(t *testing.T) {
	t.Setenv("FASTCLIENT_MAX_CONNECTIONS", "512")
	t.Setenv("FASTCLIENT_IDLE_TIMEOUT", "45s")

	l := NewLoader()
	l.LoadFromEnv("FASTCLIENT_")

	cfg := New(l.Options()...)
	if cfg.MaxConnections != 512 {
		t.Fatalf("expected MaxConnections=512, got %d", cfg.MaxConnections)
	}
	if cfg.IdleTimeout != 45*time.Second {
		t.Fatalf("expected IdleTimeout=45s, got %v", cfg.IdleTimeout)
	}
	// Values not set by the environment keep Default's values.
	if cfg.MaxConnectionsPerHost != Default().MaxConnectionsPerHost {
		t.Fatalf("expected unset option to keep the default")
	}
}

func TestLoaderIgnoresUnparsableValues(t *testing.T) {
	l := NewLoader()
	l.values["max-connections"] = "not-a-number"

	opts := l.Options()
	if len(opts) != 0 {
		t.Fatalf("expected no options from an unparsable value, got %d", len(opts))
	}
}
