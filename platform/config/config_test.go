package config

import (
	"testing"
	"time"
)

func TestGetDurationEnv_FallsBackOnMalformedValue(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "banana")

	if got := getDurationEnv("TEST_TIMEOUT", 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected fallback 10s for malformed value, got %s", got)
	}
}

func TestGetDurationEnv_RejectsNonPositiveValues(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "0s")
	if got := getDurationEnv("TEST_TIMEOUT", 8*time.Second); got != 8*time.Second {
		t.Fatalf("expected fallback for zero value, got %s", got)
	}

	t.Setenv("TEST_TIMEOUT", "-5s")
	if got := getDurationEnv("TEST_TIMEOUT", 8*time.Second); got != 8*time.Second {
		t.Fatalf("expected fallback for negative value, got %s", got)
	}
}

func TestGetDurationEnv_ParsesValidValue(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "2500ms")

	if got := getDurationEnv("TEST_TIMEOUT", time.Second); got != 2500*time.Millisecond {
		t.Fatalf("expected 2.5s, got %s", got)
	}
}

func TestGetDurationEnv_EmptyUsesFallback(t *testing.T) {
	if got := getDurationEnv("TEST_TIMEOUT_UNSET", 15*time.Second); got != 15*time.Second {
		t.Fatalf("expected fallback for unset key, got %s", got)
	}
}
