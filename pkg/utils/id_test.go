package utils

import (
	"strings"
	"testing"
)

func TestGenerateSessionCode(t *testing.T) {
	code := GenerateSessionCode()
	if len(code) != sessionCodeLength {
		t.Fatalf("expected %d digits, got %q", sessionCodeLength, code)
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			t.Fatalf("expected numeric code, got %q", code)
		}
	}
}

func TestGenerateInstanceID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateInstanceID()
		if seen[id] {
			t.Fatalf("duplicate instance id: %s", id)
		}
		seen[id] = true
	}
}

func TestGenerateRequestID(t *testing.T) {
	id := GenerateRequestID()
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected req_ prefix, got %q", id)
	}
	if id == GenerateRequestID() {
		t.Fatal("expected distinct request ids")
	}
}
