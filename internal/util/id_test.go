package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("draft")
	if !strings.HasPrefix(id, "draft_") || len(id) != len("draft_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("draft") == id {
		t.Fatal("ids must be unique")
	}
	if bare := NewID(""); len(bare) != 32 || strings.Contains(bare, "_") {
		t.Fatalf("unexpected bare id %q", bare)
	}
}
