package uuid

import (
	"testing"
)

func TestNew(t *testing.T) {
	id1 := New()
	id2 := New()

	if len(id1) != 36 {
		t.Errorf("UUID should be 36 characters, got %d", len(id1))
	}
	if id1 == id2 {
		t.Error("UUIDs should be unique")
	}
}

func TestNewHex(t *testing.T) {
	id := NewHex()
	if len(id) != 32 {
		t.Fatalf("hex UUID should be 32 characters, got %d", len(id))
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("unexpected character %q in %s", c, id)
		}
	}
}
