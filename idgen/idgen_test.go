package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7_Version(t *testing.T) {
	id := UUIDv7()()
	u, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if u.Version() != 7 {
		t.Fatalf("version = %d, want 7", u.Version())
	}
}

func TestPrefixed(t *testing.T) {
	id := Request()
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("got %q, want req_ prefix", id)
	}
	if _, err := ParsePrefixed("req_", id); err != nil {
		t.Fatalf("ParsePrefixed: %v", err)
	}
}

func TestParsePrefixed_Rejects(t *testing.T) {
	cases := []string{"", "req_", "req_not-a-uuid", "evt_0190d3f4-7b2c-7c3e-9b4a-1f2e3d4c5b6a"}
	for _, c := range cases {
		if _, err := ParsePrefixed("req_", c); err == nil {
			t.Errorf("ParsePrefixed(%q): expected error", c)
		}
	}
}

func TestSequence(t *testing.T) {
	gen := Sequence("r")
	if a, b := gen(), gen(); a != "r1" || b != "r2" {
		t.Fatalf("got %q %q, want r1 r2", a, b)
	}
}

func TestUUIDv7_Uniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 500)
	for i := 0; i < 500; i++ {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate at %d: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}
