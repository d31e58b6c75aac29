package hasher

import "testing"

func TestContent(t *testing.T) {
	a := Content([]byte("hello"))
	b := Content([]byte("hello"))
	if a != b {
		t.Errorf("same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("expected 16 hex chars, got %d (%s)", len(a), a)
	}
	if c := Content([]byte("hello!")); c == a {
		t.Errorf("different inputs collided: %s", c)
	}
}

func TestContentEmpty(t *testing.T) {
	if got := Content(nil); len(got) != 16 {
		t.Errorf("empty input: expected 16 hex chars, got %q", got)
	}
}
